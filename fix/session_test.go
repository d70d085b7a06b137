package fix

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	in     bytes.Buffer
	out    bytes.Buffer
	onRead func()
	closed bool
}

func (t *fakeTransport) Connect(onReady func(error)) { onReady(nil) }
func (t *fakeTransport) View() []byte                { return t.in.Bytes() }
func (t *fakeTransport) Consume(n int)               { t.in.Next(n) }
func (t *fakeTransport) Write(buf []byte) int        { t.out.Write(buf); return len(buf) }
func (t *fakeTransport) OnRead(cb func())             { t.onRead = cb }
func (t *fakeTransport) Close() error                 { t.closed = true; return nil }

// push appends inbound bytes and fires the pending read callback, the way a
// real transport would once more data becomes visible.
func (t *fakeTransport) push(data []byte) {
	t.in.Write(data)
	if cb := t.onRead; cb != nil {
		t.onRead = nil
		cb()
	}
}

type fakeTimerHandle struct{ f *fakeTimerFactory }

func (h *fakeTimerHandle) Cancel() { h.f.canceled = true }

type fakeTimerFactory struct {
	callback func()
	interval time.Duration
	canceled bool
}

func (f *fakeTimerFactory) SetTimeout(cb func(), d time.Duration) TimerHandle {
	f.callback = cb
	f.interval = d
	f.canceled = false
	return &fakeTimerHandle{f}
}

func (f *fakeTimerFactory) fire() {
	if !f.canceled && f.callback != nil {
		f.callback()
	}
}

type fakeApp struct {
	requests []SessionRequest
	errs     []error
	sink     captureSink
	isAppMsg func([]byte) bool
}

func (a *fakeApp) OnRequest(req SessionRequest, conn *Connection) {
	a.requests = append(a.requests, req)
	if req.Direction == DirOut {
		if req.Kind == ReqLogon {
			conn.OutStream().TagValue(TagHeartBtInt, []byte("30"))
		}
		conn.RequestDone(nil)
	}
}

func (a *fakeApp) OnMessagePending(conn *Connection) { conn.ReadFixMessage(a) }
func (a *fakeApp) InStream() Sink                    { return &a.sink }
func (a *fakeApp) IsAppMsgType(raw []byte) bool {
	if a.isAppMsg != nil {
		return a.isAppMsg(raw)
	}
	return false
}
func (a *fakeApp) OnError(err error, conn *Connection) { a.errs = append(a.errs, err) }

func buildLogon(t *testing.T, heartBt string) []byte {
	t.Helper()
	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindLogon}, false)
	if heartBt != "" {
		w.TagValue(TagHeartBtInt, []byte(heartBt))
	}
	w.MessageDone(nil)
	return append([]byte(nil), w.GetBytes()...)
}

func buildLogout(t *testing.T) []byte {
	t.Helper()
	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindLogout}, false)
	w.MessageDone(nil)
	return append([]byte(nil), w.GetBytes()...)
}

func TestAcceptorLogonHandshakeConnectsBothDirections(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Acceptor, tr, tf)

	conn.Connect(app)
	assert.Equal(t, InLogonPending, conn.InState())
	assert.Equal(t, OutDisconnected, conn.OutState())

	tr.push(buildLogon(t, "30"))

	assert.Equal(t, InConnected, conn.InState())
	assert.Equal(t, OutConnected, conn.OutState())
	assert.Empty(t, app.sink.starts, "session-level Logon must never reach the application's in_stream")
	assert.Contains(t, tr.out.String(), "35=A")
}

func TestInitiatorLogonHandshakeConnectsBothDirections(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Initiator, tr, tf)

	conn.Connect(app)
	assert.Equal(t, OutLogonPending, conn.OutState())
	assert.Contains(t, tr.out.String(), "35=A")

	tr.push(buildLogon(t, "30"))
	assert.Equal(t, InConnected, conn.InState())
	assert.Equal(t, OutConnected, conn.OutState())
}

func TestApplicationMessageAdvancesIncomingSeq(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{isAppMsg: func(raw []byte) bool { return string(raw) == "D" }}
	conn := NewConnection(Acceptor, tr, tf)
	conn.Connect(app)
	tr.push(buildLogon(t, "30"))

	require.Equal(t, uint32(0), conn.GetExpectedIncomingSeq())

	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindAppCustom, Raw: []byte("D")}, true)
	w.TagValue(11, []byte("ORD1"))
	w.MessageDone(nil)
	tr.push(w.GetBytes())

	assert.Equal(t, uint32(1), conn.GetExpectedIncomingSeq())
	require.Len(t, app.sink.starts, 1)
	assert.Equal(t, KindAppCustom, app.sink.starts[0].Kind)
}

func TestHeartbeatTickSendsHeartbeatWhenIdle(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Acceptor, tr, tf)
	conn.Connect(app)
	tr.push(buildLogon(t, "10"))

	tr.out.Reset()
	tf.fire()
	tf.fire()

	assert.Equal(t, 2, bytes.Count(tr.out.Bytes(), []byte("35=0\x01")))
}

func TestHeartbeatTickSkippedAfterOutboundActivity(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Acceptor, tr, tf)
	conn.Connect(app)
	tr.push(buildLogon(t, "10"))

	tr.out.Reset()
	conn.OutStream().MessageStart(MsgType{Kind: KindAppCustom, Raw: []byte("D")}, true)
	conn.OutStream().MessageDone(nil)
	conn.SendMessage()

	tf.fire()
	assert.Equal(t, 0, bytes.Count(tr.out.Bytes(), []byte("35=0\x01")))
}

func TestTestRequestEscalationAfterTwoSilentTicks(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Initiator, tr, tf)
	conn.Connect(app)
	tr.push(buildLogon(t, "10"))

	tr.out.Reset()
	tf.fire()
	tf.fire()

	assert.Contains(t, tr.out.String(), "35=1\x01")
}

func TestEndSessionSendsLogoutAndPeerReplyClosesTransport(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Initiator, tr, tf)
	conn.Connect(app)
	tr.push(buildLogon(t, "30"))

	conn.EndSession(app)
	assert.Equal(t, InDisconnected, conn.InState())
	assert.Equal(t, OutLogoutPending, conn.OutState())

	tr.push(buildLogout(t))
	assert.Equal(t, OutDisconnected, conn.OutState())
	assert.True(t, tr.closed)
}

func TestSeqResetAdvancesIncomingSeqWithoutSurfacingToApp(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Acceptor, tr, tf)
	conn.Connect(app)
	tr.push(buildLogon(t, "30"))

	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindSeqReset}, false)
	w.TagValue(TagNewSeqNo, []byte("50"))
	w.MessageDone(nil)

	before := len(app.sink.starts)
	tr.push(w.GetBytes())

	assert.Equal(t, uint32(50), conn.GetExpectedIncomingSeq())
	assert.Equal(t, before, len(app.sink.starts))
}

func TestChecksumFailureIsFatal(t *testing.T) {
	tr := &fakeTransport{}
	tf := &fakeTimerFactory{}
	app := &fakeApp{}
	conn := NewConnection(Acceptor, tr, tf)
	conn.Connect(app)

	logon := buildLogon(t, "30")
	idx := bytes.LastIndex(logon, []byte("10="))
	require.Greater(t, idx, 0)
	if logon[idx+3] == '9' {
		logon[idx+3] = '8'
	} else {
		logon[idx+3] = '9'
	}
	tr.push(logon)

	assert.Equal(t, InDisconnected, conn.InState())
	assert.Equal(t, OutDisconnected, conn.OutState())
	require.Len(t, app.errs, 1)
	assert.True(t, tr.closed)
}
