package fix

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// InState is the incoming-direction state machine (§3).
type InState int

const (
	InDisconnected InState = iota
	InLogonPending
	InConnected
	InLogoutPending
)

func (s InState) String() string {
	switch s {
	case InLogonPending:
		return "LogonPending"
	case InConnected:
		return "Connected"
	case InLogoutPending:
		return "LogoutPending"
	default:
		return "Disconnected"
	}
}

// OutState is the outgoing-direction state machine (§3). Resending and
// Lagging are declared, per spec.md's Design Notes, but this engine never
// transitions into them — a full gap-fill/resend subprotocol is explicitly
// out of scope and left for a later revision.
type OutState int

const (
	OutDisconnected OutState = iota
	OutLogonPending
	OutConnected
	OutLogoutPending
	OutResending
	OutLagging
)

func (s OutState) String() string {
	switch s {
	case OutLogonPending:
		return "LogonPending"
	case OutConnected:
		return "Connected"
	case OutLogoutPending:
		return "LogoutPending"
	case OutResending:
		return "Resending"
	case OutLagging:
		return "Lagging"
	default:
		return "Disconnected"
	}
}

const defaultHeartbeatInterval = 30 * time.Second

// Connection is the dual state machine driving logon/logout negotiation,
// application message dispatch, and heartbeat policy over one Transport
// (C5). It owns its transport and writer buffer exclusively; it borrows,
// never owns, the Application callback, which is passed into each method
// rather than stored — except that Connect keeps a reference so that
// RequestDone, which takes no Application argument, can report a failure
// through OnError.
type Connection struct {
	role      Role
	transport Transport
	timers    TimerFactory
	writer    *Writer

	inState  InState
	outState OutState

	nextInSeq  uint32
	nextOutSeq uint32

	heartbeatInterval time.Duration
	heartbeatHandle   TimerHandle
	outboundActivity  bool
	ticksSinceInbound int
	inboundThisTick   bool

	pendingOutReq *SessionRequestKind

	outLimiter *rate.Limiter // nil means unlimited

	app Application // set by Connect; RequestDone reports failures through it

	logf func(format string, args ...interface{})
}

// NewConnection builds a Connection in (Disconnected, Disconnected),
// ready for Connect.
func NewConnection(role Role, transport Transport, timers TimerFactory) *Connection {
	return &Connection{
		role:      role,
		transport: transport,
		timers:    timers,
		writer:    NewWriter(),
		logf:      func(string, ...interface{}) {},
	}
}

// SetLogf installs a printf-style logging hook; nil-safe default is a no-op.
func (c *Connection) SetLogf(logf func(format string, args ...interface{})) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	c.logf = logf
}

// SetOutboundLimiter installs a token-bucket throttle on the writer's
// flush path (A3). A nil limiter disables throttling. Because the core
// must never block, the limiter is consulted non-blockingly: if no token
// is available the frame stays buffered in the writer and is retried on
// the next flush attempt, the same way a short transport write is retried.
func (c *Connection) SetOutboundLimiter(limiter *rate.Limiter) {
	c.outLimiter = limiter
}

func (c *Connection) InState() InState   { return c.inState }
func (c *Connection) OutState() OutState { return c.outState }
func (c *Connection) Role() Role         { return c.role }

// OutStream returns the writer so the application or session code can
// build outbound messages (get_out_stream in spec.md).
func (c *Connection) OutStream() *Writer { return c.writer }

// ForceExpectedIncomingSeq administratively overrides next_in_seq.
func (c *Connection) ForceExpectedIncomingSeq(n uint32) { c.nextInSeq = n }

// GetExpectedIncomingSeq reads next_in_seq.
func (c *Connection) GetExpectedIncomingSeq() uint32 { return c.nextInSeq }

// NextOutSeq reads next_out_seq, for diagnostics.
func (c *Connection) NextOutSeq() uint32 { return c.nextOutSeq }

// Connect opens the transport per this connection's Role and begins the
// logon negotiation (§4.5).
func (c *Connection) Connect(app Application) {
	c.app = app

	switch c.role {
	case Initiator:
		c.outState = OutLogonPending
		c.inState = InDisconnected
		c.transport.Connect(func(err error) {
			if err != nil {
				c.fatal(app, fmt.Errorf("transport connect: %w", err))
				return
			}
			c.logf("fix: transport open, sending logon as initiator")
			c.beginOutboundSessionMsg(KindLogon, ReqLogon)
			app.OnRequest(SessionRequest{Direction: DirOut, Kind: ReqLogon}, c)
			c.transport.OnRead(func() { app.OnMessagePending(c) })
		})
	case Acceptor:
		c.inState = InLogonPending
		c.outState = OutDisconnected
		c.transport.Connect(func(err error) {
			if err != nil {
				c.fatal(app, fmt.Errorf("transport connect: %w", err))
				return
			}
			c.logf("fix: transport open, awaiting logon as acceptor")
			c.transport.OnRead(func() { app.OnMessagePending(c) })
		})
	}
}

// EndSession initiates a graceful logout (§4.5).
func (c *Connection) EndSession(app Application) {
	if c.inState == InDisconnected {
		return
	}
	c.inState = InDisconnected
	c.outState = OutLogoutPending
	c.beginOutboundSessionMsg(KindLogout, ReqLogout)
	app.OnRequest(SessionRequest{Direction: DirOut, Kind: ReqLogout}, c)
}

// RequestDone is called by the application once it has populated a
// requested outbound session message: it flushes the writer and advances
// the outgoing state machine.
func (c *Connection) RequestDone(err error) {
	if c.pendingOutReq == nil {
		c.logf("fix: RequestDone called with no pending request")
		return
	}
	kind := *c.pendingOutReq
	c.pendingOutReq = nil

	if err != nil {
		c.fatal(c.app, fmt.Errorf("application failed to populate outbound %v: %w", kind, err))
		return
	}

	c.writer.MessageDone(nil)
	c.flushWriter()
	c.nextOutSeq++

	switch kind {
	case ReqLogon:
		if c.role == Acceptor {
			c.outState = OutConnected
		}
		// Initiator: stays LogonPending until the peer's Logon arrives;
		// see handleLogon.
	case ReqLogout:
		// Stays LogoutPending until the peer's Logout arrives; see
		// handleLogout, which moves it to Disconnected.
	}
}

// SendMessage flushes a writer frame the caller already completed
// directly via OutStream() (MessageStart/TagValue/MessageDone), advancing
// next_out_seq. Use this for application-level outbound messages; session
// messages go through the Connect/EndSession/RequestDone path instead.
func (c *Connection) SendMessage() {
	c.flushWriter()
	c.nextOutSeq++
}

// ReadFixMessage pulls bytes from the transport and parses as many
// complete messages as are currently buffered (§4.5). Incomplete data
// rearms the read callback; a malformed message is fatal.
func (c *Connection) ReadFixMessage(app Application) {
	for {
		view := c.transport.View()
		if len(view) == 0 {
			c.transport.OnRead(func() { app.OnMessagePending(c) })
			return
		}

		routing := newRoutingSink(app.InStream())
		consumed, done, err := ParseMessage(view, routing, app.IsAppMsgType)
		if !done {
			c.transport.OnRead(func() { app.OnMessagePending(c) })
			return
		}
		if err != nil {
			c.fatal(app, err)
			return
		}

		c.transport.Consume(consumed)
		c.inboundThisTick = true

		if sf, ok := routing.sessionResult(); ok {
			c.handleSessionMessage(app, sf)
		} else {
			c.nextInSeq++
		}
	}
}

func (c *Connection) handleSessionMessage(app Application, sf *SessionFields) {
	switch sf.MsgType.Kind {
	case KindLogon:
		c.handleLogon(app, sf)
	case KindLogout:
		c.handleLogout(app, sf)
	case KindHeartbeat:
		// Inbound activity already recorded; no other action required.
	case KindTestRequest:
		c.handleTestRequest(sf)
	case KindSeqReset:
		c.handleSeqReset(sf)
	case KindResendRequest:
		c.logf("fix: resend request received, ignored (resend subprotocol out of scope)")
	}
}

func (c *Connection) handleLogon(app Application, sf *SessionFields) {
	c.inState = InConnected

	if raw, ok := sf.Get(TagHeartBtInt); ok {
		if secs, err := parseDecimal(raw); err == nil {
			c.heartbeatInterval = time.Duration(secs) * time.Second
		}
	}
	c.armHeartbeatTimer(app)

	switch {
	case c.role == Acceptor && c.outState == OutDisconnected:
		c.beginOutboundSessionMsg(KindLogon, ReqLogon)
		app.OnRequest(SessionRequest{Direction: DirOut, Kind: ReqLogon}, c)
	case c.outState == OutLogonPending:
		c.outState = OutConnected
	}
	// An acceptor's Logon reply above goes out after the timer was armed;
	// it does not count as outbound activity for the first tick.
	c.outboundActivity = false

	app.OnRequest(SessionRequest{Direction: DirIn, Kind: ReqLogon, Fields: sf}, c)
}

func (c *Connection) handleLogout(app Application, sf *SessionFields) {
	c.inState = InDisconnected

	if c.outState != OutDisconnected && c.outState != OutLogoutPending {
		c.beginOutboundSessionMsg(KindLogout, ReqLogout)
		app.OnRequest(SessionRequest{Direction: DirOut, Kind: ReqLogout}, c)
	}
	c.outState = OutDisconnected

	app.OnRequest(SessionRequest{Direction: DirIn, Kind: ReqLogout, Fields: sf}, c)
	c.closeConnection()
}

func (c *Connection) handleTestRequest(sf *SessionFields) {
	testReqID, _ := sf.Get(TagTestReqID)
	c.writer.MessageStart(MsgType{Kind: KindHeartbeat}, false)
	if testReqID != nil {
		c.writer.TagValue(TagTestReqID, testReqID)
	}
	c.writer.MessageDone(nil)
	c.flushWriter()
	c.nextOutSeq++
}

func (c *Connection) handleSeqReset(sf *SessionFields) {
	raw, ok := sf.Get(TagNewSeqNo)
	if !ok {
		return
	}
	n, err := parseDecimal(raw)
	if err != nil {
		c.logf("fix: malformed SeqReset NewSeqNo: %v", err)
		return
	}
	c.nextInSeq = n
}

func (c *Connection) beginOutboundSessionMsg(kind Kind, reqKind SessionRequestKind) {
	c.writer.MessageStart(MsgType{Kind: kind}, false)
	k := reqKind
	c.pendingOutReq = &k
}

func (c *Connection) flushWriter() {
	for c.writer.Len() > 0 {
		if c.outLimiter != nil && !c.outLimiter.AllowN(time.Now(), 1) {
			return // retry on next opportunity; bytes remain buffered
		}
		bytes := c.writer.GetBytes()
		n := c.transport.Write(bytes)
		c.writer.DrainHead(n)
		if n > 0 {
			c.outboundActivity = true
		}
		if n < len(bytes) {
			return // short write; retry later
		}
	}
}

func (c *Connection) armHeartbeatTimer(app Application) {
	if c.heartbeatHandle != nil {
		c.heartbeatHandle.Cancel()
	}
	interval := c.heartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	c.outboundActivity = false
	c.inboundThisTick = false
	c.ticksSinceInbound = 0
	c.heartbeatHandle = c.timers.SetTimeout(func() { c.onHeartbeatTick() }, interval)
}

// onHeartbeatTick implements the heartbeat/TestRequest policy of §4.6: emit
// a Heartbeat when nothing has gone out since the last tick, and escalate
// to a TestRequest once two consecutive ticks see no inbound traffic.
func (c *Connection) onHeartbeatTick() {
	if !c.outboundActivity {
		c.writer.MessageStart(MsgType{Kind: KindHeartbeat}, false)
		c.writer.MessageDone(nil)
		c.flushWriter()
		c.nextOutSeq++
	}
	c.outboundActivity = false

	if c.inboundThisTick {
		c.ticksSinceInbound = 0
	} else {
		c.ticksSinceInbound++
	}
	c.inboundThisTick = false

	if c.ticksSinceInbound >= 2 {
		c.writer.MessageStart(MsgType{Kind: KindTestRequest}, false)
		c.writer.TagValue(TagTestReqID, []byte(fmt.Sprintf("TEST%d", c.nextOutSeq)))
		c.writer.MessageDone(nil)
		c.flushWriter()
		c.nextOutSeq++
		c.ticksSinceInbound = 0
	}
}

func (c *Connection) closeConnection() {
	if c.heartbeatHandle != nil {
		c.heartbeatHandle.Cancel()
		c.heartbeatHandle = nil
	}
	c.transport.Close()
}

// fatal handles a parse-level or transport-level failure: both state
// machines move to Disconnected, the application is notified, and the
// transport is closed (§7).
func (c *Connection) fatal(app Application, err error) {
	c.logf("fix: fatal session error: %v", err)
	c.inState = InDisconnected
	c.outState = OutDisconnected
	if c.heartbeatHandle != nil {
		c.heartbeatHandle.Cancel()
		c.heartbeatHandle = nil
	}
	if app != nil {
		app.OnError(&SessionError{Err: err}, c)
	}
	c.transport.Close()
}
