package fix

import "time"

// Role fixes, at construction, which side opens the transport and which
// side sends the first Logon.
type Role int

const (
	Initiator Role = iota
	Acceptor
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "acceptor"
}

// Transport is the byte-stream contract the core consumes (C6). The
// concrete transport (TCP socket, in-memory test buffer) is an external
// collaborator; the core never owns more than one at a time and never
// assumes concurrent calls into it.
type Transport interface {
	// Connect opens the underlying stream (dialing or listening, per the
	// transport's own configuration) and invokes onReady once it is
	// readable/writable, or with a non-nil error if it never becomes so.
	Connect(onReady func(error))

	// View returns a read-only slice of currently buffered incoming
	// bytes. It may be empty.
	View() []byte

	// Consume advances the incoming buffer by n bytes (n <= len(View())).
	Consume(n int)

	// Write tries to send buf and returns the number of bytes actually
	// accepted (0..=len(buf)); the remainder is retried by the writer.
	Write(buf []byte) (accepted int)

	// OnRead registers a one-shot callback invoked when new bytes may be
	// available to View.
	OnRead(callback func())

	// Close tears down the stream. Any in-flight OnRead callback fires at
	// most once more, with an empty view.
	Close() error
}

// TimerHandle is returned by TimerFactory.SetTimeout; Cancel guarantees no
// further invocations after it returns.
type TimerHandle interface {
	Cancel()
}

// TimerFactory is the cancelable periodic-timer contract the core
// consumes (C6).
type TimerFactory interface {
	// SetTimeout arranges for onTimeout to fire every d until the
	// returned handle is canceled.
	SetTimeout(onTimeout func(), d time.Duration) TimerHandle
}

// RequestDirection distinguishes an outbound session message the
// application must populate (Out) from an inbound one it is only being
// notified about (In).
type RequestDirection int

const (
	DirOut RequestDirection = iota
	DirIn
)

// SessionRequestKind names which session-level message a SessionRequest
// concerns.
type SessionRequestKind int

const (
	ReqLogon SessionRequestKind = iota
	ReqLogout
)

// SessionRequest is passed to Application.OnRequest whenever the engine
// needs the application either to populate an outbound session message
// (Direction==DirOut — the application calls Connection.OutStream() and
// writes any extra tags before the engine flushes it) or to observe one
// that was just received (Direction==DirIn — Fields holds the parsed
// tags). Fields is nil for DirOut requests.
type SessionRequest struct {
	Direction RequestDirection
	Kind      SessionRequestKind
	Fields    *SessionFields
}

// Application is the callback interface the embedder implements (C7).
// It is a contract only — the core never implements business logic
// against it itself.
type Application interface {
	// OnRequest is invoked when the engine needs the application to
	// populate or observe a session-level message.
	OnRequest(req SessionRequest, conn *Connection)

	// OnMessagePending is invoked when the engine wants the application
	// to drive a read (new bytes are available on the transport).
	OnMessagePending(conn *Connection)

	// InStream returns the sink that receives application-level
	// MessageStart/TagValue/MessageDone callbacks.
	InStream() Sink

	// IsAppMsgType reports whether raw is an application-level MsgType
	// this embedder recognizes; it is the flattened form of the
	// original design's generic FixAppMsgType.lookup.
	IsAppMsgType(raw []byte) bool

	// OnError is invoked once, immediately before the transport is torn
	// down, whenever the engine hits an unrecoverable parse or transport
	// failure (the flattened form of the original design's separate
	// error-channel trait).
	OnError(err error, conn *Connection)
}
