package fix

// Sink is the single three-callback interface both the parser and the
// writer drive. The original design split this across TagHandler, Stream,
// InChannel, OutChannel, ErrorChannel and SessionControl, each generic
// over the application's message-type parameter; this engine collapses
// all of that into one callback shape, selected by whoever owns the
// parse (the session engine, at MessageStart time).
type Sink interface {
	// MessageStart is called once per message, after tag 35 has been
	// classified. isReplayable is reserved for a future resend/gap-fill
	// subprotocol (see Design Notes): ParseMessage always passes true, the
	// session engine passes false for the session messages it writes, and
	// Writer ignores it.
	MessageStart(msgType MsgType, isReplayable bool)

	// TagValue is called once per field after the header, excluding the
	// trailing checksum field.
	TagValue(tag uint32, value []byte)

	// MessageDone is called exactly once per parse attempt that reached a
	// checksum field, with the verification result.
	MessageDone(err error)
}

// NullSink discards everything, for a parse whose callbacks need to go
// nowhere. The session engine does not use it: routingSink keeps the
// fields of a session-level message in SessionFields instead.
type NullSink struct{}

func (NullSink) MessageStart(MsgType, bool) {}
func (NullSink) TagValue(uint32, []byte)    {}
func (NullSink) MessageDone(error)          {}

// SessionFields accumulates the fields of an in-progress session-level
// message so the session engine (and the application, via a SessionRequest)
// can inspect them once MessageDone fires, without the parser knowing
// anything about session semantics.
type SessionFields struct {
	MsgType MsgType
	values  map[uint32][]byte
}

func newSessionFields(mt MsgType) *SessionFields {
	return &SessionFields{MsgType: mt, values: make(map[uint32][]byte, 8)}
}

func (s *SessionFields) set(tag uint32, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[tag] = cp
}

// Get returns the raw bytes for tag, if the message carried it.
func (s *SessionFields) Get(tag uint32) ([]byte, bool) {
	v, ok := s.values[tag]
	return v, ok
}

// routingSink is the session-routing sink from the Application contract
// (C7): it inspects MessageStart's MsgType and either swallows the rest
// of the message into scratch state for the session engine (session-level)
// or forwards every callback verbatim to the application's sink.
type routingSink struct {
	app     Sink
	current *SessionFields // non-nil while routing a session-level message
}

func newRoutingSink(app Sink) *routingSink {
	return &routingSink{app: app}
}

func (r *routingSink) MessageStart(msgType MsgType, isReplayable bool) {
	if msgType.IsSessionLevel() {
		r.current = newSessionFields(msgType)
		return
	}
	r.current = nil
	r.app.MessageStart(msgType, isReplayable)
}

func (r *routingSink) TagValue(tag uint32, value []byte) {
	if r.current != nil {
		r.current.set(tag, value)
		return
	}
	r.app.TagValue(tag, value)
}

func (r *routingSink) MessageDone(err error) {
	if r.current != nil {
		// Session-level messages are handled by the caller (the session
		// engine) after ParseMessage returns, via sessionResult below; the
		// application sink never sees these callbacks.
		return
	}
	r.app.MessageDone(err)
}

// sessionResult reports, after a successful parse through a routingSink,
// whether the parsed message was session-level and if so its fields.
func (r *routingSink) sessionResult() (*SessionFields, bool) {
	if r.current == nil {
		return nil, false
	}
	return r.current, true
}
