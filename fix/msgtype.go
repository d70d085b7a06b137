package fix

// Kind is the flat classification of a FIX MsgType. The original design
// parameterized the application-custom variant over a generic type; this
// implementation keeps the classifier's decision (recognized application
// type or not) but carries the raw bytes instead of a type parameter, so
// the application decodes AppCustom downstream without it leaking into
// every signature in the codec.
type Kind int

const (
	KindLogon Kind = iota
	KindLogout
	KindSeqReset
	KindHeartbeat
	KindTestRequest
	KindResendRequest
	KindAppCustom
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindLogon:
		return "Logon"
	case KindLogout:
		return "Logout"
	case KindSeqReset:
		return "SeqReset"
	case KindHeartbeat:
		return "Heartbeat"
	case KindTestRequest:
		return "TestRequest"
	case KindResendRequest:
		return "ResendRequest"
	case KindAppCustom:
		return "AppCustom"
	default:
		return "Unknown"
	}
}

// MsgType is the parsed value of tag 35.
type MsgType struct {
	Kind Kind
	Raw  []byte // the bytes that were classified; meaningful for AppCustom/Unknown
}

// AppTypeClassifier is supplied by the embedding application: given the raw
// MsgType bytes for a message that isn't one of the six session-level
// types, it reports whether the application recognizes it.
type AppTypeClassifier func(raw []byte) bool

var sessionLevelBytes = map[string]Kind{
	"A": KindLogon,
	"5": KindLogout,
	"4": KindSeqReset,
	"0": KindHeartbeat,
	"1": KindTestRequest,
	"2": KindResendRequest,
}

// Classify maps raw MsgType bytes to a Kind. Session-level types are
// recognized unconditionally; anything else is delegated to the
// application's classifier and becomes AppCustom or, failing that, Unknown.
func Classify(raw []byte, isAppType AppTypeClassifier) MsgType {
	if kind, ok := sessionLevelBytes[string(raw)]; ok {
		return MsgType{Kind: kind, Raw: raw}
	}
	if isAppType != nil && isAppType(raw) {
		return MsgType{Kind: KindAppCustom, Raw: raw}
	}
	return MsgType{Kind: KindUnknown, Raw: raw}
}

// IsSessionLevel reports whether this MsgType is one of the six
// session-level variants fixed by the protocol.
func (m MsgType) IsSessionLevel() bool {
	switch m.Kind {
	case KindLogon, KindLogout, KindSeqReset, KindHeartbeat, KindTestRequest, KindResendRequest:
		return true
	default:
		return false
	}
}

// Bytes renders the MsgType back to wire form. For the six named variants
// this is the fixed single-character code; for AppCustom/Unknown it is the
// raw bytes the classifier saw.
func (m MsgType) Bytes() []byte {
	switch m.Kind {
	case KindLogon:
		return []byte("A")
	case KindLogout:
		return []byte("5")
	case KindSeqReset:
		return []byte("4")
	case KindHeartbeat:
		return []byte("0")
	case KindTestRequest:
		return []byte("1")
	case KindResendRequest:
		return []byte("2")
	default:
		return m.Raw
	}
}
