package fix

// Well-known FIX 4.2 tag numbers the core cares about. The protocol defines
// many more; this engine only needs the header/trailer framing tags and the
// session-level fields it negotiates directly.
const (
	TagBeginString   = 8
	TagBodyLength    = 9
	TagMsgType       = 35
	TagCheckSum      = 10
	TagMsgSeqNum     = 34
	TagSenderCompID  = 49
	TagTargetCompID  = 56
	TagSendingTime   = 52
	TagHeartBtInt    = 108
	TagTestReqID     = 112
	TagNewSeqNo      = 36
	TagEncryptMethod = 98
)

// BeginString is the only FIX version this engine speaks.
const BeginString = "FIX.4.2"
