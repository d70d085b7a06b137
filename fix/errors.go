package fix

import "errors"

// Sentinel errors for the taxonomy in the design document. ParseMessage
// wraps these with fmt.Errorf("%w: ...") context where useful; callers
// should use errors.Is against these to classify a failure.
var (
	// ErrMisplacedHeaderTag is returned when tag 8, 9 or 35 does not
	// appear next, in that order, at the start of a message.
	ErrMisplacedHeaderTag = errors.New("fix: misplaced header tag")

	// ErrNonDigitInTag is returned when a tag id contains a byte that is
	// not an ASCII digit or '='.
	ErrNonDigitInTag = errors.New("fix: non-digit in tag")

	// ErrChecksumMismatch is returned when the computed checksum does not
	// match the claimed value in tag 10.
	ErrChecksumMismatch = errors.New("fix: checksum mismatch")
)

// SessionError wraps the error that ended a session (a parse failure, a
// transport connect failure, or an application's failure to populate a
// session message); it is what Application.OnError receives.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string { return e.Err.Error() }
func (e *SessionError) Unwrap() error { return e.Err }
