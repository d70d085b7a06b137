package fix

import "fmt"

// headerOrder is the exact sequence of required header tags before any
// application fields may appear.
var headerOrder = [3]uint32{TagBeginString, TagBodyLength, TagMsgType}

// ParseMessage attempts to consume exactly one complete FIX message from
// buf, driving sink's three callbacks as fields are recognized (C2).
//
// Return values follow spec.md's Ok(Some)/Ok(None)/Err shape, adapted to
// Go: done=false means the buffer ended mid-message and the caller should
// retry with more bytes once they arrive (the parser keeps no state
// between calls — it always restarts from buf[0]); done=true with err==nil
// means consumed bytes were a complete, checksum-verified message;
// done=true with err!=nil is a permanent malformation and the caller must
// terminate the session.
func ParseMessage(buf []byte, sink Sink, classify AppTypeClassifier) (consumed int, done bool, err error) {
	var sum uint32
	pos := 0

	for _, expected := range headerOrder {
		f, n, ok, ferr := scanField(buf[pos:])
		if ferr != nil {
			return 0, true, ferr
		}
		if !ok {
			return 0, false, nil
		}
		if f.Tag != expected {
			return 0, true, fmt.Errorf("%w: expected %d got %d", ErrMisplacedHeaderTag, expected, f.Tag)
		}
		if expected == TagBeginString && string(f.Value) != BeginString {
			return 0, true, fmt.Errorf("%w: unsupported begin string %q", ErrMisplacedHeaderTag, f.Value)
		}
		sum += f.ByteSum
		pos += n

		if expected == TagMsgType {
			msgType := Classify(f.Value, classify)
			sink.MessageStart(msgType, true)
		}
	}

	for {
		f, n, ok, ferr := scanField(buf[pos:])
		if ferr != nil {
			return 0, true, ferr
		}
		if !ok {
			return 0, false, nil
		}

		if f.Tag != TagCheckSum {
			sum += f.ByteSum
			pos += n
			sink.TagValue(f.Tag, f.Value)
			continue
		}

		pos += n
		claimed, perr := parseDecimal(f.Value)
		if perr != nil {
			cerr := fmt.Errorf("%w: %v", ErrChecksumMismatch, perr)
			sink.MessageDone(cerr)
			return 0, true, cerr
		}

		computed := sum % 256
		if computed == claimed {
			sink.MessageDone(nil)
			return pos, true, nil
		}

		cerr := fmt.Errorf("%w: computed %d != claimed %d", ErrChecksumMismatch, computed, claimed)
		sink.MessageDone(cerr)
		return 0, true, cerr
	}
}

func parseDecimal(v []byte) (uint32, error) {
	if len(v) == 0 {
		return 0, fmt.Errorf("empty checksum value")
	}
	var n uint32
	for _, b := range v {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("non-digit in checksum: %q", b)
		}
		n = n*10 + uint32(b-'0')
	}
	return n, nil
}
