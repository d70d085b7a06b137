package fix

import "fmt"

// SOH is the FIX field separator.
const SOH byte = 0x01

const eq byte = '='

// Field is one parsed tag=value pair plus the byte-sum of everything
// consumed to produce it, including the trailing SOH.
type Field struct {
	Tag     uint32
	Value   []byte
	ByteSum uint32
}

// scanTagID reads ASCII decimal digits up to and including the '=' that
// terminates a tag id. It returns the parsed id, the number of bytes
// consumed (including the '='), and the sum of those bytes.
//
// ok=false means the slice ended before '=' was seen — the caller must
// wait for more bytes. err is set only for a malformed tag (a non-digit,
// non-'=' byte, or an id that overflows uint32).
func scanTagID(buf []byte) (id uint32, length int, byteSum uint32, ok bool, err error) {
	for i, b := range buf {
		byteSum += uint32(b)
		if b == eq {
			return id, i + 1, byteSum, true, nil
		}
		if b < '0' || b > '9' {
			return 0, 0, 0, false, fmt.Errorf("%w: %q", ErrNonDigitInTag, b)
		}
		d := uint32(b - '0')
		if id > (^uint32(0)-d)/10 {
			return 0, 0, 0, false, fmt.Errorf("tag id overflow")
		}
		id = id*10 + d
	}
	return 0, 0, 0, false, nil
}

// scanValue reads bytes up to and including the terminating SOH. The
// returned slice excludes the SOH; byteSum includes it.
func scanValue(buf []byte) (value []byte, byteSum uint32, ok bool) {
	for i, b := range buf {
		byteSum += uint32(b)
		if b == SOH {
			return buf[:i], byteSum, true
		}
	}
	return nil, 0, false
}

// scanField composes scanTagID and scanValue into one field, reporting how
// many bytes of buf were consumed.
func scanField(buf []byte) (f Field, consumed int, ok bool, err error) {
	id, idLen, idSum, ok, err := scanTagID(buf)
	if err != nil {
		return Field{}, 0, false, err
	}
	if !ok {
		return Field{}, 0, false, nil
	}
	value, valSum, ok := scanValue(buf[idLen:])
	if !ok {
		return Field{}, 0, false, nil
	}
	return Field{Tag: id, Value: value, ByteSum: idSum + valSum}, idLen + len(value) + 1, true, nil
}
