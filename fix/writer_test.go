package fix

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterChecksumAndBodyLength(t *testing.T) {
	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindLogon}, false)
	w.TagValue(TagMsgSeqNum, []byte("1"))
	w.TagValue(TagSenderCompID, []byte("BUYER"))
	w.TagValue(TagTargetCompID, []byte("SELLER"))
	w.MessageDone(nil)

	raw := w.GetBytes()
	require.True(t, bytes.HasPrefix(raw, []byte("8=FIX.4.2\x01")))

	// Recompute checksum the naive way: sum every byte up to (not including)
	// the "10=" trailer, mod 256.
	idx := bytes.LastIndex(raw, []byte("10="))
	require.Greater(t, idx, 0)
	var sum uint32
	for _, b := range raw[:idx] {
		sum += uint32(b)
	}
	wantChecksum := sum % 256

	var sink captureSink
	consumed, done, err := ParseMessage(raw, &sink, nil)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, len(raw), consumed)

	// The trailer carries the recomputed sum, and BodyLength counts the
	// bytes from just after field 9's SOH up to the "10=" trailer.
	assert.Equal(t, fmt.Sprintf("%03d", wantChecksum), string(raw[idx+3:len(raw)-1]))
	nine := bytes.Index(raw, []byte("\x019=")) + 3
	nineEnd := nine + bytes.IndexByte(raw[nine:], SOH)
	assert.Equal(t, fmt.Sprintf("%03d", idx-(nineEnd+1)), string(raw[nine:nineEnd]))
}

func TestWriterDrainHeadPartial(t *testing.T) {
	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindHeartbeat}, false)
	w.MessageDone(nil)
	full := append([]byte(nil), w.GetBytes()...)
	require.Greater(t, len(full), 4)

	w.DrainHead(4)
	assert.Equal(t, full[4:], w.GetBytes())

	w.DrainHead(len(w.GetBytes()) + 10)
	assert.Equal(t, 0, w.Len())
}

func TestWriterBodyLengthExcludesHeaderFields(t *testing.T) {
	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindLogon}, false)
	w.MessageDone(nil)
	raw := w.GetBytes()

	// BodyLength covers everything from tag 35 onward up to (not including)
	// tag 10. For a bare Logon with no extra fields that's "35=A\x01".
	start := bytes.Index(raw, []byte("9="))
	require.GreaterOrEqual(t, start, 0)
	eq := bytes.IndexByte(raw[start:], '=')
	soh1 := bytes.IndexByte(raw[start+eq:], SOH)
	digits := raw[start+eq+1 : start+eq+soh1]
	assert.Equal(t, "005", string(digits))
}
