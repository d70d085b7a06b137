package fix

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records every callback invocation for assertions.
type captureSink struct {
	starts []MsgType
	tags   map[uint32][]byte
	done   []error
}

func (c *captureSink) MessageStart(mt MsgType, replayable bool) {
	c.starts = append(c.starts, mt)
	c.tags = make(map[uint32][]byte)
}
func (c *captureSink) TagValue(tag uint32, value []byte) {
	c.tags[tag] = append([]byte(nil), value...)
}
func (c *captureSink) MessageDone(err error) { c.done = append(c.done, err) }

func buildAppMessage(t *testing.T) []byte {
	t.Helper()
	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindAppCustom, Raw: []byte("D")}, true)
	w.TagValue(TagMsgSeqNum, []byte("7"))
	w.TagValue(11, []byte("ORD1"))
	w.MessageDone(nil)
	return append([]byte(nil), w.GetBytes()...)
}

func isOrderType(raw []byte) bool { return string(raw) == "D" }

func TestParseMessageRoundTrip(t *testing.T) {
	raw := buildAppMessage(t)
	var sink captureSink
	consumed, done, err := ParseMessage(raw, &sink, isOrderType)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, len(raw), consumed)
	require.Len(t, sink.starts, 1)
	assert.Equal(t, KindAppCustom, sink.starts[0].Kind)
	assert.Equal(t, []byte("ORD1"), sink.tags[11])
	require.Len(t, sink.done, 1)
	assert.NoError(t, sink.done[0])
}

func TestParseMessageIncompleteBuffer(t *testing.T) {
	raw := buildAppMessage(t)
	var sink captureSink
	_, done, err := ParseMessage(raw[:len(raw)-5], &sink, isOrderType)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, sink.done)
}

func TestParseMessageRestartsCleanlyOnMoreBytes(t *testing.T) {
	raw := buildAppMessage(t)
	var sink captureSink

	short := raw[:len(raw)-5]
	_, done, err := ParseMessage(short, &sink, isOrderType)
	require.NoError(t, err)
	require.False(t, done)

	consumed, done, err := ParseMessage(raw, &sink, isOrderType)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, len(raw), consumed)
}

func TestParseMessageChecksumMismatch(t *testing.T) {
	raw := buildAppMessage(t)
	idx := bytes.LastIndex(raw, []byte("10="))
	require.Greater(t, idx, 0)
	mutated := append([]byte(nil), raw...)
	mutated[idx+3] = '9'
	if mutated[idx+3] == raw[idx+3] {
		mutated[idx+3] = '8'
	}

	var sink captureSink
	_, done, err := ParseMessage(mutated, &sink, isOrderType)
	require.True(t, done)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	require.Len(t, sink.done, 1)
	assert.Error(t, sink.done[0])
}

func TestParseMessageMisplacedHeaderTag(t *testing.T) {
	var sink captureSink
	_, done, err := ParseMessage(soh("35=A|8=FIX.4.2|"), &sink, isOrderType)
	require.True(t, done)
	assert.ErrorIs(t, err, ErrMisplacedHeaderTag)
}

func TestParseMessageRejectsUnsupportedBeginString(t *testing.T) {
	var sink captureSink
	_, done, err := ParseMessage(soh("8=FIX.4.4|9=5|35=A|"), &sink, isOrderType)
	require.True(t, done)
	assert.ErrorIs(t, err, ErrMisplacedHeaderTag)
}

func TestParseMessageSessionLevelNotClassifiedAsAppCustom(t *testing.T) {
	w := NewWriter()
	w.MessageStart(MsgType{Kind: KindHeartbeat}, false)
	w.MessageDone(nil)
	raw := append([]byte(nil), w.GetBytes()...)

	var sink captureSink
	_, done, err := ParseMessage(raw, &sink, func([]byte) bool { return true })
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, sink.starts, 1)
	assert.Equal(t, KindHeartbeat, sink.starts[0].Kind)
}
