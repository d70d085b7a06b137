package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemBufPairDeliversWriteToPeer(t *testing.T) {
	a, b := NewMemBufPair()

	n := a.Write([]byte("8=FIX.4.2\x01"))
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte("8=FIX.4.2\x01"), b.View())
}

func TestMemBufOnReadFiresImmediatelyWhenDataAlreadyBuffered(t *testing.T) {
	a, b := NewMemBufPair()
	a.Write([]byte("x"))

	fired := false
	b.OnRead(func() { fired = true })
	assert.True(t, fired)
}

func TestMemBufOnReadFiresOnceOnNextWrite(t *testing.T) {
	a, b := NewMemBufPair()

	calls := 0
	b.OnRead(func() { calls++ })
	assert.Equal(t, 0, calls)

	a.Write([]byte("y"))
	assert.Equal(t, 1, calls)

	// Registered callback is one-shot: a second write with no re-registration
	// must not fire it again.
	a.Write([]byte("z"))
	assert.Equal(t, 1, calls)
}

func TestMemBufConsumeAdvancesBuffer(t *testing.T) {
	a, b := NewMemBufPair()
	a.Write([]byte("abcdef"))

	b.Consume(3)
	assert.Equal(t, []byte("def"), b.View())

	b.Consume(100)
	assert.Empty(t, b.View())
}

func TestMemBufWriteAfterCloseIsRejected(t *testing.T) {
	a, b := NewMemBufPair()
	a.Close()

	n := a.Write([]byte("late"))
	assert.Equal(t, 0, n)
	assert.Empty(t, b.View())
}
