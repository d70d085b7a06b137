package fix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func soh(s string) []byte {
	b := []byte(s)
	for i, c := range b {
		if c == '|' {
			b[i] = SOH
		}
	}
	return b
}

func TestScanFieldComplete(t *testing.T) {
	buf := soh("35=A|")
	f, n, ok, err := scanField(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, uint32(35), f.Tag)
	assert.Equal(t, []byte("A"), f.Value)
}

func TestScanFieldIncompleteTag(t *testing.T) {
	_, _, ok, err := scanField([]byte("3"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanFieldIncompleteValue(t *testing.T) {
	_, _, ok, err := scanField([]byte("35=A"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanFieldNonDigitTag(t *testing.T) {
	_, _, _, err := scanField(soh("3x=A|"))
	assert.Error(t, err)
}

func TestScanFieldByteSumIncludesDelimiters(t *testing.T) {
	buf := soh("8=9|")
	f, _, ok, err := scanField(buf)
	require.NoError(t, err)
	require.True(t, ok)
	var want uint32
	for _, b := range buf {
		want += uint32(b)
	}
	assert.Equal(t, want, f.ByteSum)
}
