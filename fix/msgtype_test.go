package fix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySessionLevelWinsOverAppClassifier(t *testing.T) {
	mt := Classify([]byte("A"), func([]byte) bool { return true })
	assert.Equal(t, KindLogon, mt.Kind)
	assert.True(t, mt.IsSessionLevel())
}

func TestClassifyAppCustom(t *testing.T) {
	mt := Classify([]byte("D"), func(raw []byte) bool { return string(raw) == "D" })
	assert.Equal(t, KindAppCustom, mt.Kind)
	assert.False(t, mt.IsSessionLevel())
	assert.Equal(t, []byte("D"), mt.Raw)
}

func TestClassifyUnknown(t *testing.T) {
	mt := Classify([]byte("Z"), func([]byte) bool { return false })
	assert.Equal(t, KindUnknown, mt.Kind)
}

func TestClassifyNilClassifier(t *testing.T) {
	mt := Classify([]byte("D"), nil)
	assert.Equal(t, KindUnknown, mt.Kind)
}

func TestMsgTypeBytesRoundTrip(t *testing.T) {
	for _, raw := range []string{"A", "5", "4", "0", "1", "2"} {
		mt := Classify([]byte(raw), nil)
		assert.Equal(t, raw, string(mt.Bytes()))
	}
}

func TestMsgTypeBytesAppCustomUsesRaw(t *testing.T) {
	mt := Classify([]byte("D"), func([]byte) bool { return true })
	assert.Equal(t, []byte("D"), mt.Bytes())
}
