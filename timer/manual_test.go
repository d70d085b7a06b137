package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvanceFiresOncePerFullPeriod(t *testing.T) {
	m := NewManual()
	fires := 0
	m.SetTimeout(func() { fires++ }, 10*time.Second)

	m.Advance(9 * time.Second)
	assert.Equal(t, 0, fires)

	m.Advance(1 * time.Second)
	assert.Equal(t, 1, fires)
}

func TestManualAdvanceFiresMultipleTimesForMultiplePeriods(t *testing.T) {
	m := NewManual()
	fires := 0
	m.SetTimeout(func() { fires++ }, 5*time.Second)

	m.Advance(17 * time.Second)
	assert.Equal(t, 3, fires)
}

func TestManualCancelStopsFurtherFires(t *testing.T) {
	m := NewManual()
	fires := 0
	handle := m.SetTimeout(func() { fires++ }, 5*time.Second)

	m.Advance(5 * time.Second)
	assert.Equal(t, 1, fires)

	handle.Cancel()
	m.Advance(50 * time.Second)
	assert.Equal(t, 1, fires)
}
