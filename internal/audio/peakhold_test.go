package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeakHolderHoldsPeak(t *testing.T) {
	p := NewPeakHolder()
	start := time.Now()

	assert.Equal(t, 80.0, p.Update(80, start))

	// Lower levels inside the hold window keep the peak.
	assert.Equal(t, 80.0, p.Update(20, start.Add(time.Second)))
	assert.Equal(t, 80.0, p.Update(10, start.Add(2*time.Second)))
}

func TestPeakHolderHigherLevelReplacesPeak(t *testing.T) {
	p := NewPeakHolder()
	start := time.Now()

	p.Update(50, start)
	assert.Equal(t, 90.0, p.Update(90, start.Add(time.Second)))
}

func TestPeakHolderExpires(t *testing.T) {
	p := NewPeakHolder()
	start := time.Now()

	p.Update(80, start)
	held := p.Update(30, start.Add(DefaultPeakHoldDuration+time.Millisecond))
	assert.Equal(t, 30.0, held)
}

func TestPeakHolderSetHoldDuration(t *testing.T) {
	p := NewPeakHolder()
	p.SetHoldDuration(100 * time.Millisecond)
	start := time.Now()

	p.Update(80, start)
	assert.Equal(t, 20.0, p.Update(20, start.Add(200*time.Millisecond)))
}

func TestPeakHolderReset(t *testing.T) {
	p := NewPeakHolder()
	start := time.Now()

	p.Update(80, start)
	p.Reset()

	assert.Equal(t, 5.0, p.Update(5, start.Add(time.Millisecond)))
}
