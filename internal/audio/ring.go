package audio

import "sync"

// DefaultRingCapacity buffers ~170 ms at 48 kHz, enough to ride out
// scheduling jitter between the capture and playback callbacks.
const DefaultRingCapacity = 8192

// Ring is a bounded FIFO of samples joining the capture callback to the
// playback callback. When full, the oldest samples are dropped so monitoring
// latency stays bounded. Safe for concurrent use by one writer and one reader.
type Ring struct {
	mu    sync.Mutex
	buf   []float32
	head  int // next read position
	count int
}

// NewRing returns a ring with the given capacity in samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Write appends samples, discarding the oldest when the ring is full.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf)
	for _, s := range samples {
		tail := (r.head + r.count) % n
		r.buf[tail] = s
		if r.count < n {
			r.count++
		} else {
			r.head = (r.head + 1) % n
		}
	}
}

// Read fills out with buffered samples, zero-filling whatever the ring
// cannot supply. Returns the number of real samples copied.
func (r *Ring) Read(out []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf)
	copied := min(len(out), r.count)
	for i := 0; i < copied; i++ {
		out[i] = r.buf[r.head]
		r.head = (r.head + 1) % n
	}
	r.count -= copied
	for i := copied; i < len(out); i++ {
		out[i] = 0
	}
	return copied
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Reset discards all buffered samples.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}
