// Package upload tracks transfer progress for object uploads.
package upload

import (
	"io"
	"math"
	"sync"
)

// ProgressFunc receives the bytes sent so far and the total size.
type ProgressFunc func(loaded, total int64)

// Percent converts a progress event to a whole percentage in 0..100.
// Events with a zero loaded or total count carry no information and
// report ok=false.
func Percent(loaded, total int64) (percent int, ok bool) {
	if loaded <= 0 || total <= 0 {
		return 0, false
	}
	p := int(math.Round(float64(loaded) / float64(total) * 100))
	if p > 100 {
		p = 100
	}
	return p, true
}

// Tracker turns raw progress events into percentages and forwards only
// those that move forward, so a transfer never appears to go backwards.
type Tracker struct {
	mu       sync.Mutex
	last     int
	started  bool
	onChange func(percent int)
}

// NewTracker creates a tracker that calls onChange with each new percentage.
func NewTracker(onChange func(percent int)) *Tracker {
	return &Tracker{onChange: onChange}
}

// Update records a progress event. It has the ProgressFunc signature.
func (t *Tracker) Update(loaded, total int64) {
	p, ok := Percent(loaded, total)
	if !ok {
		return
	}

	t.mu.Lock()
	if t.started && p <= t.last {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.last = p
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(p)
	}
}

// Last returns the highest percentage reported so far.
func (t *Tracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Reader wraps a ReadSeeker and reports bytes read through a ProgressFunc.
// Seeking rewinds the count, so a client that re-reads the body for
// signing reports the second pass as well; Tracker filters that out.
type Reader struct {
	r        io.ReadSeeker
	total    int64
	read     int64
	progress ProgressFunc
}

// NewReader wraps r, whose full length is total.
func NewReader(r io.ReadSeeker, total int64, progress ProgressFunc) *Reader {
	return &Reader{r: r, total: total, progress: progress}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.progress != nil {
			r.progress(r.read, r.total)
		}
	}
	return n, err
}

// Seek implements io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.r.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	r.read = pos
	return pos, nil
}
