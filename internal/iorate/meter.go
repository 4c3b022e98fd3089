// Package iorate implements the journal's I/O Rate Meter: an exponential
// decay estimator of current page-I/O rate, used to pace the Copy-Back
// Worker. This is the one component spec.md pins down with an exact
// numeric formula (100ms buckets, 0.66 decay factor, 100/27
// normalization); there is no teacher or pack equivalent to ground it on,
// so it is implemented directly from spec.md §4.8.
package iorate

import "time"

const (
	bucketDuration = 100 * time.Millisecond
	decayFactor    = 0.66
	normalization  = 100.0 / 27.0
	maxIdleBuckets = 24
)

// Meter is a process-private exponential-decay I/O rate estimator.
type Meter struct {
	now func() time.Time

	initialized bool
	bucket      int64
	value       float64
}

// New creates a Meter using the real wall clock.
func New() *Meter {
	return &Meter{now: time.Now}
}

// newWithClock is used by tests to control bucket boundaries deterministically.
func newWithClock(now func() time.Time) *Meter {
	return &Meter{now: now}
}

// Update applies delta (normally 1 per completed page I/O) and returns the
// normalized integer rate. Calling Update(0) just reads the current rate
// without recording any I/O.
func (m *Meter) Update(delta int) int {
	bucket := m.now().UnixNano() / int64(bucketDuration)

	if !m.initialized {
		m.bucket = bucket
		m.initialized = true
	} else if elapsed := bucket - m.bucket; elapsed > 0 {
		if elapsed > maxIdleBuckets {
			m.value = 0
		} else {
			for i := int64(0); i < elapsed; i++ {
				m.value *= decayFactor
			}
		}
		m.bucket = bucket
	}

	if delta != 0 {
		m.value += float64(delta)
	}

	return int(m.value * normalization)
}

// Read returns the current normalized rate without recording any I/O.
func (m *Meter) Read() int {
	return m.Update(0)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
