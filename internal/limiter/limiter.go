// Package limiter keeps hashing under a CPU budget by sleeping between
// digests in proportion to the time spent working.
package limiter

import (
	"runtime"
	"time"
)

// CPULimiter throttles CPU usage to a maximum percentage
type CPULimiter struct {
	maxPercent float64
	lastResume time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewCPULimiter creates a new CPU limiter. A maxPercent of 0 or >= 100
// disables throttling.
func NewCPULimiter(maxPercent float64) *CPULimiter {
	return &CPULimiter{
		maxPercent: maxPercent,
		lastResume: time.Now(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Enabled reports whether Throttle ever sleeps
func (l *CPULimiter) Enabled() bool {
	return l.maxPercent > 0 && l.maxPercent < 100
}

// Throttle is called between units of work. It sleeps long enough that the
// work done since the previous call makes up maxPercent of wall time.
func (l *CPULimiter) Throttle() {
	if !l.Enabled() {
		return
	}

	worked := l.now().Sub(l.lastResume)
	pause := time.Duration(float64(worked) * (100.0 - l.maxPercent) / l.maxPercent)
	if pause > 0 {
		l.sleep(pause)
	}
	l.lastResume = l.now()

	// Yield to other goroutines
	runtime.Gosched()
}

// SetMaxPercent updates the maximum CPU percentage
func (l *CPULimiter) SetMaxPercent(maxPercent float64) {
	l.maxPercent = maxPercent
}
