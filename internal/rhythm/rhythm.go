// Package rhythm implements the adaptive-glide tempo estimator (spec.md
// §5's "last 8 inter-tap intervals"): a small moving-average of inter-onset
// deltas used to scale legato glide time to how fast the player is actually
// retriggering notes. Grounded in original_source's RhythmAnalyzer, an
// 8-slot circular buffer of millisecond deltas with a pause-reset rule and
// a 0.7 "safety factor" so the estimate runs a little ahead of the measured
// tempo rather than lagging it.
package rhythm

import (
	"sync"
	"time"
)

const tapCount = 8

// pauseThreshold: a gap longer than this is treated as a fresh start,
// not folded into the moving average as an outlier.
const pauseThreshold = 2 * time.Second

// speedFactor scales the measured average down so an adaptive glide feels
// snappier than the player's actual note-to-note tempo.
const speedFactor = 0.7

// Analyzer tracks one key's (or zone's) inter-tap rhythm. The zero value is
// not ready to use; call NewAnalyzer.
type Analyzer struct {
	mu         sync.Mutex
	intervals  [tapCount]time.Duration
	writeIndex int
	lastTap    time.Time
	hasTap     bool
}

// NewAnalyzer returns an Analyzer pre-filled with a neutral 200 ms interval,
// so AdaptiveSpeed has a sane answer before any taps are logged.
func NewAnalyzer() *Analyzer {
	a := &Analyzer{}
	for i := range a.intervals {
		a.intervals[i] = 200 * time.Millisecond
	}
	return a
}

// LogTap records a retrigger at now. A gap longer than pauseThreshold resets
// the whole window to that single delta rather than corrupting the average
// with one large outlier.
func (a *Analyzer) LogTap(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasTap {
		a.lastTap = now
		a.hasTap = true
		return
	}

	delta := now.Sub(a.lastTap)
	a.lastTap = now

	if delta > pauseThreshold {
		for i := range a.intervals {
			a.intervals[i] = delta
		}
		a.writeIndex = 0
		return
	}

	a.intervals[a.writeIndex] = delta
	a.writeIndex = (a.writeIndex + 1) % tapCount
}

// AdaptiveSpeed returns the moving average scaled by speedFactor, clamped to
// [minMs, maxMs].
func (a *Analyzer) AdaptiveSpeed(minMs, maxMs float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var sum time.Duration
	for _, iv := range a.intervals {
		sum += iv
	}
	avgMs := float64(sum/tapCount) / float64(time.Millisecond)
	speed := avgMs * speedFactor

	if speed < minMs {
		speed = minMs
	}
	if speed > maxMs {
		speed = maxMs
	}
	return speed
}
