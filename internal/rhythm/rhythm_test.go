package rhythm

import (
	"testing"
	"time"
)

func TestAdaptiveSpeedTracksTapInterval(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()

	// tapCount+1 taps yield tapCount intervals; the first tap only sets the
	// reference time.
	for i := 0; i <= tapCount; i++ {
		now = now.Add(100 * time.Millisecond)
		a.LogTap(now)
	}

	got := a.AdaptiveSpeed(0, 10000)
	want := 100 * speedFactor
	if got < want-1 || got > want+1 {
		t.Errorf("expected ~%.1fms (100ms average * %.1f safety factor), got %.1fms", want, speedFactor, got)
	}
}

func TestAdaptiveSpeedClampsToRange(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()
	for i := 0; i < tapCount; i++ {
		now = now.Add(5 * time.Second)
		a.LogTap(now)
	}

	if got := a.AdaptiveSpeed(10, 50); got != 50 {
		t.Errorf("a long average should clamp to maxMs, got %.1f", got)
	}
	if got := a.AdaptiveSpeed(5000, 10000); got != 5000 {
		t.Errorf("a speed below minMs should clamp to minMs, got %.1f", got)
	}
}

func TestPauseResetsWindowInsteadOfAveragingOutlier(t *testing.T) {
	a := NewAnalyzer()
	now := time.Now()
	for i := 0; i < tapCount; i++ {
		now = now.Add(80 * time.Millisecond)
		a.LogTap(now)
	}

	now = now.Add(3 * time.Second) // a pause longer than pauseThreshold
	a.LogTap(now)

	got := a.AdaptiveSpeed(0, 100000)
	want := float64((3 * time.Second).Milliseconds()) * speedFactor
	if got < want-1 || got > want+1 {
		t.Errorf("a pause should reset the window to the pause delta, not blend it with the old average: got %.1f want ~%.1f", got, want)
	}
}
