// Package strum implements the strum scheduler (spec.md §4.7): a
// time-ordered queue of pending chord note-ons, drained by a 1ms ticker,
// supporting cancellation, release-duration pruning, and humanized timing.
// Grounded in the teacher's tea.Tick playback scheduling
// (internal/input/playback.go), adapted from a single fixed-tempo grid
// clock to a free-running per-note target-time queue.
package strum

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"keyzone/internal/types"
)

const tickInterval = time.Millisecond

// pendingNote mirrors spec.md §3.8's pending_strum_queue entry.
type pendingNote struct {
	targetTime   time.Time
	note         int
	velocity     int
	channel      int
	source       types.InputID
	allowSustain bool
}

// NoteSink receives each note as its scheduled time arrives. The session
// coordinator wires this to the MIDI port and the voice manager.
type NoteSink func(source types.InputID, channel, note, velocity int, allowSustain bool)

// Scheduler owns the pending strum queue and the per-source release
// bookkeeping needed to prune notes after a key-up. The zero value is not
// usable; use NewScheduler.
type Scheduler struct {
	sink NoteSink

	mu               sync.Mutex
	queue            []pendingNote
	releasedAt       map[types.InputID]time.Time
	releaseDuration  map[types.InputID]time.Duration
	sustainThrough   map[types.InputID]bool
	alternateUp      bool // AutoAlternating per-scheduler toggle state

	ticker *time.Ticker
	stop   chan struct{}
}

// NewScheduler constructs a Scheduler delivering due notes to sink and
// starts its 1ms drain ticker. Call Close to stop it.
func NewScheduler(sink NoteSink) *Scheduler {
	s := &Scheduler{
		sink:            sink,
		releasedAt:      make(map[types.InputID]time.Time),
		releaseDuration: make(map[types.InputID]time.Duration),
		sustainThrough:  make(map[types.InputID]bool),
		ticker:          time.NewTicker(tickInterval),
		stop:            make(chan struct{}),
	}
	go s.tickLoop()
	return s
}

func (s *Scheduler) tickLoop() {
	for {
		select {
		case <-s.stop:
			return
		case now := <-s.ticker.C:
			s.tick(now)
		}
	}
}

// Close drains the tick goroutine.
func (s *Scheduler) Close() {
	s.ticker.Stop()
	close(s.stop)
}

// Pattern mirrors types.StrumPattern for this package's public API.
type Pattern = types.StrumPattern

// TriggerStrum implements spec.md §4.7's trigger_strum.
func (s *Scheduler) TriggerStrum(notes, velocities []int, channel int, speedMs float64, source types.InputID, allowSustain bool, pattern Pattern, humanizeMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := append([]int(nil), notes...)
	orderedVel := append([]int(nil), velocities...)

	up := pattern == types.StrumUp
	if pattern == types.StrumAutoAlternating {
		up = s.alternateUp
		s.alternateUp = !s.alternateUp
	}
	if up {
		reverseInts(ordered)
		reverseInts(orderedVel)
	}

	now := time.Now()
	for i, note := range ordered {
		vel := 100
		if i < len(orderedVel) {
			vel = orderedVel[i]
		}
		jitter := time.Duration(0)
		if humanizeMs > 0 {
			jitter = time.Duration((rand.Float64()*2 - 1) * humanizeMs * float64(time.Millisecond))
		}
		target := now.Add(time.Duration(float64(i)*speedMs*float64(time.Millisecond)) + jitter)
		s.queue = append(s.queue, pendingNote{
			targetTime: target, note: note, velocity: vel, channel: channel,
			source: source, allowSustain: allowSustain,
		})
	}
	sort.Slice(s.queue, func(i, j int) bool { return s.queue[i].targetTime.Before(s.queue[j].targetTime) })
}

func reverseInts(v []int) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

// MarkSourceReleased implements spec.md §4.7's mark_source_released:
// queued notes for source beyond release_time+duration_ms are pruned on
// the next tick, unless sustainThrough.
func (s *Scheduler) MarkSourceReleased(source types.InputID, durationMs float64, sustainThrough bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releasedAt[source] = time.Now()
	s.releaseDuration[source] = time.Duration(durationMs * float64(time.Millisecond))
	s.sustainThrough[source] = sustainThrough
}

// CancelPending drops all queued notes for source.
func (s *Scheduler) CancelPending(source types.InputID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	for _, n := range s.queue {
		if n.source != source {
			kept = append(kept, n)
		}
	}
	s.queue = kept
	delete(s.releasedAt, source)
	delete(s.releaseDuration, source)
	delete(s.sustainThrough, source)
}

// CancelAll drains the entire queue; used by the voice manager's Panic.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.releasedAt = make(map[types.InputID]time.Time)
	s.releaseDuration = make(map[types.InputID]time.Duration)
	s.sustainThrough = make(map[types.InputID]bool)
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []pendingNote
	kept := s.queue[:0]
	for _, n := range s.queue {
		if pruned, ok := s.releasedAt[n.source]; ok && !s.sustainThrough[n.source] {
			cutoff := pruned.Add(s.releaseDuration[n.source])
			if n.targetTime.After(cutoff) {
				continue // pruned: released before this note's turn
			}
		}
		if !n.targetTime.After(now) {
			due = append(due, n)
			continue
		}
		kept = append(kept, n)
	}
	s.queue = kept
	sink := s.sink
	s.mu.Unlock()

	for _, n := range due {
		sink(n.source, n.channel, n.note, n.velocity, n.allowSustain)
	}
}

// PendingCount reports the queue depth, for display/tests.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
