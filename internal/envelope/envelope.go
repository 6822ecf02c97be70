// Package envelope implements the envelope engine (spec.md §4.6): ADSR
// curves driving a CC or pitch-bend MIDI stream at 200 Hz, with a
// per-channel pitch-bend priority stack so only the most recently pressed
// pitch-bend source drives a channel's bend at a time. Grounded in the
// teacher's tea.Tick-driven playback loop (internal/input/playback.go)
// generalized from a fixed-frame sequencer tick to a free-running
// high-resolution ticker, and in internal/modulation/modulation.go's
// envelope-shape vocabulary (attack/decay/sustain/release).
package envelope

import (
	"sync"
	"time"

	"keyzone/internal/midiport"
	"keyzone/internal/types"
)

const tickInterval = 5 * time.Millisecond

// pitchBendCenter is the MIDI pitch-bend wire value representing no bend.
const pitchBendCenter = 8192

// unsent is a sentinel lastSentValue outside any valid CC (0..127) or
// pitch-bend (0..16383) range, so a legitimately zero-valued first send is
// never swallowed by a zero-valued delta gate.
const unsent = -1

type envelopeState struct {
	source   types.InputID
	channel  int
	settings types.ExpressionAction
	peak     float64 // resolved value_when_on for this trigger (spec.md §4.4 step 7's peak_value)

	stage             types.EnvelopeStage
	currentLevel      float64
	stepSize          float64
	lastSentValue     int
	dynamicStartValue float64 // pitch-bend only: the channel's physical value when this envelope started
	isDormant         bool
}

// Engine owns active_envelopes and the per-channel pitch-bend priority
// stacks (spec.md §3.8, §4.6). The zero value is not usable; use NewEngine.
type Engine struct {
	port midiport.Port

	mu        sync.Mutex
	envelopes map[types.InputID]*envelopeState
	pbStack   map[int][]types.InputID // channel -> stack, last element is top
	lastPB    map[int]int             // channel -> last physical pitch-bend value sent

	ticker *time.Ticker
	stop   chan struct{}
}

// NewEngine constructs an Engine sending through port and starts its 200 Hz
// tick goroutine. Call Close to stop it.
func NewEngine(port midiport.Port) *Engine {
	e := &Engine{
		port:      port,
		envelopes: make(map[types.InputID]*envelopeState),
		pbStack:   make(map[int][]types.InputID),
		lastPB:    make(map[int]int),
		ticker:    time.NewTicker(tickInterval),
		stop:      make(chan struct{}),
	}
	go e.tickLoop()
	return e
}

func (e *Engine) tickLoop() {
	for {
		select {
		case <-e.stop:
			return
		case <-e.ticker.C:
			e.tick()
		}
	}
}

// Close stops the tick goroutine.
func (e *Engine) Close() {
	e.ticker.Stop()
	close(e.stop)
}

func isPitchBend(target types.AdsrTarget) bool {
	return target == types.AdsrPitchBend || target == types.AdsrSmartScaleBend
}

// Trigger implements spec.md §4.6's trigger_envelope. peakValue is the
// already-domain-converted target value computed by the dispatcher (0..127
// for CC, 0..16383 for PitchBend/SmartScaleBend).
func (e *Engine) Trigger(source types.InputID, channel int, settings types.ExpressionAction, peakValue float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	attack, decay, release := settings.AttackMs, settings.DecayMs, settings.ReleaseMs
	if !settings.UseCustomEnvelope {
		attack, decay, release = 0, 0, 0
	}

	if attack == 0 && decay == 0 && release == 0 {
		e.sendLocked(settings.AdsrTarget, channel, settings.Data1, peakValue)
		delete(e.envelopes, source)
		e.removeFromStackLocked(channel, source)
		return
	}

	st := &envelopeState{source: source, channel: channel, settings: settings, peak: peakValue, lastSentValue: unsent}

	if isPitchBend(settings.AdsrTarget) {
		if _, exists := e.envelopes[source]; exists {
			// Re-press of an already-active pitch-bend source: move to top.
			e.removeFromStackLocked(channel, source)
		} else if top := e.topOfStackLocked(channel); top != nil {
			top.isDormant = true
		}
		e.pbStack[channel] = append(e.pbStack[channel], source)
		st.dynamicStartValue = float64(e.physicalPBLocked(channel))
	} else {
		st.dynamicStartValue = settings.ValueWhenOff
	}

	if attack <= 0 {
		st.stage = types.StageDecay
		st.currentLevel = 1
		st.stepSize = decayStep(decay, settings.SustainLevel)
	} else {
		st.stage = types.StageAttack
		st.currentLevel = 0
		st.stepSize = 5.0 / attack
	}

	e.envelopes[source] = st
}

func decayStep(decayMs, sustainLevel float64) float64 {
	if decayMs <= 0 {
		return 1
	}
	span := 1 - sustainLevel
	return span / (decayMs / 5.0)
}

func releaseStep(releaseMs, fromLevel float64) float64 {
	if releaseMs <= 0 {
		return 1
	}
	return fromLevel / (releaseMs / 5.0)
}

// Release implements spec.md §4.6's release_envelope, including the
// pitch-bend priority-stack handoff.
func (e *Engine) Release(source types.InputID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.envelopes[source]
	if !ok {
		return
	}

	if !isPitchBend(st.settings.AdsrTarget) {
		st.stage = types.StageRelease
		st.stepSize = releaseStep(st.settings.ReleaseMs, st.currentLevel)
		return
	}

	channel := st.channel
	stack := e.pbStack[channel]
	pos := indexOf(stack, source)
	if pos < 0 {
		st.stage = types.StageRelease
		st.stepSize = releaseStep(st.settings.ReleaseMs, st.currentLevel)
		return
	}
	wasTop := pos == len(stack)-1
	e.pbStack[channel] = append(stack[:pos], stack[pos+1:]...)

	if !wasTop {
		delete(e.envelopes, source)
		return
	}

	delete(e.envelopes, source)
	if newTop := e.topOfStackLocked(channel); newTop != nil {
		newTop.isDormant = false
		newTop.stage = types.StageAttack
		newTop.currentLevel = 0
		newTop.dynamicStartValue = float64(e.physicalPBLocked(channel))
		if newTop.settings.AttackMs > 0 {
			newTop.stepSize = 5.0 / newTop.settings.AttackMs
		} else {
			newTop.stage = types.StageDecay
			newTop.currentLevel = 1
			newTop.stepSize = decayStep(newTop.settings.DecayMs, newTop.settings.SustainLevel)
		}
		return
	}

	// Stack empty: standard release toward center.
	st = &envelopeState{
		source: source, channel: channel, settings: st.settings, peak: st.peak,
		stage: types.StageRelease, currentLevel: 1, lastSentValue: unsent,
	}
	st.stepSize = releaseStep(st.settings.ReleaseMs, 1)
	st.dynamicStartValue = float64(e.physicalPBLocked(channel))
	e.envelopes[source] = st
}

func indexOf(stack []types.InputID, source types.InputID) int {
	for i, s := range stack {
		if s == source {
			return i
		}
	}
	return -1
}

func (e *Engine) topOfStackLocked(channel int) *envelopeState {
	stack := e.pbStack[channel]
	if len(stack) == 0 {
		return nil
	}
	return e.envelopes[stack[len(stack)-1]]
}

func (e *Engine) removeFromStackLocked(channel int, source types.InputID) {
	stack := e.pbStack[channel]
	if pos := indexOf(stack, source); pos >= 0 {
		e.pbStack[channel] = append(stack[:pos], stack[pos+1:]...)
	}
}

func (e *Engine) physicalPBLocked(channel int) int {
	if v, ok := e.lastPB[channel]; ok {
		return v
	}
	return pitchBendCenter
}

func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for source, st := range e.envelopes {
		if st.isDormant {
			continue
		}
		e.advance(st)
		if st.stage == types.StageFinished {
			delete(e.envelopes, source)
			continue
		}
		value := st.dynamicStartValue + st.currentLevel*(st.peak-st.dynamicStartValue)
		e.sendIfChangedLocked(st, value)
	}
}

func (e *Engine) advance(st *envelopeState) {
	switch st.stage {
	case types.StageAttack:
		st.currentLevel += st.stepSize
		if st.currentLevel >= 1 {
			st.currentLevel = 1
			st.stage = types.StageDecay
			st.stepSize = decayStep(st.settings.DecayMs, st.settings.SustainLevel)
		}
	case types.StageDecay:
		st.currentLevel -= st.stepSize
		if st.currentLevel <= st.settings.SustainLevel {
			st.currentLevel = st.settings.SustainLevel
			st.stage = types.StageSustain
			st.stepSize = 0
		}
	case types.StageSustain:
		// holds steady until Release
	case types.StageRelease:
		st.currentLevel -= st.stepSize
		if st.currentLevel <= 0 {
			st.currentLevel = 0
			st.stage = types.StageFinished
		}
	}
}

func (e *Engine) sendIfChangedLocked(st *envelopeState, value float64) {
	e.sendValueLocked(st.settings.AdsrTarget, st.channel, st.settings.Data1, value, &st.lastSentValue)
}

func (e *Engine) sendLocked(target types.AdsrTarget, channel, data1 int, value float64) {
	discard := unsent
	e.sendValueLocked(target, channel, data1, value, &discard)
}

func (e *Engine) sendValueLocked(target types.AdsrTarget, channel, data1 int, value float64, lastSent *int) {
	var clamped int
	if target == types.AdsrCC {
		clamped = clampInt(int(value+0.5), 0, 127)
	} else {
		clamped = clampInt(int(value+0.5), 0, 16383)
	}
	if clamped == *lastSent {
		return
	}
	*lastSent = clamped
	switch target {
	case types.AdsrCC:
		e.port.SendCC(channel, data1, clamped)
	default:
		e.port.SendPitchBend(channel, clamped)
		e.lastPB[channel] = clamped
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ActiveCount returns the number of active envelopes, for display/tests.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.envelopes)
}
