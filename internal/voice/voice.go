// Package voice implements the voice manager (spec.md §4.5): the owner of
// every sounding note, its release semantics (normal / sustain / latch),
// and NoteOff coalescing. Grounded in the teacher's GlobalMidiState /
// NoteState singleton (internal/midiplayer/midiplayer.go) — same
// mutex-guarded map-of-state-plus-cancel-function idiom, generalized from
// a single fixed-duration note-off timer to the spec's three release
// modes and chord/strum awareness.
package voice

import (
	"log"
	"sync"
	"time"

	"keyzone/internal/midiport"
	"keyzone/internal/types"
)

// Voice is one sounding note (spec.md §3.8).
type Voice struct {
	Source       types.InputID
	Channel      int
	Note         int
	AllowSustain bool
	State        types.VoiceState
}

// Manager owns active_voices and executes note-on/release/panic. The zero
// value is not usable; use NewManager.
type Manager struct {
	port midiport.Port

	mu              sync.Mutex
	voices          []Voice
	globalSustain   bool
	globalLatch     bool
	pendingReleases map[types.InputID]*time.Timer

	// CancelStrum, when set, is called by Panic to drain the strum
	// scheduler's pending queue. Wired by the session coordinator to break
	// the import cycle between voice and strum.
	CancelStrum func()
}

// NewManager constructs a Manager sending through port.
func NewManager(port midiport.Port) *Manager {
	return &Manager{port: port, pendingReleases: make(map[types.InputID]*time.Timer)}
}

// NoteOn implements spec.md §4.5's note_on. If global latch is active and a
// Playing/Latched voice already exists for source, this key-down acts as
// "release the latch" instead of re-triggering.
func (m *Manager) NoteOn(source types.InputID, note, velocity, channel int, allowSustain bool) {
	m.mu.Lock()
	if m.globalLatch {
		if m.cancelBySourceLocked(source) {
			m.mu.Unlock()
			return
		}
	}
	m.port.SendNoteOn(channel, note, float64(velocity)/127.0)
	m.voices = append(m.voices, Voice{Source: source, Channel: channel, Note: note, AllowSustain: allowSustain, State: types.VoicePlaying})
	m.mu.Unlock()
}

// cancelBySourceLocked sends NoteOff (coalesced) for every voice owned by
// source and removes them. Returns whether any voice was found. Caller
// must hold m.mu.
func (m *Manager) cancelBySourceLocked(source types.InputID) bool {
	found := false
	sent := make(map[[2]int]bool)
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.Source == source && (v.State == types.VoicePlaying || v.State == types.VoiceLatched) {
			found = true
			key := [2]int{v.Channel, v.Note}
			if !sent[key] {
				m.port.SendNoteOff(v.Channel, v.Note)
				sent[key] = true
			}
			continue
		}
		kept = append(kept, v)
	}
	m.voices = kept
	return found
}

// NoteOnChord fires a chord's notes simultaneously (strumSpeedMs == 0) or,
// for strummed chords, leaves scheduling to the caller: the dispatcher
// hands the notes to the strum scheduler directly and this method is used
// only for the direct-fire case (spec.md §4.5's note_on_chord, simultaneous
// branch).
func (m *Manager) NoteOnChord(source types.InputID, notes, velocities []int, channel int, allowSustain bool) {
	for i, note := range notes {
		vel := 100
		if i < len(velocities) {
			vel = velocities[i]
		}
		m.NoteOn(source, note, vel, channel, allowSustain)
	}
}

// AddStrummedVoice is called from the strum scheduler's sink for each note
// as it fires, adding it to active_voices without sending NoteOn (the sink
// sends the NoteOn itself before calling this).
func (m *Manager) AddStrummedVoice(source types.InputID, channel, note int, allowSustain bool) {
	m.mu.Lock()
	m.voices = append(m.voices, Voice{Source: source, Channel: channel, Note: note, AllowSustain: allowSustain, State: types.VoicePlaying})
	m.mu.Unlock()
}

// Retarget changes the owning source of every Playing voice currently owned
// by oldSource to newSource, without sending any MIDI. Used by a
// Legato-polyphony zone to re-key its single sounding voice onto the
// most-recently-pressed physical key instead of sending a fresh NoteOn on
// every glide retrigger.
func (m *Manager) Retarget(oldSource, newSource types.InputID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.voices {
		if m.voices[i].Source == oldSource && m.voices[i].State == types.VoicePlaying {
			m.voices[i].Source = newSource
		}
	}
}

// CutSource forces an immediate NoteOff for every Playing/Latched voice
// owned by source and removes them, ignoring sustain and latch. Used by a
// Mono-polyphony zone to cut off its previous note the instant a new key in
// the same zone is pressed, rather than waiting for that key's own release.
func (m *Manager) CutSource(source types.InputID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelBySourceLocked(source)
}

// HandleKeyUp implements spec.md §4.5's handle_key_up.
func (m *Manager) HandleKeyUp(source types.InputID, releaseDurationMs float64, sustainThrough bool) {
	if releaseDurationMs > 0 {
		m.scheduleDelayedRelease(source, releaseDurationMs, sustainThrough)
		return
	}
	m.releaseNow(source)
}

func (m *Manager) scheduleDelayedRelease(source types.InputID, releaseDurationMs float64, sustainThrough bool) {
	m.mu.Lock()
	if t, ok := m.pendingReleases[source]; ok {
		t.Stop()
	}
	m.pendingReleases[source] = time.AfterFunc(time.Duration(releaseDurationMs*float64(time.Millisecond)), func() {
		m.mu.Lock()
		delete(m.pendingReleases, source)
		m.mu.Unlock()
		if !sustainThrough {
			m.releaseNow(source)
		}
	})
	m.mu.Unlock()
}

func (m *Manager) releaseNow(source types.InputID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sentOff := make(map[[2]int]bool)
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.Source != source || v.State != types.VoicePlaying {
			kept = append(kept, v)
			continue
		}
		switch {
		case m.globalLatch:
			v.State = types.VoiceLatched
			kept = append(kept, v)
		case m.globalSustain && v.AllowSustain:
			v.State = types.VoiceSustained
			kept = append(kept, v)
		default:
			key := [2]int{v.Channel, v.Note}
			if !sentOff[key] {
				m.port.SendNoteOff(v.Channel, v.Note)
				sentOff[key] = true
			}
			// dropped: not appended to kept
		}
	}
	m.voices = kept
}

// SetSustain toggles the global sustain pedal state. On the falling edge,
// every Sustained voice gets NoteOff and is dropped.
func (m *Manager) SetSustain(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	falling := m.globalSustain && !active
	m.globalSustain = active
	if !falling {
		return
	}
	m.dropByStateLocked(types.VoiceSustained)
}

// SetLatch toggles global latch. On the falling edge, every Latched voice
// gets NoteOff and is dropped ("release latched on toggle-off").
func (m *Manager) SetLatch(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	falling := m.globalLatch && !active
	m.globalLatch = active
	if !falling {
		return
	}
	m.dropByStateLocked(types.VoiceLatched)
}

// dropByStateLocked sends coalesced NoteOffs for every voice in state and
// removes them. Caller must hold m.mu.
func (m *Manager) dropByStateLocked(state types.VoiceState) {
	sent := make(map[[2]int]bool)
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.State != state {
			kept = append(kept, v)
			continue
		}
		key := [2]int{v.Channel, v.Note}
		if !sent[key] {
			m.port.SendNoteOff(v.Channel, v.Note)
			sent[key] = true
		}
	}
	m.voices = kept
}

// Panic clears the strum queue (if wired), clears every voice, and emits
// All-Notes-Off on every channel.
func (m *Manager) Panic() {
	if m.CancelStrum != nil {
		m.CancelStrum()
	}
	m.mu.Lock()
	m.voices = nil
	for _, t := range m.pendingReleases {
		t.Stop()
	}
	m.pendingReleases = make(map[types.InputID]*time.Timer)
	m.mu.Unlock()
	m.port.AllNotesOff()
	log.Printf("[VOICE] panic: all voices cleared")
}

// PanicLatch sends NoteOff and drops only Latched voices.
func (m *Manager) PanicLatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropByStateLocked(types.VoiceLatched)
}

// ActiveVoices returns a snapshot of current voices, for display/tests.
func (m *Manager) ActiveVoices() []Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Voice(nil), m.voices...)
}
