// Package zone implements a performance zone: the key-set, tuning, chord,
// voicing, and release configuration that the compiler bakes into a grid and
// the dispatcher reads at play time. Grounded in the teacher's per-track
// settings struct (internal/types/types.go) generalized to the spec's
// zone data model (spec.md §3.3) and the get_notes_for_key algorithm
// (spec.md §4.2).
package zone

import (
	"sort"
	"sync"

	"keyzone/internal/chord"
	"keyzone/internal/keycode"
	"keyzone/internal/scale"
	"keyzone/internal/types"
)

// Zone is a single performance layer's worth of configuration. All mutator
// methods invalidate the per-key cache; NotesForKey is the hot path and must
// stay O(1) amortized.
type Zone struct {
	Name            string
	Color           types.Color
	TargetAliasHash types.AliasHash
	LayerID         types.LayerID

	RootNote               int
	UseGlobalRoot          bool
	GlobalRootOctaveOffset int
	ScaleName              string
	UseGlobalScale         bool
	ChromaticOffset        int
	DegreeOffset           int
	IgnoreGlobalTranspose  bool

	InputKeyCodes  []keycode.Code
	LayoutStrategy types.LayoutStrategy
	GridInterval   int

	Polyphony        types.PolyphonyMode
	GlideTimeMs      float64
	IsAdaptiveGlide  bool
	MaxGlideTimeMs   float64

	ChordType              types.ChordType
	Instrument             types.Instrument
	VoicingStyle           types.PianoVoicingStyle
	VoicingMagnetSemitones int
	PlayerPosition         types.GuitarPlayerPosition
	FretAnchor             int

	MidiChannel        int
	BaseVelocity       int
	VelocityRandom     int
	GhostVelocityScale float64
	StrictGhostHarmony bool
	AddBassNote        bool
	BassOctaveOffset   int

	PlayMode               types.PlayMode
	StrumSpeedMs           float64
	StrumPattern           types.StrumPattern
	StrumGhostNotes        bool
	StrumTimingVariationOn bool
	StrumTimingVariationMs float64

	ReleaseMode         types.ReleaseMode
	DelayReleaseOn      bool
	ReleaseDurationMs   float64
	OverrideTimer       bool
	IgnoreGlobalSustain bool

	scales *scale.Library

	mu        sync.RWMutex
	keyIndex  map[keycode.Code]int
	degreeCache map[keycode.Code]cacheEntry
}

type cacheEntry struct {
	ok         bool
	baseDegree int
	notes      []chord.Note // baked, pre-global-transpose
}

// New constructs a Zone with neutral defaults (Major scale, root 60, triad
// off, direct play, linear layout) wired to lib for scale-name resolution.
func New(name string, lib *scale.Library) *Zone {
	return &Zone{
		Name:               name,
		RootNote:           60,
		ScaleName:          scale.FactoryScaleName,
		LayoutStrategy:     types.LayoutLinear,
		GridInterval:       8,
		Polyphony:          types.PolyPoly,
		ChordType:          types.ChordNone,
		Instrument:         types.InstrumentPiano,
		VoicingStyle:       types.VoicingBlock,
		MidiChannel:        0,
		BaseVelocity:       100,
		GhostVelocityScale: 0.6,
		PlayMode:           types.PlayDirect,
		StrumSpeedMs:       20,
		ReleaseMode:        types.ReleaseNormal,
		scales:             lib,
	}
}

// SetScaleLibrary wires (or rewires) the scale library used to resolve
// ScaleName. Needed after a JSON round trip, since the library reference
// itself is unexported and not serialized.
func (z *Zone) SetScaleLibrary(lib *scale.Library) {
	z.mu.Lock()
	z.scales = lib
	z.mu.Unlock()
}

// Touch invalidates the per-key cache. Call after mutating any field that
// affects note generation (tuning, chord, voicing, instrument, layout,
// key-set, or a followed global root/scale change).
func (z *Zone) Touch() {
	z.mu.Lock()
	z.keyIndex = nil
	z.degreeCache = nil
	z.mu.Unlock()
}

// SetInputKeyCodes replaces the zone's key-set and invalidates the cache.
func (z *Zone) SetInputKeyCodes(codes []keycode.Code) {
	z.mu.Lock()
	z.InputKeyCodes = append([]keycode.Code(nil), codes...)
	z.keyIndex = nil
	z.degreeCache = nil
	z.mu.Unlock()
}

func (z *Zone) ensureIndex() {
	if z.keyIndex != nil {
		return
	}
	idx := make(map[keycode.Code]int, len(z.InputKeyCodes))
	for i, c := range z.InputKeyCodes {
		idx[c] = i
	}
	z.keyIndex = idx
}

// EffectiveRoot applies the zone's own octave-following rule; spec.md §4.2
// step 3 formula: root_note + (use_global_root ? 12*global_root_octave_offset : 0).
func (z *Zone) EffectiveRoot() int {
	if z.UseGlobalRoot {
		return z.RootNote + 12*z.GlobalRootOctaveOffset
	}
	return z.RootNote
}

func (z *Zone) intervals() []int {
	if z.scales == nil {
		return []int{0, 2, 4, 5, 7, 9, 11}
	}
	return z.scales.Lookup(z.ScaleName)
}

// NotesForKey runs the get_notes_for_key algorithm (spec.md §4.2). Global
// chromatic transpose is always cheap to apply post hoc; global degree
// transpose shifts the starting scale degree and therefore requires
// recomputing the chord stack, so it bypasses the baked cache entry while
// still reusing the cached (layout-resolved) base degree.
func (z *Zone) NotesForKey(key keycode.Code, globalChromaticTranspose, globalDegreeTranspose int) ([]chord.Note, bool) {
	z.mu.Lock()
	z.ensureIndex()
	idx, inSet := z.keyIndex[key]
	if !inSet {
		z.mu.Unlock()
		return nil, false
	}
	if z.degreeCache == nil {
		z.degreeCache = make(map[keycode.Code]cacheEntry, len(z.InputKeyCodes))
	}
	entry, cached := z.degreeCache[key]
	if !cached {
		entry = z.computeEntry(key, idx)
		z.degreeCache[key] = entry
	}
	scales := z.intervals()
	root := z.EffectiveRoot()
	chordType := toChordType(z.ChordType)
	style := z.voicingStyle()
	opts := z.voiceOptions(key)
	ignoreTranspose := z.IgnoreGlobalTranspose
	addBass := z.AddBassNote
	bassOctaveOffset := z.BassOctaveOffset
	degreeOffset := z.DegreeOffset
	z.mu.Unlock()

	if !entry.ok {
		return nil, false
	}

	var notes []chord.Note
	if !ignoreTranspose && globalDegreeTranspose != 0 {
		degree := entry.baseDegree + degreeOffset + globalDegreeTranspose
		stack := chord.Stack(root, scales, degree, chordType)
		notes = chord.Voice(stack, style, scales, opts)
	} else {
		notes = append([]chord.Note(nil), entry.notes...)
	}

	if !ignoreTranspose && globalChromaticTranspose != 0 {
		for i := range notes {
			notes[i].Pitch = clampPitch(notes[i].Pitch + globalChromaticTranspose)
		}
	}

	if addBass && len(notes) > 0 {
		bass := clampPitch(root - 12*(bassOctaveOffset+1))
		notes = append([]chord.Note{{Pitch: bass}}, notes...)
	}

	return notes, true
}

// computeEntry resolves the layout-dependent base degree for key and bakes
// the chord/voicing result assuming zero global transpose. Must be called
// with z.mu held.
func (z *Zone) computeEntry(key keycode.Code, linearIdx int) cacheEntry {
	degree, chromaticNudge, ok := z.resolveDegree(key, linearIdx)
	if !ok {
		return cacheEntry{ok: false}
	}
	scales := z.intervals()
	root := z.EffectiveRoot()
	stack := chord.Stack(root, scales, degree+z.DegreeOffset, toChordType(z.ChordType))
	style := z.voicingStyle()
	opts := z.voiceOptions(key)
	notes := chord.Voice(stack, style, scales, opts)
	for i := range notes {
		notes[i].Pitch = clampPitch(notes[i].Pitch + z.ChromaticOffset + chromaticNudge)
	}
	return cacheEntry{ok: true, baseDegree: degree, notes: notes}
}

func (z *Zone) voicingStyle() chord.Style {
	switch z.Instrument {
	case types.InstrumentGuitar:
		switch z.PlayerPosition {
		case types.PositionRhythm:
			return chord.GuitarRhythm
		default:
			return chord.GuitarCampfire
		}
	default:
		switch z.VoicingStyle {
		case types.VoicingClose:
			return chord.PianoClose
		case types.VoicingOpen:
			return chord.PianoOpen
		default:
			return chord.PianoBlock
		}
	}
}

func (z *Zone) voiceOptions(key keycode.Code) chord.Options {
	return chord.Options{
		Center:             z.EffectiveRoot(),
		MagnetSemitones:    z.VoicingMagnetSemitones,
		FretAnchor:         z.FretAnchor,
		StrictGhostHarmony: z.StrictGhostHarmony,
	}
}

// resolveDegree implements spec.md §4.2 step 2's three layout strategies.
// Returns (degree, chromaticNudge, ok); ok is false only for Piano-layout
// keys that play nothing: a black key whose nearest-left white key has no
// valid sharp (E or B position) or that has no white key at or left of it,
// and a key in neither the white (lowest) nor the black (topmost) row.
func (z *Zone) resolveDegree(key keycode.Code, linearIdx int) (int, int, bool) {
	switch z.LayoutStrategy {
	case types.LayoutGrid:
		return z.resolveGridDegree(key, linearIdx)
	case types.LayoutPiano:
		return z.resolvePianoDegree(key, linearIdx)
	default:
		return linearIdx, 0, true
	}
}

func (z *Zone) resolveGridDegree(key keycode.Code, linearIdx int) (int, int, bool) {
	if len(z.InputKeyCodes) == 0 {
		return linearIdx, 0, true
	}
	anchor, aok := lookupPhys(z.InputKeyCodes[0])
	pos, pok := lookupPhys(key)
	if !aok || !pok {
		return linearIdx, 0, true
	}
	interval := z.GridInterval
	if interval == 0 {
		interval = 1
	}
	degree := (pos.Col - anchor.Col) + (pos.Row-anchor.Row)*interval
	return degree, 0, true
}

func (z *Zone) resolvePianoDegree(key keycode.Code, linearIdx int) (int, int, bool) {
	type posKey struct {
		code keycode.Code
		pos  physPos
	}
	var mapped []posKey
	rows := map[int]bool{}
	for _, c := range z.InputKeyCodes {
		if p, ok := lookupPhys(c); ok {
			mapped = append(mapped, posKey{c, p})
			rows[p.Row] = true
		}
	}
	if len(rows) < 2 {
		return linearIdx, 0, true
	}
	minRow, maxRow := -1, -1
	for r := range rows {
		if minRow == -1 || r < minRow {
			minRow = r
		}
		if maxRow == -1 || r > maxRow {
			maxRow = r
		}
	}
	var white, black []posKey
	for _, m := range mapped {
		if m.pos.Row == maxRow {
			white = append(white, m)
		} else if m.pos.Row == minRow {
			black = append(black, m)
		}
	}
	sort.Slice(white, func(i, j int) bool { return white[i].pos.Col < white[j].pos.Col })

	whiteDegree := func(code keycode.Code) (int, bool) {
		for i, w := range white {
			if w.code == code {
				return i, true
			}
		}
		return 0, false
	}

	if d, ok := whiteDegree(key); ok {
		return d, 0, true
	}

	for _, b := range black {
		if b.code != key {
			continue
		}
		nearestIdx := -1
		for i, w := range white {
			if w.pos.Col <= b.pos.Col {
				nearestIdx = i
			}
		}
		if nearestIdx == -1 {
			return 0, 0, false
		}
		letter := nearestIdx % 7
		if letter == 2 || letter == 6 { // E or B: no valid sharp
			return 0, 0, false
		}
		return nearestIdx, 1, true
	}
	return 0, 0, false
}

// toChordType converts the shared types.ChordType enum to chord.Type; the
// chord package defines its own mirror to avoid an import cycle (see
// chord.Type's doc comment).
func toChordType(c types.ChordType) chord.Type {
	switch c {
	case types.ChordTriad:
		return chord.Triad
	case types.ChordSeventh:
		return chord.Seventh
	case types.ChordNinth:
		return chord.Ninth
	case types.ChordPower5:
		return chord.Power5
	default:
		return chord.None
	}
}

func clampPitch(p int) int {
	if p < 0 {
		return 0
	}
	if p > 127 {
		return 127
	}
	return p
}
