// Package preset implements the hierarchical preset store: 9 fixed layers of
// manual mappings plus a global zone list, observable via a subscriber list
// that fires once per mutation batch. Grounded in the teacher's
// PushUndoState/UndoHistory observable idiom (demo_undo.go), generalized
// from an undo log to a plain change-notification model per spec.md §3.5
// and §9's "Observable hierarchical state" design note.
package preset

import (
	"sync"

	"keyzone/internal/scale"
	"keyzone/internal/types"
	"keyzone/internal/zone"
)

// Mapping is a single manual key entry (spec.md §3.4).
type Mapping struct {
	InputKey   int
	InputAlias string // empty = any device
	LayerID    types.LayerID
	Action     types.Action
	Enabled    bool
}

// Layer is one of the 9 fixed overlay planes.
type Layer struct {
	Name                string
	SoloLayer           bool
	PassthruInheritance bool
	PrivateToLayer      bool
	Mappings            []Mapping
}

// Event describes one observed mutation: the dotted path of what changed,
// plus its old and new values.
type Event struct {
	Path string
	Old  any
	New  any
}

// Listener receives one batch of events per completed mutation or
// transaction.
type Listener func([]Event)

// Preset is the hierarchical store described in spec.md §3.5. The zero
// value is not usable; use New.
type Preset struct {
	mu sync.Mutex

	Layers [types.NumLayers]Layer
	Zones  []*zone.Zone

	GlobalChromaticTranspose int
	GlobalDegreeTranspose    int

	listeners []Listener
	txDepth   int
	pending   []Event
}

// New constructs a Preset with 9 empty layers named "Base" (layer 0) and
// "Overlay N" (layers 1..8).
func New() *Preset {
	p := &Preset{}
	p.Layers[0].Name = "Base"
	for i := 1; i < types.NumLayers; i++ {
		p.Layers[i].Name = layerDefaultName(i)
	}
	return p
}

func layerDefaultName(i int) string {
	const letters = "123456789"
	if i-1 < len(letters) {
		return "Overlay " + string(letters[i-1])
	}
	return "Overlay"
}

// Subscribe registers a listener and returns a function that unsubscribes
// it.
func (p *Preset) Subscribe(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	idx := len(p.listeners) - 1
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if idx < len(p.listeners) {
			p.listeners[idx] = nil
		}
	}
}

// Begin opens a transaction scope; mutations within it are coalesced into a
// single notification batch delivered on the matching End.
func (p *Preset) Begin() {
	p.mu.Lock()
	p.txDepth++
	p.mu.Unlock()
}

// End closes a transaction scope opened by Begin. The outermost End flushes
// the pending event batch to every listener.
func (p *Preset) End() {
	p.mu.Lock()
	if p.txDepth > 0 {
		p.txDepth--
	}
	var batch []Event
	if p.txDepth == 0 && len(p.pending) > 0 {
		batch = p.pending
		p.pending = nil
	}
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	if batch == nil {
		return
	}
	for _, l := range listeners {
		if l != nil {
			l(batch)
		}
	}
}

// notify records an event; it is delivered immediately (as a one-event
// batch) unless a transaction is open, in which case it is coalesced.
func (p *Preset) notify(path string, old, new any) {
	p.mu.Lock()
	ev := Event{Path: path, Old: old, New: new}
	if p.txDepth > 0 {
		p.pending = append(p.pending, ev)
		p.mu.Unlock()
		return
	}
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	batch := []Event{ev}
	for _, l := range listeners {
		if l != nil {
			l(batch)
		}
	}
}

// AddMapping appends a mapping to the given layer.
func (p *Preset) AddMapping(layer types.LayerID, m Mapping) {
	if !layer.Valid() {
		return
	}
	p.mu.Lock()
	m.LayerID = layer
	p.Layers[layer].Mappings = append(p.Layers[layer].Mappings, m)
	p.mu.Unlock()
	p.notify("layers["+layerPath(layer)+"].mappings", nil, m)
}

// RemoveMapping deletes the mapping at index idx within layer, if present.
func (p *Preset) RemoveMapping(layer types.LayerID, idx int) {
	if !layer.Valid() {
		return
	}
	p.mu.Lock()
	mappings := p.Layers[layer].Mappings
	if idx < 0 || idx >= len(mappings) {
		p.mu.Unlock()
		return
	}
	removed := mappings[idx]
	p.Layers[layer].Mappings = append(mappings[:idx], mappings[idx+1:]...)
	p.mu.Unlock()
	p.notify("layers["+layerPath(layer)+"].mappings", removed, nil)
}

// SetLayerFlags updates a layer's solo/passthru/private flags in one batch.
func (p *Preset) SetLayerFlags(layer types.LayerID, solo, passthru, private bool) {
	if !layer.Valid() {
		return
	}
	p.mu.Lock()
	old := p.Layers[layer]
	p.Layers[layer].SoloLayer = solo
	p.Layers[layer].PassthruInheritance = passthru
	p.Layers[layer].PrivateToLayer = private
	p.mu.Unlock()
	p.notify("layers["+layerPath(layer)+"].flags", old, p.Layers[layer])
}

// AddZone appends a zone to the preset's global zone list.
func (p *Preset) AddZone(z *zone.Zone) {
	p.mu.Lock()
	p.Zones = append(p.Zones, z)
	p.mu.Unlock()
	p.notify("zones", nil, z)
}

// RemoveZone removes z from the preset's zone list, if present.
func (p *Preset) RemoveZone(z *zone.Zone) {
	p.mu.Lock()
	for i, existing := range p.Zones {
		if existing == z {
			p.Zones = append(p.Zones[:i], p.Zones[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.notify("zones", z, nil)
}

// SetGlobalChromaticTranspose sets the global chromatic transpose,
// clamping to ±48 semitones per spec.md §6.3's TransposeSet operand.
func (p *Preset) SetGlobalChromaticTranspose(semitones int) {
	if semitones > 48 {
		semitones = 48
	}
	if semitones < -48 {
		semitones = -48
	}
	p.mu.Lock()
	old := p.GlobalChromaticTranspose
	p.GlobalChromaticTranspose = semitones
	p.mu.Unlock()
	p.notify("global_chromatic_transpose", old, semitones)
}

// SetGlobalDegreeTranspose sets the global scale-degree transpose.
func (p *Preset) SetGlobalDegreeTranspose(degree int) {
	p.mu.Lock()
	old := p.GlobalDegreeTranspose
	p.GlobalDegreeTranspose = degree
	p.mu.Unlock()
	p.notify("global_degree_transpose", old, degree)
}

// RewriteAliasReferences renames every mapping's input_alias from oldName
// to newName, per spec.md §3.6's rename contract: collect the affected
// indices first, then rewrite — never mutate while iterating the live
// slice.
func (p *Preset) RewriteAliasReferences(oldName, newName string) (rewritten int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for li := range p.Layers {
		var touched []int
		for i, m := range p.Layers[li].Mappings {
			if m.InputAlias == oldName {
				touched = append(touched, i)
			}
		}
		for _, i := range touched {
			p.Layers[li].Mappings[i].InputAlias = newName
		}
		rewritten += len(touched)
	}
	return rewritten
}

// AllZones returns the preset's zone list, satisfying the dispatcher's
// zoneSource interface for the global root/scale commands.
func (p *Preset) AllZones() []*zone.Zone {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*zone.Zone(nil), p.Zones...)
}

// Snapshot is the serializable form of a Preset, persisted by
// internal/storage (spec.md §6.4).
type Snapshot struct {
	Layers                   [types.NumLayers]Layer
	Zones                    []*zone.Zone
	GlobalChromaticTranspose int
	GlobalDegreeTranspose    int
}

// Snapshot captures the preset's current content for persistence.
func (p *Preset) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Layers:                   p.Layers,
		Zones:                    append([]*zone.Zone(nil), p.Zones...),
		GlobalChromaticTranspose: p.GlobalChromaticTranspose,
		GlobalDegreeTranspose:    p.GlobalDegreeTranspose,
	}
}

// Restore replaces the preset's content with snap's and fires one change
// notification. lib rehydrates every zone's scale-library reference, which
// a round trip through JSON cannot carry (it is unexported).
func (p *Preset) Restore(snap Snapshot, lib *scale.Library) {
	for _, z := range snap.Zones {
		z.SetScaleLibrary(lib)
		z.Touch()
	}
	p.mu.Lock()
	p.Layers = snap.Layers
	p.Zones = snap.Zones
	p.GlobalChromaticTranspose = snap.GlobalChromaticTranspose
	p.GlobalDegreeTranspose = snap.GlobalDegreeTranspose
	p.mu.Unlock()
	p.notify("restore", nil, nil)
}

func layerPath(layer types.LayerID) string {
	const digits = "012345678"
	i := int(layer)
	if i >= 0 && i < len(digits) {
		return digits[i : i+1]
	}
	return "?"
}
