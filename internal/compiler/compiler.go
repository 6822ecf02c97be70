// Package compiler implements the grid compiler (spec.md §4.3): it walks a
// preset's layers, zones, and mappings and bakes them into an immutable
// CompiledContext — one dense 256-slot audio/visual grid per layer, for the
// global device and for every known device alias. Grounded in the
// teacher's two-pass undo/redo snapshotting (demo_undo.go's
// PushUndoState/UndoHistory, taking an immutable copy at a well-defined
// point rather than tracking live mutation) and in internal/model's
// dense-array track/view layout.
package compiler

import (
	"keyzone/internal/alias"
	"keyzone/internal/chord"
	"keyzone/internal/keycode"
	"keyzone/internal/music"
	"keyzone/internal/preset"
	"keyzone/internal/types"
	"keyzone/internal/zone"
)

// AudioSlot is one key's compiled playable content. Zone-originated slots
// carry ZoneRef/ZoneKey so the dispatcher can recompute the live chord
// (applying whatever global transpose is in effect at press time) rather
// than replaying a value frozen at compile time; ChordIndex only indexes
// ChordPool for display/labeling of the chord as it stood at compile time.
type AudioSlot struct {
	Active     bool
	Action     types.Action // meaningful when ZoneRef == nil
	ChordIndex int          // -1 if not a baked chord (mapping slot, or zone's monophonic note)
	ZoneRef    *zone.Zone
	ZoneKey    keycode.Code
	ClaimOnly  bool // spec.md §7 cache-miss: claims the slot for conflict detection, carries no playable content
}

// VisualSlot is one key's display state for the compiled grid.
type VisualSlot struct {
	State      types.VisualState
	Color      types.Color
	Label      string
	SourceName string
}

// AudioGrid and VisualGrid are the dense 256-key arrays of spec.md §3.7.
type AudioGrid [keycode.GridSize]AudioSlot
type VisualGrid [keycode.GridSize]VisualSlot

// CompiledContext is the immutable output of one Compile call. The session
// coordinator publishes it via atomic.Pointer so the dispatcher always
// reads a consistent snapshot.
type CompiledContext struct {
	GlobalAudio  [types.NumLayers]AudioGrid
	GlobalVisual [types.NumLayers]VisualGrid

	DeviceAudio  map[types.AliasHash][types.NumLayers]AudioGrid
	DeviceVisual map[types.AliasHash][types.NumLayers]VisualGrid

	// ChordPool holds every chord baked during compilation (zero global
	// transpose), indexed by AudioSlot.ChordIndex for display purposes.
	ChordPool [][]chord.Note
}

// writeItem is one pending write to a key slot, collected from either a
// zone or a mapping before the write-policy pass applies it.
type writeItem struct {
	key       keycode.Code
	slot      AudioSlot
	visual    VisualSlot
}

type compiler struct {
	pool [][]chord.Note
}

// Compile runs the two-pass compile procedure of spec.md §4.3 against the
// given preset and alias table, producing a fresh CompiledContext. Zones
// and mappings are read in their stored slice order, so two Compile calls
// against unchanged inputs are deterministic.
func Compile(p *preset.Preset, aliases *alias.Table) *CompiledContext {
	c := &compiler{}
	ctx := &CompiledContext{
		DeviceAudio:  make(map[types.AliasHash][types.NumLayers]AudioGrid),
		DeviceVisual: make(map[types.AliasHash][types.NumLayers]VisualGrid),
	}

	// Pass 1: global stack (alias 0), layer 0..8, each seeded from the
	// previous layer's grid (spec.md §4.3 step 1).
	var prevAudio AudioGrid
	var prevVisual VisualGrid
	for l := 0; l < types.NumLayers; l++ {
		layer := types.LayerID(l)
		audio, visual := prevAudio, prevVisual
		downgradeInherited(&visual)

		items := c.globalWriteItems(p, aliases, layer)
		applyWrites(&audio, &visual, items)
		replicateModifiers(&audio, &visual, items)

		ctx.GlobalAudio[l] = audio
		ctx.GlobalVisual[l] = visual
		prevAudio, prevVisual = audio, visual
	}

	// Pass 2: device stack. Every known alias gets its own 9-layer grid,
	// each layer independently derived from the corresponding global-layer
	// grid with that device's own zones/mappings for layers 0..L overlaid
	// (spec.md §4.3 step 2).
	for _, hash := range aliases.Hashes() {
		var deviceAudio [types.NumLayers]AudioGrid
		var deviceVisual [types.NumLayers]VisualGrid
		for l := 0; l < types.NumLayers; l++ {
			audio := ctx.GlobalAudio[l]
			visual := ctx.GlobalVisual[l]
			downgradeInherited(&visual)

			for sub := 0; sub <= l; sub++ {
				subLayer := types.LayerID(sub)
				items := c.deviceWriteItems(p, aliases, hash, subLayer)
				applyWrites(&audio, &visual, items)
				replicateModifiers(&audio, &visual, items)
			}
			deviceAudio[l] = audio
			deviceVisual[l] = visual
		}
		ctx.DeviceAudio[hash] = deviceAudio
		ctx.DeviceVisual[hash] = deviceVisual
	}

	ctx.ChordPool = c.pool
	return ctx
}

// downgradeInherited marks every non-empty slot of a freshly-copied base
// grid as Inherited, dimming its color (spec.md §4.3 step 1a/2a): from the
// perspective of the layer/device about to overlay writes, the copied
// content came from somewhere lower in the stack.
func downgradeInherited(v *VisualGrid) {
	for i := range v {
		if v[i].State != types.VisualEmpty {
			v[i].State = types.VisualInherited
			v[i].Color = v[i].Color.Dimmed()
		}
	}
}

func (c *compiler) globalWriteItems(p *preset.Preset, aliases *alias.Table, layer types.LayerID) []writeItem {
	var items []writeItem
	for _, z := range p.Zones {
		if z.LayerID != layer || z.TargetAliasHash != types.AnyDeviceHash {
			continue
		}
		items = append(items, c.zoneWriteItems(z)...)
	}
	for _, m := range p.Layers[layer].Mappings {
		if !m.Enabled || aliases.HashForName(m.InputAlias) != types.AnyDeviceHash {
			continue
		}
		items = append(items, mappingWriteItem(m))
	}
	return items
}

func (c *compiler) deviceWriteItems(p *preset.Preset, aliases *alias.Table, hash types.AliasHash, layer types.LayerID) []writeItem {
	var items []writeItem
	for _, z := range p.Zones {
		if z.LayerID != layer || z.TargetAliasHash != hash {
			continue
		}
		items = append(items, c.zoneWriteItems(z)...)
	}
	for _, m := range p.Layers[layer].Mappings {
		if !m.Enabled || aliases.HashForName(m.InputAlias) != hash {
			continue
		}
		items = append(items, mappingWriteItem(m))
	}
	return items
}

// zoneWriteItems bakes one AudioSlot/VisualSlot pair per key in a zone's
// key-set, evaluating the chord at zero global transpose for chord_pool/
// display purposes (spec.md §3.7's "chord_index"); the dispatcher recomputes
// the live chord from ZoneRef/ZoneKey at play time.
func (c *compiler) zoneWriteItems(z *zone.Zone) []writeItem {
	items := make([]writeItem, 0, len(z.InputKeyCodes))
	for _, key := range z.InputKeyCodes {
		notes, ok := z.NotesForKey(key, 0, 0)
		if !ok {
			items = append(items, writeItem{
				key:    key,
				slot:   AudioSlot{ClaimOnly: true, ChordIndex: -1, ZoneRef: z, ZoneKey: key},
				visual: VisualSlot{State: types.VisualActive, Color: z.Color, Label: "?", SourceName: z.Name},
			})
			continue
		}
		chordIdx := -1
		if len(notes) > 1 {
			chordIdx = len(c.pool)
			c.pool = append(c.pool, notes)
		}
		var action types.Action
		if len(notes) > 0 {
			action = types.Action{Kind: types.ActionNote, Note: types.NoteAction{
				Channel:  z.MidiChannel,
				MidiNote: notes[0].Pitch,
				Velocity: z.BaseVelocity,
			}}
		}
		items = append(items, writeItem{
			key: key,
			slot: AudioSlot{
				Active: true, Action: action, ChordIndex: chordIdx, ZoneRef: z, ZoneKey: key,
			},
			visual: VisualSlot{State: types.VisualActive, Color: z.Color, Label: z.Name, SourceName: z.Name},
		})
	}
	return items
}

func mappingWriteItem(m preset.Mapping) writeItem {
	return writeItem{
		key: keycode.Code(m.InputKey),
		slot: AudioSlot{
			Active: true, Action: m.Action, ChordIndex: -1,
		},
		visual: VisualSlot{
			State: types.VisualActive,
			Color: types.Color{R: 0.5, G: 0.5, B: 0.5, A: 1},
			Label: actionLabel(m.Action),
		},
	}
}

func actionLabel(a types.Action) string {
	switch a.Kind {
	case types.ActionNote:
		return "Note " + music.NoteName(a.Note.MidiNote)
	case types.ActionExpression:
		return "Expr"
	case types.ActionCommand:
		return "Cmd"
	default:
		return ""
	}
}

// applyWrites implements the write-policy semantics of spec.md §4.3.1/
// §4.3.2: the first write to a key within this pass makes it Active (or
// Override, if the slot already held inherited content); a second write to
// the same key within the same pass is a Conflict.
func applyWrites(audio *AudioGrid, visual *VisualGrid, items []writeItem) {
	touched := make(map[keycode.Code]bool)
	for _, it := range items {
		k := it.key
		if int(k) < 0 || int(k) >= keycode.GridSize {
			continue
		}
		if touched[k] {
			visual[k].State = types.VisualConflict
			visual[k].Color = types.ConflictColor
			visual[k].Label = it.visual.Label + " (!)"
			continue
		}
		touched[k] = true
		wasInherited := audio[k].Active || audio[k].ClaimOnly
		audio[k] = it.slot
		visual[k] = it.visual
		if wasInherited {
			visual[k].State = types.VisualOverride
		}
	}
}

// replicateModifiers implements spec.md §4.3.3: a write to a generic
// modifier pseudo-key (Shift/Control/Alt) replicates to both its left and
// right specific keys, unless a specific mapping already claimed that exact
// key in this same pass.
func replicateModifiers(audio *AudioGrid, visual *VisualGrid, items []writeItem) {
	specific := make(map[keycode.Code]bool)
	generic := make(map[keycode.Code]bool)
	for _, it := range items {
		for _, pair := range keycode.ModifierPairs {
			if it.key == pair.Generic {
				generic[it.key] = true
			}
			if it.key == pair.Left || it.key == pair.Right {
				specific[it.key] = true
			}
		}
	}
	for _, pair := range keycode.ModifierPairs {
		if !generic[pair.Generic] {
			continue
		}
		src := pair.Generic
		for _, dst := range []keycode.Code{pair.Left, pair.Right} {
			if specific[dst] {
				continue
			}
			audio[dst] = audio[src]
			visual[dst] = visual[src]
		}
	}
}

// Lookup finds a key's compiled slot for the given device alias and layer,
// returning zeroed slots and false if the alias has no device-specific
// grid (callers should fall back to the global grid in that case).
func (ctx *CompiledContext) Lookup(aliasHash types.AliasHash, layer types.LayerID, key keycode.Code) (AudioSlot, VisualSlot, bool) {
	if int(key) < 0 || int(key) >= keycode.GridSize || !layer.Valid() {
		return AudioSlot{}, VisualSlot{}, false
	}
	if aliasHash != types.AnyDeviceHash {
		if grids, ok := ctx.DeviceAudio[aliasHash]; ok {
			return grids[layer][key], ctx.DeviceVisual[aliasHash][layer][key], true
		}
	}
	return ctx.GlobalAudio[layer][key], ctx.GlobalVisual[layer][key], true
}
