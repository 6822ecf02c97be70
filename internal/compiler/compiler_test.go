package compiler

import (
	"testing"

	"keyzone/internal/alias"
	"keyzone/internal/keycode"
	"keyzone/internal/preset"
	"keyzone/internal/scale"
	"keyzone/internal/types"
	"keyzone/internal/zone"
)

func TestGlobalLayerInheritsFromBelow(t *testing.T) {
	p := preset.New()
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: int(keycode.Code(0x41)), Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 60}},
	})
	aliases := alias.NewTable()

	ctx := Compile(p, aliases)

	if !ctx.GlobalAudio[0][0x41].Active {
		t.Fatal("base layer slot should be active")
	}
	if ctx.GlobalVisual[0][0x41].State != types.VisualActive {
		t.Errorf("base layer slot should be Active, got %v", ctx.GlobalVisual[0][0x41].State)
	}
	for l := 1; l < types.NumLayers; l++ {
		if !ctx.GlobalAudio[l][0x41].Active {
			t.Fatalf("layer %d should inherit base layer's mapping", l)
		}
		if ctx.GlobalVisual[l][0x41].State != types.VisualInherited {
			t.Errorf("layer %d slot should be Inherited, got %v", l, ctx.GlobalVisual[l][0x41].State)
		}
	}
}

func TestOverlayOverridesBase(t *testing.T) {
	p := preset.New()
	key := int(keycode.Code(0x42))
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: key, Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 60}},
	})
	p.AddMapping(types.LayerID(1), preset.Mapping{
		InputKey: key, Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 67}},
	})
	aliases := alias.NewTable()

	ctx := Compile(p, aliases)

	if ctx.GlobalVisual[1][key].State != types.VisualOverride {
		t.Errorf("overlay write over inherited content should be Override, got %v", ctx.GlobalVisual[1][key].State)
	}
	if ctx.GlobalAudio[1][key].Action.Note.MidiNote != 67 {
		t.Errorf("overlay mapping should win, got note %d", ctx.GlobalAudio[1][key].Action.Note.MidiNote)
	}
	if ctx.GlobalAudio[0][key].Action.Note.MidiNote != 60 {
		t.Error("base layer should be unaffected by the overlay write")
	}
}

func TestTwoMappingsSameKeySameLayerConflict(t *testing.T) {
	p := preset.New()
	key := int(keycode.Code(0x43))
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: key, Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 60}},
	})
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: key, Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 61}},
	})
	aliases := alias.NewTable()

	ctx := Compile(p, aliases)

	if ctx.GlobalVisual[0][key].State != types.VisualConflict {
		t.Errorf("two writes to the same key in the same layer pass should Conflict, got %v", ctx.GlobalVisual[0][key].State)
	}
	if want := "Note C#4 (!)"; ctx.GlobalVisual[0][key].Label != want {
		t.Errorf("conflict slot label should carry the incoming write's label plus \" (!)\", got %q want %q", ctx.GlobalVisual[0][key].Label, want)
	}
}

func TestDeviceGridIsolatesFromGlobal(t *testing.T) {
	p := preset.New()
	key := int(keycode.Code(0x44))
	aliases := alias.NewTable()
	hash, _ := aliases.Create("Launchpad")

	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: key, InputAlias: "Launchpad", Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 72}},
	})

	ctx := Compile(p, aliases)

	if ctx.GlobalAudio[0][key].Active {
		t.Error("a device-targeted mapping must not leak into the global grid")
	}
	grids, ok := ctx.DeviceAudio[hash]
	if !ok {
		t.Fatal("expected a device grid for the known alias")
	}
	if !grids[0][key].Active || grids[0][key].Action.Note.MidiNote != 72 {
		t.Errorf("device grid should carry the device-specific mapping, got %+v", grids[0][key])
	}
}

func TestDeviceGridInheritsGlobalContent(t *testing.T) {
	p := preset.New()
	globalKey := int(keycode.Code(0x45))
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: globalKey, Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 64}},
	})
	aliases := alias.NewTable()
	hash, _ := aliases.Create("Launchpad")

	ctx := Compile(p, aliases)

	grids := ctx.DeviceAudio[hash]
	if !grids[0][globalKey].Active {
		t.Error("device grid should inherit global-layer content")
	}
	if ctx.DeviceVisual[hash][0][globalKey].State != types.VisualInherited {
		t.Errorf("inherited global content on a device grid should be Inherited, got %v", ctx.DeviceVisual[hash][0][globalKey].State)
	}
}

func TestZoneChordIndexSetForMultiNoteChord(t *testing.T) {
	p := preset.New()
	lib := scale.NewLibrary()
	z := zone.New("Pad", lib)
	z.ChordType = types.ChordTriad
	z.SetInputKeyCodes([]keycode.Code{0x41})
	p.AddZone(z)
	aliases := alias.NewTable()

	ctx := Compile(p, aliases)

	slot := ctx.GlobalAudio[0][0x41]
	if !slot.Active || slot.ZoneRef != z {
		t.Fatalf("expected an active zone-originated slot, got %+v", slot)
	}
	if slot.ChordIndex < 0 {
		t.Fatal("a triad should produce a multi-note chord and a non-negative chord_index")
	}
	if len(ctx.ChordPool[slot.ChordIndex]) <= 1 {
		t.Errorf("chord_pool entry should have more than one note, got %v", ctx.ChordPool[slot.ChordIndex])
	}
}

func TestZoneMonophonicKeyHasNoChordIndex(t *testing.T) {
	p := preset.New()
	lib := scale.NewLibrary()
	z := zone.New("Lead", lib)
	z.SetInputKeyCodes([]keycode.Code{0x41})
	p.AddZone(z)
	aliases := alias.NewTable()

	ctx := Compile(p, aliases)

	slot := ctx.GlobalAudio[0][0x41]
	if slot.ChordIndex != -1 {
		t.Errorf("a monophonic zone key should have chord_index -1, got %d", slot.ChordIndex)
	}
}

func TestModifierReplicationSkipsAlreadyClaimedSpecificKey(t *testing.T) {
	p := preset.New()
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: int(keycode.ShiftGeneric), Enabled: true,
		Action: types.Action{Kind: types.ActionCommand, Command: types.CommandAction{CommandID: types.CmdSustainMomentary}},
	})
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: int(keycode.ShiftLeft), Enabled: true,
		Action: types.Action{Kind: types.ActionCommand, Command: types.CommandAction{CommandID: types.CmdPanic}},
	})
	aliases := alias.NewTable()

	ctx := Compile(p, aliases)

	left := ctx.GlobalAudio[0][keycode.ShiftLeft]
	right := ctx.GlobalAudio[0][keycode.ShiftRight]
	if left.Action.Command.CommandID != types.CmdPanic {
		t.Errorf("the specific ShiftLeft mapping should not be overwritten by generic replication, got %v", left.Action.Command.CommandID)
	}
	if right.Action.Command.CommandID != types.CmdSustainMomentary {
		t.Errorf("ShiftRight should receive the replicated generic write, got %v", right.Action.Command.CommandID)
	}
}

func TestLookupFallsBackToGlobalForUnknownAlias(t *testing.T) {
	p := preset.New()
	key := int(keycode.Code(0x46))
	p.AddMapping(types.BaseLayer, preset.Mapping{
		InputKey: key, Enabled: true,
		Action: types.Action{Kind: types.ActionNote, Note: types.NoteAction{MidiNote: 50}},
	})
	aliases := alias.NewTable()
	ctx := Compile(p, aliases)

	slot, _, ok := ctx.Lookup(types.AliasHash(99999), types.BaseLayer, keycode.Code(key))
	if !ok {
		t.Fatal("Lookup should succeed by falling back to the global grid")
	}
	if !slot.Active || slot.Action.Note.MidiNote != 50 {
		t.Errorf("expected the global mapping's note, got %+v", slot)
	}
}
