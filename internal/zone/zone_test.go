package zone

import (
	"testing"

	"keyzone/internal/keycode"
	"keyzone/internal/scale"
	"keyzone/internal/types"
)

func TestNotesForKeyLinearOutOfSet(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{1, 2, 3})
	if _, ok := z.NotesForKey(99, 0, 0); ok {
		t.Error("expected no notes for a key outside the zone's key-set")
	}
}

func TestNotesForKeyLinearDegreeFollowsIndex(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{10, 11, 12})
	z.RootNote = 60
	notes0, ok := z.NotesForKey(10, 0, 0)
	if !ok || len(notes0) != 1 || notes0[0].Pitch != 60 {
		t.Fatalf("key 0 should map to root: %v ok=%v", notes0, ok)
	}
	notes1, ok := z.NotesForKey(11, 0, 0)
	if !ok || len(notes1) != 1 || notes1[0].Pitch != 62 {
		t.Fatalf("key 1 should map to degree 1 (D, 62): %v ok=%v", notes1, ok)
	}
}

func TestNotesForKeyCachesAcrossCalls(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{10, 11, 12})
	first, _ := z.NotesForKey(10, 0, 0)
	second, _ := z.NotesForKey(10, 0, 0)
	if len(first) != len(second) || first[0].Pitch != second[0].Pitch {
		t.Errorf("cached lookup should be stable: %v vs %v", first, second)
	}
}

func TestTouchInvalidatesCache(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{10, 11, 12})
	z.NotesForKey(10, 0, 0)
	z.RootNote = 48
	z.Touch()
	notes, ok := z.NotesForKey(10, 0, 0)
	if !ok || notes[0].Pitch != 48 {
		t.Fatalf("expected new root to apply after Touch: %v", notes)
	}
}

func TestGlobalChromaticTransposeAppliedAtLookup(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{10})
	z.RootNote = 60
	base, _ := z.NotesForKey(10, 0, 0)
	shifted, _ := z.NotesForKey(10, 5, 0)
	if shifted[0].Pitch != base[0].Pitch+5 {
		t.Errorf("chromatic transpose should add 5 semitones: base=%v shifted=%v", base, shifted)
	}
}

func TestGlobalDegreeTransposeRecomputesChord(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{10})
	z.RootNote = 60
	z.ChordType = types.ChordTriad
	base, _ := z.NotesForKey(10, 0, 0)
	shifted, _ := z.NotesForKey(10, 0, 1)
	if shifted[0].Pitch == base[0].Pitch {
		t.Errorf("degree transpose should change the chord root, base=%v shifted=%v", base, shifted)
	}
}

func TestIgnoreGlobalTransposeFreezesZone(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{10})
	z.RootNote = 60
	z.IgnoreGlobalTranspose = true
	base, _ := z.NotesForKey(10, 0, 0)
	shifted, _ := z.NotesForKey(10, 12, 0)
	if shifted[0].Pitch != base[0].Pitch {
		t.Errorf("ignore_global_transpose should freeze the zone, base=%v shifted=%v", base, shifted)
	}
}

func TestGridLayoutDegreeRelativeToAnchor(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.LayoutStrategy = types.LayoutGrid
	z.GridInterval = 8
	// Q (row1,col0) is the anchor; W (row1,col1) is one column to the right.
	z.SetInputKeyCodes([]keycode.Code{0x51, 0x57})
	z.RootNote = 60
	notesQ, _ := z.NotesForKey(0x51, 0, 0)
	notesW, _ := z.NotesForKey(0x57, 0, 0)
	if notesQ[0].Pitch != 60 {
		t.Fatalf("anchor key should map to degree 0: %v", notesQ)
	}
	if notesW[0].Pitch != 62 {
		t.Fatalf("adjacent column should map to degree 1 (62): %v", notesW)
	}
}

func TestPianoLayoutWhiteAndBlackKeys(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.LayoutStrategy = types.LayoutPiano
	// A S D (row2, white keys) and Q W (row1, black keys above A and S).
	z.SetInputKeyCodes([]keycode.Code{0x41, 0x53, 0x44, 0x51, 0x57})
	z.RootNote = 60
	whiteA, ok := z.NotesForKey(0x41, 0, 0)
	if !ok || whiteA[0].Pitch != 60 {
		t.Fatalf("first white key should be degree 0 (C, 60): %v ok=%v", whiteA, ok)
	}
	blackQ, ok := z.NotesForKey(0x51, 0, 0)
	if !ok || blackQ[0].Pitch != 61 {
		t.Fatalf("black key above first white key should be a sharp (61): %v ok=%v", blackQ, ok)
	}
}

func TestPianoLayoutInvalidSharpEmitsNoNote(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.LayoutStrategy = types.LayoutPiano
	// White keys A S D F G H J (7, one octave: C..B); black key above D (index 2 = E) is invalid.
	white := []keycode.Code{0x41, 0x53, 0x44, 0x46, 0x47, 0x48, 0x4A}
	black := keycode.Code(0x45) // E, row1, col2 — aligns above D (white index 2)
	z.SetInputKeyCodes(append(append([]keycode.Code(nil), white...), black))
	z.RootNote = 60
	if _, ok := z.NotesForKey(black, 0, 0); ok {
		t.Error("expected no note for a black key above the E/B white-key position")
	}
}

func TestAddBassNotePrepended(t *testing.T) {
	lib := scale.NewLibrary()
	z := New("test", lib)
	z.SetInputKeyCodes([]keycode.Code{10})
	z.RootNote = 60
	z.ChordType = types.ChordTriad
	z.AddBassNote = true
	notes, _ := z.NotesForKey(10, 0, 0)
	if len(notes) < 2 {
		t.Fatalf("expected a bass note prepended: %v", notes)
	}
	if notes[0].Pitch != 48 {
		t.Errorf("bass note should default to one octave below root: %v", notes)
	}
}
