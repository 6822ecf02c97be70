package music

import "testing"

func TestNoteName(t *testing.T) {
	tests := []struct {
		midiNote int
		expected string
	}{
		{60, "C4"},
		{61, "C#4"},
		{21, "A0"},
		{0, "C-1"},
		{12, "C0"},
		{127, "G9"},
		{69, "A4"},
		{71, "B4"},
	}

	for _, tt := range tests {
		if got := NoteName(tt.midiNote); got != tt.expected {
			t.Errorf("NoteName(%d) = %q, expected %q", tt.midiNote, got, tt.expected)
		}
	}
}

func TestNoteNameOutOfRange(t *testing.T) {
	if got := NoteName(-1); got != "?" {
		t.Errorf("NoteName(-1) = %q, expected ?", got)
	}
	if got := NoteName(128); got != "?" {
		t.Errorf("NoteName(128) = %q, expected ?", got)
	}
}
