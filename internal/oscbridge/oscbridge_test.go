package oscbridge

import (
	"testing"

	"keyzone/internal/midiport"
)

func TestForwardsEveryCallToTheInnerPort(t *testing.T) {
	inner := midiport.NewNullPort()
	p := New(inner, "127.0.0.1", 9999)

	p.SendNoteOn(1, 60, 1.0)
	p.SendNoteOff(1, 60)
	p.SendCC(1, 20, 64)
	p.SendPitchBend(1, 8192)
	p.SendProgramChange(1, 5)
	p.AllNotesOff()

	if len(inner.Messages) != 5+16 {
		t.Fatalf("expected 5 individual messages plus 16 per-channel all-notes-off, got %d: %+v", len(inner.Messages), inner.Messages)
	}
	if inner.Messages[0].Kind != midiport.NoteOn || inner.Messages[0].Note != 60 {
		t.Errorf("expected the NoteOn to reach the inner port unchanged, got %+v", inner.Messages[0])
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close should forward to the inner port without error, got %v", err)
	}
}
