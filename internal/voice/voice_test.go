package voice

import (
	"testing"

	"keyzone/internal/midiport"
	"keyzone/internal/types"
)

func TestNoteOnSendsNoteOn(t *testing.T) {
	port := midiport.NewNullPort()
	m := NewManager(port)
	src := types.InputID{Device: 1, Key: 10}
	m.NoteOn(src, 60, 127, 1, false)
	if len(port.Messages) != 1 || port.Messages[0].Kind != midiport.NoteOn {
		t.Fatalf("expected 1 NoteOn, got %+v", port.Messages)
	}
}

func TestHandleKeyUpSendsNoteOffWhenNoSustainOrLatch(t *testing.T) {
	port := midiport.NewNullPort()
	m := NewManager(port)
	src := types.InputID{Device: 1, Key: 10}
	m.NoteOn(src, 60, 127, 1, true)
	m.HandleKeyUp(src, 0, false)
	if len(port.Messages) != 2 || port.Messages[1].Kind != midiport.NoteOff {
		t.Fatalf("expected NoteOn then NoteOff, got %+v", port.Messages)
	}
	if len(m.ActiveVoices()) != 0 {
		t.Error("voice should be dropped after release")
	}
}

func TestSustainKeepsVoiceUntilFallingEdge(t *testing.T) {
	port := midiport.NewNullPort()
	m := NewManager(port)
	src := types.InputID{Device: 1, Key: 10}
	m.SetSustain(true)
	m.NoteOn(src, 60, 127, 1, true)
	m.HandleKeyUp(src, 0, false)
	if len(m.ActiveVoices()) != 1 || m.ActiveVoices()[0].State != types.VoiceSustained {
		t.Fatalf("expected voice sustained, got %+v", m.ActiveVoices())
	}
	m.SetSustain(false)
	if len(m.ActiveVoices()) != 0 {
		t.Error("sustain falling edge should drop the voice")
	}
}

func TestLatchTurnsKeyUpIntoNoOpAndRepressReleases(t *testing.T) {
	port := midiport.NewNullPort()
	m := NewManager(port)
	src := types.InputID{Device: 1, Key: 10}
	m.SetLatch(true)
	m.NoteOn(src, 60, 127, 1, true)
	m.HandleKeyUp(src, 0, false)
	if len(m.ActiveVoices()) != 1 || m.ActiveVoices()[0].State != types.VoiceLatched {
		t.Fatalf("expected voice latched after key-up, got %+v", m.ActiveVoices())
	}
	// Re-pressing the same source while latched should release it.
	m.NoteOn(src, 60, 127, 1, true)
	if len(m.ActiveVoices()) != 0 {
		t.Error("re-press while latched should release the latch")
	}
}

func TestNoteOffCoalescingForSharedPitch(t *testing.T) {
	port := midiport.NewNullPort()
	m := NewManager(port)
	srcA := types.InputID{Device: 1, Key: 1}
	srcB := types.InputID{Device: 1, Key: 2}
	m.SetLatch(true)
	m.NoteOn(srcA, 60, 127, 1, true)
	m.NoteOn(srcB, 60, 127, 1, true)
	m.HandleKeyUp(srcA, 0, false)
	m.HandleKeyUp(srcB, 0, false)

	noteOffs := 0
	for _, msg := range port.Messages {
		if msg.Kind == midiport.NoteOff {
			noteOffs++
		}
	}
	if noteOffs != 0 {
		t.Fatalf("expected no NoteOffs while latched, got %d", noteOffs)
	}

	m.SetLatch(false)
	noteOffs = 0
	for _, msg := range port.Messages {
		if msg.Kind == midiport.NoteOff {
			noteOffs++
		}
	}
	if noteOffs != 1 {
		t.Fatalf("expected exactly 1 coalesced NoteOff for the shared pitch, got %d", noteOffs)
	}
}

func TestPanicClearsVoicesAndEmitsAllNotesOff(t *testing.T) {
	port := midiport.NewNullPort()
	m := NewManager(port)
	src := types.InputID{Device: 1, Key: 10}
	m.NoteOn(src, 60, 127, 1, false)
	m.Panic()
	if len(m.ActiveVoices()) != 0 {
		t.Error("panic should clear all voices")
	}
	found := false
	for _, msg := range port.Messages {
		if msg.Kind == midiport.AllNotesOffMsg {
			found = true
		}
	}
	if !found {
		t.Error("panic should emit all-notes-off")
	}
}
