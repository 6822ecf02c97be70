package envelope

import (
	"testing"
	"time"

	"keyzone/internal/midiport"
	"keyzone/internal/types"
)

func TestFastPathSendsOnceWithoutActiveEnvelope(t *testing.T) {
	port := midiport.NewNullPort()
	e := NewEngine(port)
	defer e.Close()

	src := types.InputID{Device: 1, Key: 1}
	settings := types.ExpressionAction{AdsrTarget: types.AdsrCC, Data1: 20, UseCustomEnvelope: false}
	e.Trigger(src, 1, settings, 100)

	if e.ActiveCount() != 0 {
		t.Error("fast-path trigger should not insert an active envelope")
	}
	if len(port.Messages) != 1 || port.Messages[0].Value != 100 {
		t.Fatalf("expected one CC message with value 100, got %+v", port.Messages)
	}
}

func TestFastPathZeroValueStillSends(t *testing.T) {
	port := midiport.NewNullPort()
	e := NewEngine(port)
	defer e.Close()

	src := types.InputID{Device: 1, Key: 1}
	settings := types.ExpressionAction{AdsrTarget: types.AdsrCC, Data1: 20, UseCustomEnvelope: false}
	e.Trigger(src, 1, settings, 0)

	if len(port.Messages) != 1 || port.Messages[0].Value != 0 {
		t.Fatalf("a legitimately zero peak value must still send, not be swallowed by the delta gate: got %+v", port.Messages)
	}
}

func TestEnvelopeDeltaGateNoAdjacentDuplicates(t *testing.T) {
	port := midiport.NewNullPort()
	e := NewEngine(port)
	defer e.Close()

	src := types.InputID{Device: 1, Key: 1}
	settings := types.ExpressionAction{
		AdsrTarget: types.AdsrCC, Data1: 20, UseCustomEnvelope: true,
		AttackMs: 20, DecayMs: 20, SustainLevel: 0.5, ReleaseMs: 20,
		ValueWhenOff: 0,
	}
	e.Trigger(src, 1, settings, 127)
	time.Sleep(120 * time.Millisecond)
	e.Release(src)
	time.Sleep(120 * time.Millisecond)

	for i := 1; i < len(port.Messages); i++ {
		a, b := port.Messages[i-1], port.Messages[i]
		if a.Kind == b.Kind && a.Channel == b.Channel && a.CC == b.CC && a.Value == b.Value {
			t.Fatalf("adjacent duplicate values violate the delta gate: %+v then %+v", a, b)
		}
	}
}

func TestPitchBendPriorityHandoff(t *testing.T) {
	port := midiport.NewNullPort()
	e := NewEngine(port)
	defer e.Close()

	a := types.InputID{Device: 1, Key: 1}
	b := types.InputID{Device: 1, Key: 2}
	settings := types.ExpressionAction{
		AdsrTarget: types.AdsrPitchBend, UseCustomEnvelope: true,
		AttackMs: 10, DecayMs: 10, SustainLevel: 1, ReleaseMs: 10,
	}

	e.Trigger(a, 1, settings, 10000) // +2 semitones-ish peak
	time.Sleep(60 * time.Millisecond)
	e.Trigger(b, 1, settings, 14000) // +7 semitones-ish peak, becomes top
	time.Sleep(60 * time.Millisecond)

	if e.ActiveCount() != 2 {
		t.Fatalf("expected both envelopes tracked (one dormant), got %d", e.ActiveCount())
	}

	e.Release(b)
	time.Sleep(60 * time.Millisecond)

	if e.ActiveCount() != 1 {
		t.Fatalf("expected A's envelope to remain active after B releases, got %d", e.ActiveCount())
	}
}
