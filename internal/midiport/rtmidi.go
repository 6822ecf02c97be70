//go:build !windows

package midiport

import (
	"fmt"
	"log"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// RTMIDIPort is the real, rtmidi-backed Port implementation. It sends raw
// status/data bytes directly, matching the teacher's internal/midiconnector
// device wrapper, generalized to the full Port contract (CC, pitch-bend,
// program change, all-notes-off).
type RTMIDIPort struct {
	mu  sync.Mutex
	out drivers.Out
}

// ListOutputDevices returns the names of every available MIDI output port.
func ListOutputDevices() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}

// OpenRTMIDIPort opens the named output device. An empty name opens the
// first available port.
func OpenRTMIDIPort(name string) (*RTMIDIPort, error) {
	var out drivers.Out
	var err error
	if name == "" {
		outs := midi.GetOutPorts()
		if len(outs) == 0 {
			return nil, fmt.Errorf("midiport: no MIDI output devices available")
		}
		out = outs[0]
	} else {
		out, err = midi.FindOutPort(name)
		if err != nil {
			return nil, fmt.Errorf("midiport: %w", err)
		}
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("midiport: opening %s: %w", out.String(), err)
	}
	return &RTMIDIPort{out: out}, nil
}

func (p *RTMIDIPort) send(bytes []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.out.Send(bytes); err != nil {
		log.Printf("[MIDIPORT] send error: %v", err)
	}
}

func (p *RTMIDIPort) SendNoteOn(channel, note int, velocity float64) {
	ch := byte(clampChannel(channel) - 1)
	p.send([]byte{0x90 | ch, byte(clampByte(note)), byte(velocityByte(velocity))})
}

func (p *RTMIDIPort) SendNoteOff(channel, note int) {
	ch := byte(clampChannel(channel) - 1)
	p.send([]byte{0x80 | ch, byte(clampByte(note)), 0})
}

func (p *RTMIDIPort) SendCC(channel, cc, value int) {
	ch := byte(clampChannel(channel) - 1)
	p.send([]byte{0xB0 | ch, byte(clampByte(cc)), byte(clampByte(value))})
}

func (p *RTMIDIPort) SendPitchBend(channel, value int) {
	if value < 0 {
		value = 0
	}
	if value > 16383 {
		value = 16383
	}
	ch := byte(clampChannel(channel) - 1)
	lsb := byte(value & 0x7F)
	msb := byte((value >> 7) & 0x7F)
	p.send([]byte{0xE0 | ch, lsb, msb})
}

func (p *RTMIDIPort) SendProgramChange(channel, program int) {
	ch := byte(clampChannel(channel) - 1)
	p.send([]byte{0xC0 | ch, byte(clampByte(program))})
}

func (p *RTMIDIPort) AllNotesOff() {
	for ch := 0; ch < 16; ch++ {
		p.send([]byte{0xB0 | byte(ch), 123, 0})
	}
}

func (p *RTMIDIPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Close()
}

// String returns the underlying device's name, for status displays.
func (p *RTMIDIPort) String() string {
	return p.out.String()
}
