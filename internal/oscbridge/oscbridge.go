// Package oscbridge mirrors every outgoing MIDI event to an OSC endpoint,
// for external visualizers/show-control software that would rather listen
// on OSC than open a MIDI port. Grounded in the teacher's internal/model
// OSC mirroring of mixer/instrument state (oscClient, osc.NewMessage,
// msg.Append, client.Send), generalized from those fixed, domain-specific
// addresses to one address per MIDI message kind.
package oscbridge

import (
	"log"

	"github.com/hypebeast/go-osc/osc"

	"keyzone/internal/midiport"
)

// Port decorates an inner midiport.Port, forwarding every call to it and
// also mirroring the event as an OSC message. A Send failure on the OSC
// side is logged and never blocks or fails the underlying MIDI call.
type Port struct {
	inner  midiport.Port
	client *osc.Client
}

// New wraps inner, mirroring its traffic to an OSC client at host:port.
func New(inner midiport.Port, host string, port int) *Port {
	return &Port{inner: inner, client: osc.NewClient(host, port)}
}

func (p *Port) send(msg *osc.Message) {
	if err := p.client.Send(msg); err != nil {
		log.Printf("[OSCBRIDGE] send error: %v", err)
	}
}

func (p *Port) SendNoteOn(channel, note int, velocity float64) {
	p.inner.SendNoteOn(channel, note, velocity)
	msg := osc.NewMessage("/keyzone/note_on")
	msg.Append(int32(channel))
	msg.Append(int32(note))
	msg.Append(float32(velocity))
	p.send(msg)
}

func (p *Port) SendNoteOff(channel, note int) {
	p.inner.SendNoteOff(channel, note)
	msg := osc.NewMessage("/keyzone/note_off")
	msg.Append(int32(channel))
	msg.Append(int32(note))
	p.send(msg)
}

func (p *Port) SendCC(channel, cc, value int) {
	p.inner.SendCC(channel, cc, value)
	msg := osc.NewMessage("/keyzone/cc")
	msg.Append(int32(channel))
	msg.Append(int32(cc))
	msg.Append(int32(value))
	p.send(msg)
}

func (p *Port) SendPitchBend(channel, value int) {
	p.inner.SendPitchBend(channel, value)
	msg := osc.NewMessage("/keyzone/pitch_bend")
	msg.Append(int32(channel))
	msg.Append(int32(value))
	p.send(msg)
}

func (p *Port) SendProgramChange(channel, program int) {
	p.inner.SendProgramChange(channel, program)
	msg := osc.NewMessage("/keyzone/program_change")
	msg.Append(int32(channel))
	msg.Append(int32(program))
	p.send(msg)
}

func (p *Port) AllNotesOff() {
	p.inner.AllNotesOff()
	p.send(osc.NewMessage("/keyzone/all_notes_off"))
}

func (p *Port) Close() error {
	return p.inner.Close()
}
