// Package session wires the engines, the dispatcher, the preset store, and
// persistence into one runnable unit. It is a thin coordinator: the
// substantive mutable state already lives on dispatcher.Dispatcher (per
// spec.md §9's "global mutable state" design note); Session's own job is
// construction, recompiling on preset change, and autosaving. Grounded in
// the teacher's main.go wiring of model+storage+input into one process.
package session

import (
	"keyzone/internal/alias"
	"keyzone/internal/compiler"
	"keyzone/internal/dispatcher"
	"keyzone/internal/envelope"
	"keyzone/internal/glide"
	"keyzone/internal/midiport"
	"keyzone/internal/preset"
	"keyzone/internal/scale"
	"keyzone/internal/storage"
	"keyzone/internal/strum"
	"keyzone/internal/types"
	"keyzone/internal/voice"
)

// Session owns every long-lived piece needed to turn raw input into MIDI
// output for one preset.
type Session struct {
	Preset  *preset.Preset
	Aliases *alias.Table
	Scales  *scale.Library

	Port       midiport.Port
	Voices     *voice.Manager
	Envelope   *envelope.Engine
	Strum      *strum.Scheduler
	Glide      *glide.Engine
	Dispatcher *dispatcher.Dispatcher

	store      *storage.Store
	unsubscribe func()
}

// New constructs a Session around an existing preset, alias table, and MIDI
// port, wiring the three real-time engines and the dispatcher together and
// publishing an initial compiled grid. If store is non-nil, every preset
// mutation schedules a debounced autosave (spec.md §6.4).
func New(p *preset.Preset, aliases *alias.Table, port midiport.Port, store *storage.Store) *Session {
	scales := scale.NewLibrary()
	voices := voice.NewManager(port)
	env := envelope.NewEngine(port)
	glider := glide.NewEngine(port)

	sess := &Session{
		Preset:   p,
		Aliases:  aliases,
		Scales:   scales,
		Port:     port,
		Voices:   voices,
		Envelope: env,
		Glide:    glider,
		store:    store,
	}

	sched := strum.NewScheduler(func(source types.InputID, channel, note, velocity int, allowSustain bool) {
		port.SendNoteOn(channel, note, float64(velocity)/127.0)
		voices.AddStrummedVoice(source, channel, note, allowSustain)
	})
	voices.CancelStrum = sched.CancelAll
	sess.Strum = sched

	disp := dispatcher.New(aliases, voices, env, sched, glider, port, scales)
	disp.SetZoneSource(p)
	sess.Dispatcher = disp

	sess.Recompile()

	sess.unsubscribe = p.Subscribe(func(events []preset.Event) {
		sess.Recompile()
		if sess.store != nil {
			sess.store.AutoSave(sess.Preset, sess.Aliases)
		}
	})

	return sess
}

// Recompile runs the grid compiler against the current preset and alias
// table and publishes the result to the dispatcher. Callers normally don't
// need to call this directly: New subscribes to the preset so every
// mutation triggers it automatically.
func (s *Session) Recompile() {
	s.Dispatcher.Publish(compiler.Compile(s.Preset, s.Aliases))
}

// Flush saves immediately, bypassing the autosave debounce. Intended for a
// forced save on shutdown; a no-op if the Session has no Store.
func (s *Session) Flush() error {
	if s.store == nil {
		return nil
	}
	return s.store.Flush(s.Preset, s.Aliases)
}

// Close releases the engines' background goroutines and unsubscribes from
// the preset. The MIDI port is left open; callers that opened it are
// responsible for closing it.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Envelope.Close()
	s.Strum.Close()
	s.Glide.Close()
}
