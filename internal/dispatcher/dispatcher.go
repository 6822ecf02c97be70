// Package dispatcher implements the input dispatcher (spec.md §4.4): the
// synchronous, allocation-light hot path that turns one raw key/axis event
// into voice-manager, envelope-engine, or strum-scheduler calls by reading
// the currently-published CompiledContext. Grounded in the teacher's
// synchronous tea.Msg handling in its input package (internal/input), with
// the bubbletea event loop replaced by a plain method call so the
// raw-input thread never blocks on a channel.
package dispatcher

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"keyzone/internal/alias"
	"keyzone/internal/compiler"
	"keyzone/internal/envelope"
	"keyzone/internal/glide"
	"keyzone/internal/keycode"
	"keyzone/internal/midiport"
	"keyzone/internal/rhythm"
	"keyzone/internal/scale"
	"keyzone/internal/strum"
	"keyzone/internal/types"
	"keyzone/internal/voice"
	"keyzone/internal/zone"
)

// defaultBendRangeSemitones is the pitch-bend range a Legato zone's glide is
// computed against, matching the RPN default (CC 6 = 2) a synth assumes
// before any Pitch-Bend-Range RPN is sent.
const defaultBendRangeSemitones = 2.0

// minAdaptiveGlideMs floors an adaptive glide's duration so a very fast
// retrigger still produces an audible, non-instantaneous slide.
const minAdaptiveGlideMs = 20.0

// zoneVoice tracks a Mono or Legato zone's single sounding voice: which
// physical key currently owns it (for retrigger/cutoff/release) and its
// rhythm analyzer for adaptive glide timing.
type zoneVoice struct {
	active    bool
	source    types.InputID
	basePitch int
	channel   int
	rhythm    *rhythm.Analyzer
}

// Dispatcher owns the narrow coordinator state the design notes call for
// (sustain/latch/transpose/layer-activation), plus references to the
// real-time engines and the currently-published compiled grid.
type Dispatcher struct {
	ctx atomic.Pointer[compiler.CompiledContext]

	aliases  *alias.Table
	voices   *voice.Manager
	envelope *envelope.Engine
	strum    *strum.Scheduler
	glide    *glide.Engine
	port     midiport.Port
	scales   *scale.Library
	zones    zoneSource

	monoMu     sync.Mutex
	monoVoices map[*zone.Zone]*zoneVoice

	// StudioMode, when false, forces every event's effective alias to 0
	// (global), per spec.md §4.4 step 1.
	StudioMode bool

	// ReleaseLatchedOnLatchOff mirrors the "release latched on off" option
	// referenced by command 3 (LatchToggle) in spec.md §6.3.
	ReleaseLatchedOnLatchOff bool

	mu                       sync.Mutex
	sustainActive            bool
	latchActive              bool
	globalChromaticTranspose int
	globalDegreeTranspose    int
	holdRefcount             [types.NumLayers]int
	toggled                  [types.NumLayers]bool
	soloActive               bool
	soloLayer                types.LayerID
	globalRootNote           int
	globalScaleName          string
}

// New constructs a Dispatcher wired to its real-time engines (voice, pitch/
// CC envelope, strum, glide), the MIDI port (used directly only for panic/
// all-notes-off), the alias table, and a scale library for the global
// scale-cycling commands.
func New(aliases *alias.Table, voices *voice.Manager, env *envelope.Engine, strummer *strum.Scheduler, glider *glide.Engine, port midiport.Port, scales *scale.Library) *Dispatcher {
	d := &Dispatcher{
		aliases:         aliases,
		voices:          voices,
		envelope:        env,
		strum:           strummer,
		glide:           glider,
		port:            port,
		scales:          scales,
		StudioMode:      true,
		globalScaleName: scale.FactoryScaleName,
		soloLayer:       -1,
		monoVoices:      make(map[*zone.Zone]*zoneVoice),
	}
	return d
}

// Publish installs a newly compiled context for subsequent events to read.
func (d *Dispatcher) Publish(ctx *compiler.CompiledContext) {
	d.ctx.Store(ctx)
}

// PublishedContext returns the currently installed compiled context, or nil
// if none has been published yet. Used by callers that need to inspect the
// compiled grid directly, such as tests; the `keyzone compile` debug dump
// calls compiler.Compile itself.
func (d *Dispatcher) PublishedContext() *compiler.CompiledContext {
	return d.ctx.Load()
}

// EffectiveTopLayer returns the highest layer with hold_refcount > 0 or
// toggled, per spec.md §6.3's "Effective top layer" rule; base layer 0 is
// always eligible.
func (d *Dispatcher) EffectiveTopLayer() types.LayerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.effectiveTopLayerLocked()
}

func (d *Dispatcher) effectiveTopLayerLocked() types.LayerID {
	if d.soloActive {
		return d.soloLayer
	}
	top := types.BaseLayer
	for l := types.NumLayers - 1; l > 0; l-- {
		if d.holdRefcount[l] > 0 || d.toggled[l] {
			top = types.LayerID(l)
			break
		}
	}
	return top
}

func (d *Dispatcher) effectiveAlias(device uint64) types.AliasHash {
	if !d.StudioMode {
		return types.AnyDeviceHash
	}
	return d.aliases.HashForHardware(alias.HardwareID(device))
}

// HandleKeyDown implements spec.md §4.4's key-down path. Key events carry
// no velocity (spec.md §6.1); a Note's loudness comes from its own
// configured velocity (plus random jitter), not from the input event.
func (d *Dispatcher) HandleKeyDown(device uint64, key keycode.Code) {
	ctx := d.ctx.Load()
	if ctx == nil {
		return
	}
	effAlias := d.effectiveAlias(device)
	top := d.EffectiveTopLayer()
	slot, _, ok := ctx.Lookup(effAlias, top, key)
	if !ok || (!slot.Active && !slot.ClaimOnly) {
		return
	}
	source := types.InputID{Device: device, Key: int(key)}

	if slot.ZoneRef != nil {
		d.playZone(source, slot)
		return
	}

	switch slot.Action.Kind {
	case types.ActionCommand:
		d.execCommandPress(slot.Action.Command)
	case types.ActionNote:
		d.playNote(source, slot.Action.Note)
	case types.ActionExpression:
		d.triggerExpressionDigital(source, slot.Action.Expression)
	}
}

// HandleKeyUp implements spec.md §4.4's key-up path.
func (d *Dispatcher) HandleKeyUp(device uint64, key keycode.Code) {
	ctx := d.ctx.Load()
	if ctx == nil {
		return
	}
	effAlias := d.effectiveAlias(device)
	top := d.EffectiveTopLayer()
	slot, _, ok := ctx.Lookup(effAlias, top, key)
	if !ok || (!slot.Active && !slot.ClaimOnly) {
		return
	}
	source := types.InputID{Device: device, Key: int(key)}

	if slot.ZoneRef != nil {
		d.releaseZone(source, slot.ZoneRef)
		return
	}

	switch slot.Action.Kind {
	case types.ActionCommand:
		d.execCommandRelease(slot.Action.Command)
	case types.ActionNote:
		d.voices.HandleKeyUp(source, 0, false)
	case types.ActionExpression:
		d.envelope.Release(source)
	}
}

// HandleAxis implements an Expression mapping driven by a continuous axis
// (spec.md §6.1's axis event); value is 0..1.
func (d *Dispatcher) HandleAxis(device uint64, code keycode.Code, value float64) {
	ctx := d.ctx.Load()
	if ctx == nil {
		return
	}
	effAlias := d.effectiveAlias(device)
	top := d.EffectiveTopLayer()
	slot, _, ok := ctx.Lookup(effAlias, top, code)
	if !ok || !slot.Active || slot.Action.Kind != types.ActionExpression {
		return
	}
	source := types.InputID{Device: device, Key: int(code)}
	d.triggerExpressionAxis(source, slot.Action.Expression, value)
}

func (d *Dispatcher) playNote(source types.InputID, note types.NoteAction) {
	pitch := note.MidiNote
	if note.FollowTranspose {
		pitch = clampPitch(pitch + d.currentChromaticTranspose())
	}
	velocity := randomizeVelocity(note.Velocity, note.VelocityRandom)
	// Every Note mapping respects the global sustain pedal and global
	// latch; ReleaseBehavior's SustainUntilRetrigger/AlwaysLatch variants
	// are per-note refinements handled at key-up (releaseZone/HandleKeyUp),
	// not a reason to opt a voice out of the pedal entirely.
	d.voices.NoteOn(source, pitch, velocity, note.Channel, true)
}

// randomizeVelocity applies up to ±spread of uniform jitter around base,
// clamped to the MIDI velocity range.
func randomizeVelocity(base, spread int) int {
	v := base
	if spread > 0 {
		v += rand.Intn(2*spread+1) - spread
	}
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return v
}

// triggerExpressionDigital handles an Expression mapping bound to a
// discrete key: the peak value is the mapping's configured Data2 (spec.md
// §4.4 step 7), already expressed in the target domain.
func (d *Dispatcher) triggerExpressionDigital(source types.InputID, exp types.ExpressionAction) {
	d.envelope.Trigger(source, exp.Channel, exp, float64(exp.Data2))
}

// triggerExpressionAxis handles an Expression mapping bound to a
// continuous axis: value01 (0..1) is scaled into the target domain.
func (d *Dispatcher) triggerExpressionAxis(source types.InputID, exp types.ExpressionAction, value01 float64) {
	domainMax := 127.0
	if isPitchBendTarget(exp.AdsrTarget) {
		domainMax = 16383
	}
	d.envelope.Trigger(source, exp.Channel, exp, value01*domainMax)
}

func isPitchBendTarget(t types.AdsrTarget) bool {
	return t == types.AdsrPitchBend || t == types.AdsrSmartScaleBend
}

func (d *Dispatcher) playZone(source types.InputID, slot compiler.AudioSlot) {
	if slot.ClaimOnly {
		return // spec.md §7 cache-miss: claims the key, emits nothing
	}
	z := slot.ZoneRef
	chromatic, degree := d.currentTransposeSnapshot()
	notes, ok := z.NotesForKey(slot.ZoneKey, chromatic, degree)
	if !ok || len(notes) == 0 {
		return
	}
	pitches := make([]int, len(notes))
	velocities := make([]int, len(notes))
	baseVel := randomizeVelocity(z.BaseVelocity, z.VelocityRandom)
	for i, n := range notes {
		pitches[i] = n.Pitch
		v := baseVel
		if n.Ghost {
			v = int(float64(baseVel) * z.GhostVelocityScale)
		}
		velocities[i] = v
	}
	allowSustain := z.ReleaseMode == types.ReleaseSustain || !z.IgnoreGlobalSustain

	// Mono and Legato only have a defined meaning for a single-note voice;
	// a chord or a strummed zone always plays in full (documented
	// simplification, see DESIGN.md).
	if z.Polyphony != types.PolyPoly && len(pitches) == 1 && z.PlayMode != types.PlayStrum {
		d.playMonoOrLegato(source, z, pitches[0], velocities[0], allowSustain)
		return
	}

	if z.PlayMode == types.PlayStrum && z.StrumSpeedMs > 0 {
		humanize := 0.0
		if z.StrumTimingVariationOn {
			humanize = z.StrumTimingVariationMs
		}
		d.strum.TriggerStrum(pitches, velocities, z.MidiChannel, z.StrumSpeedMs, source, allowSustain, z.StrumPattern, humanize)
		return
	}
	d.voices.NoteOnChord(source, pitches, velocities, z.MidiChannel, allowSustain)
}

// playMonoOrLegato implements the Mono and Legato polyphony modes: Mono cuts
// the zone's previous sounding note before playing the new one; Legato
// instead re-keys the still-sounding voice and glides its pitch bend toward
// the new note, grounded in PortamentoEngine's 5 ms ramp and, when
// is_adaptive_glide is set, RhythmAnalyzer's last-8-interval estimate.
func (d *Dispatcher) playMonoOrLegato(source types.InputID, z *zone.Zone, pitch, velocity int, allowSustain bool) {
	d.monoMu.Lock()
	v, ok := d.monoVoices[z]
	if !ok {
		v = &zoneVoice{rhythm: rhythm.NewAnalyzer()}
		d.monoVoices[z] = v
	}
	v.rhythm.LogTap(time.Now())
	wasActive := v.active
	prevSource := v.source

	if z.Polyphony == types.PolyLegato && wasActive {
		durationMs := z.GlideTimeMs
		if z.IsAdaptiveGlide {
			durationMs = v.rhythm.AdaptiveSpeed(minAdaptiveGlideMs, z.MaxGlideTimeMs)
		}
		target := glide.PitchBendFor(float64(pitch-v.basePitch), defaultBendRangeSemitones)
		v.source = source
		v.channel = z.MidiChannel
		d.monoMu.Unlock()

		d.voices.Retarget(prevSource, source)
		d.glide.StartGlide(z, z.MidiChannel, target, durationMs)
		return
	}

	v.active = true
	v.source = source
	v.basePitch = pitch
	v.channel = z.MidiChannel
	d.monoMu.Unlock()

	if wasActive && prevSource != source {
		d.voices.CutSource(prevSource)
	}
	if z.Polyphony == types.PolyLegato {
		d.glide.Stop(z)
	}
	d.voices.NoteOn(source, pitch, velocity, z.MidiChannel, allowSustain)
}

func (d *Dispatcher) releaseZone(source types.InputID, z *zone.Zone) {
	if z.Polyphony != types.PolyPoly {
		d.releaseMonoVoice(source, z)
	}
	if z.PlayMode == types.PlayStrum {
		d.strum.MarkSourceReleased(source, z.ReleaseDurationMs, z.ReleaseMode == types.ReleaseSustain)
	}
	durationMs := 0.0
	sustainThrough := false
	if z.DelayReleaseOn {
		durationMs = z.ReleaseDurationMs
		sustainThrough = z.ReleaseMode == types.ReleaseSustain
	}
	d.voices.HandleKeyUp(source, durationMs, sustainThrough)
}

// releaseMonoVoice ends a Mono/Legato zone's tracked voice only when the
// physical key releasing it is the one that currently owns it; releasing an
// earlier-held key that already lost ownership to a later retrigger is a
// no-op, matching a simple last-note-priority mono synth rather than a full
// key-stack fallback.
func (d *Dispatcher) releaseMonoVoice(source types.InputID, z *zone.Zone) {
	d.monoMu.Lock()
	v, ok := d.monoVoices[z]
	if !ok || v.source != source {
		d.monoMu.Unlock()
		return
	}
	v.active = false
	d.monoMu.Unlock()

	if z.Polyphony == types.PolyLegato {
		d.glide.Stop(z)
	}
}

func (d *Dispatcher) currentChromaticTranspose() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.globalChromaticTranspose
}

func (d *Dispatcher) currentTransposeSnapshot() (chromatic, degree int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.globalChromaticTranspose, d.globalDegreeTranspose
}

func clampPitch(p int) int {
	if p < 0 {
		return 0
	}
	if p > 127 {
		return 127
	}
	return p
}

// execCommandPress implements the press-side effects of spec.md §6.3's
// command table.
func (d *Dispatcher) execCommandPress(cmd types.CommandAction) {
	switch cmd.CommandID {
	case types.CmdSustainMomentary:
		d.setSustain(true)
	case types.CmdSustainToggle:
		d.mu.Lock()
		d.sustainActive = !d.sustainActive
		active := d.sustainActive
		d.mu.Unlock()
		d.voices.SetSustain(active)
	case types.CmdSustainInverse:
		d.setSustain(false)
	case types.CmdLatchToggle:
		d.mu.Lock()
		d.latchActive = !d.latchActive
		active := d.latchActive
		releaseOnOff := d.ReleaseLatchedOnLatchOff
		d.mu.Unlock()
		if !active && releaseOnOff {
			d.voices.PanicLatch()
		}
		d.voices.SetLatch(active)
	case types.CmdPanic:
		d.execPanic(cmd.PanicMode)
	case types.CmdPanicLatch:
		d.voices.PanicLatch()
	case types.CmdTranspose:
		d.applyTranspose(cmd.TransposeModify, cmd.TransposeValue)
	case types.CmdGlobalPitchDownLegacy:
		d.applyTranspose(types.TransposeDown1, 0)
	case types.CmdGlobalModeUp:
		d.adjustDegreeTranspose(1)
	case types.CmdGlobalModeDown:
		d.adjustDegreeTranspose(-1)
	case types.CmdLayerMomentary:
		d.mu.Lock()
		if cmd.TargetLayer.Valid() {
			d.holdRefcount[cmd.TargetLayer]++
		}
		d.mu.Unlock()
	case types.CmdLayerToggle:
		d.mu.Lock()
		if cmd.TargetLayer.Valid() {
			d.toggled[cmd.TargetLayer] = !d.toggled[cmd.TargetLayer]
		}
		d.mu.Unlock()
	case types.CmdLayerSolo:
		d.mu.Lock()
		d.holdRefcount = [types.NumLayers]int{}
		d.toggled = [types.NumLayers]bool{}
		if d.soloActive && d.soloLayer == cmd.TargetLayer {
			// Re-pressing the soloed layer ends the solo.
			d.soloActive = false
			d.soloLayer = -1
		} else {
			d.soloActive = true
			d.soloLayer = cmd.TargetLayer
		}
		d.mu.Unlock()
	case types.CmdGlobalRootUp:
		d.adjustGlobalRoot(1)
	case types.CmdGlobalRootDown:
		d.adjustGlobalRoot(-1)
	case types.CmdGlobalScaleNext:
		d.cycleGlobalScale(1)
	case types.CmdGlobalScalePrev:
		d.cycleGlobalScale(-1)
	case types.CmdGlobalScaleSet:
		d.setGlobalScale(cmd.ScaleName)
	}
}

// execCommandRelease implements the release-side effects of spec.md §6.3
// for the momentary commands; every other command is press-only.
func (d *Dispatcher) execCommandRelease(cmd types.CommandAction) {
	switch cmd.CommandID {
	case types.CmdSustainMomentary:
		d.setSustain(false)
	case types.CmdSustainInverse:
		d.setSustain(true)
	case types.CmdLayerMomentary:
		d.mu.Lock()
		if cmd.TargetLayer.Valid() && d.holdRefcount[cmd.TargetLayer] > 0 {
			d.holdRefcount[cmd.TargetLayer]--
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) setSustain(active bool) {
	d.mu.Lock()
	d.sustainActive = active
	d.mu.Unlock()
	d.voices.SetSustain(active)
}

func (d *Dispatcher) execPanic(mode types.PanicMode) {
	switch mode {
	case types.PanicLatchedOnly:
		d.voices.PanicLatch()
	case types.PanicChordsOnly:
		d.strum.CancelAll()
	default:
		d.voices.Panic()
	}
}

func (d *Dispatcher) applyTranspose(modify types.TransposeModify, value int) {
	d.mu.Lock()
	switch modify {
	case types.TransposeUp1:
		d.globalChromaticTranspose++
	case types.TransposeDown1:
		d.globalChromaticTranspose--
	case types.TransposeUp12:
		d.globalChromaticTranspose += 12
	case types.TransposeDown12:
		d.globalChromaticTranspose -= 12
	case types.TransposeSet:
		d.globalChromaticTranspose = value
	}
	if d.globalChromaticTranspose > 48 {
		d.globalChromaticTranspose = 48
	}
	if d.globalChromaticTranspose < -48 {
		d.globalChromaticTranspose = -48
	}
	d.mu.Unlock()
}

func (d *Dispatcher) adjustDegreeTranspose(delta int) {
	d.mu.Lock()
	d.globalDegreeTranspose += delta
	d.mu.Unlock()
}

// adjustGlobalRoot and the scale-cycling commands implement the
// underspecified "Global root/scale ops" of spec.md §6.3 items 13-17 by
// rewriting every zone opted into UseGlobalRoot/UseGlobalScale, since the
// zone data model has no separate global-root storage of its own.
func (d *Dispatcher) adjustGlobalRoot(deltaSemitones int) {
	d.mu.Lock()
	d.globalRootNote = clampPitch(d.globalRootNote + deltaSemitones)
	root := d.globalRootNote
	d.mu.Unlock()
	d.forEachGlobalRootZone(func(z *zone.Zone) {
		z.RootNote = root
		z.Touch()
	})
}

func (d *Dispatcher) cycleGlobalScale(direction int) {
	names := d.scales.Names()
	if len(names) == 0 {
		return
	}
	d.mu.Lock()
	idx := 0
	for i, n := range names {
		if n == d.globalScaleName {
			idx = i
			break
		}
	}
	idx = ((idx+direction)%len(names) + len(names)) % len(names)
	d.globalScaleName = names[idx]
	name := d.globalScaleName
	d.mu.Unlock()
	d.forEachGlobalScaleZone(func(z *zone.Zone) {
		z.ScaleName = name
		z.Touch()
	})
}

func (d *Dispatcher) setGlobalScale(name string) {
	d.mu.Lock()
	d.globalScaleName = name
	d.mu.Unlock()
	d.forEachGlobalScaleZone(func(z *zone.Zone) {
		z.ScaleName = name
		z.Touch()
	})
}

// zoneSource supplies the full zone list the global root/scale commands
// need to iterate; the session coordinator wires this to the preset's
// zone list.
type zoneSource interface {
	AllZones() []*zone.Zone
}

// SetZoneSource wires the zone list the global root/scale commands iterate;
// the session coordinator calls this with the preset.
func (d *Dispatcher) SetZoneSource(zs zoneSource) {
	d.mu.Lock()
	d.zones = zs
	d.mu.Unlock()
}

func (d *Dispatcher) forEachGlobalRootZone(fn func(*zone.Zone)) {
	d.mu.Lock()
	zs := d.zones
	d.mu.Unlock()
	if zs == nil {
		return
	}
	for _, z := range zs.AllZones() {
		if z.UseGlobalRoot {
			fn(z)
		}
	}
}

func (d *Dispatcher) forEachGlobalScaleZone(fn func(*zone.Zone)) {
	d.mu.Lock()
	zs := d.zones
	d.mu.Unlock()
	if zs == nil {
		return
	}
	for _, z := range zs.AllZones() {
		if z.UseGlobalScale {
			fn(z)
		}
	}
}
