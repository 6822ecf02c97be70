// Package music converts MIDI note numbers to display names. Adapted from
// the teacher's internal/music note-naming helper: the tracker's
// fixed-3-character cell format ("c-4", "f#1") is generalized to the
// conventional "C4"/"F#1" form used by the grid compiler's key labels and
// the CLI's status/debug output, which have no fixed-width cell to fill.
package music

import "fmt"

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName renders a MIDI note number (0-127) as e.g. "C4" or "F#-1".
// Note 60 ("middle C") is C4, matching spec.md's channel/note conventions.
func NoteName(midiNote int) string {
	if midiNote < 0 || midiNote > 127 {
		return "?"
	}
	octave := midiNote/12 - 1
	return fmt.Sprintf("%s%d", noteNames[midiNote%12], octave)
}
