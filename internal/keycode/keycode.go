// Package keycode defines the input key-code space shared by raw keyboard
// and touchpad events: OS virtual-key codes plus the pseudo-codes used for
// scroll wheels, absolute pointer axes, and touchpad contacts.
package keycode

// Code identifies a physical or virtual input. OS virtual-key codes occupy
// 0..0x0FFF; everything above that is a pseudo-code owned by this package.
type Code int

const (
	// ScrollUp and ScrollDown are emitted for mouse-wheel style devices.
	ScrollUp   Code = 0x1001
	ScrollDown Code = 0x1002

	// PointerX and PointerY are absolute-axis pseudo-codes for devices that
	// report position rather than discrete keys (e.g. a touchpad used as a
	// single pointer).
	PointerX Code = 0x2000
	PointerY Code = 0x2001

	// TouchBase is the start of the touchpad contact-id range; a contact's
	// code is TouchBase + contact_id.
	TouchBase Code = 0x3000
	TouchMax  Code = 0x3FFF
)

// TouchContactCode returns the pseudo-code for a touchpad contact id.
func TouchContactCode(contactID int) Code {
	return TouchBase + Code(contactID)
}

// IsTouchContact reports whether c names a touchpad contact.
func IsTouchContact(c Code) bool {
	return c >= TouchBase && c <= TouchMax
}

// Generic modifier keys and their left/right specific counterparts, used by
// the grid compiler's modifier-replication pass (spec.md §4.3.3). Values are
// representative OS virtual-key codes; exact numeric assignment matters only
// in that generic and specific codes are distinct and stable.
const (
	ShiftGeneric Code = 0x10
	ShiftLeft    Code = 0xA0
	ShiftRight   Code = 0xA1

	ControlGeneric Code = 0x11
	ControlLeft    Code = 0xA2
	ControlRight   Code = 0xA3

	AltGeneric Code = 0x12
	AltLeft    Code = 0xA4
	AltRight   Code = 0xA5
)

// ModifierPair maps a generic modifier to its two specific keys.
type ModifierPair struct {
	Generic Code
	Left    Code
	Right   Code
}

// ModifierPairs lists every generic/specific modifier relationship the grid
// compiler must replicate writes across.
var ModifierPairs = []ModifierPair{
	{ShiftGeneric, ShiftLeft, ShiftRight},
	{ControlGeneric, ControlLeft, ControlRight},
	{AltGeneric, AltLeft, AltRight},
}

// GridSize is the dense-array size used by the grid compiler's audio and
// visual grids: key codes 0..255 are addressed directly, matching spec.md
// §3.7. Pseudo-codes above this range are handled by the touchpad/axis path
// and never populate the dense key grids.
const GridSize = 256
