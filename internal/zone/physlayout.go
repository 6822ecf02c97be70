package zone

import "keyzone/internal/keycode"

// physPos is a key's row/column position on the ambient physical keyboard
// layout used by the Grid and Piano layout strategies (spec.md §4.2 step 2).
// Row 0 is the physically topmost row.
type physPos struct {
	Row, Col int
}

// Representative Windows-style virtual-key codes for the rows a Grid or
// Piano zone is typically built from. Keys outside this table fall back to
// the Linear strategy, per spec.md §4.2 step 2's Grid case.
var physicalLayout = buildPhysicalLayout()

func buildPhysicalLayout() map[keycode.Code]physPos {
	rows := [][]int{
		{0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x30}, // 1..9,0
		{0x51, 0x57, 0x45, 0x52, 0x54, 0x59, 0x55, 0x49, 0x4F, 0x50}, // Q W E R T Y U I O P
		{0x41, 0x53, 0x44, 0x46, 0x47, 0x48, 0x4A, 0x4B, 0x4C},       // A S D F G H J K L
		{0x5A, 0x58, 0x43, 0x56, 0x42, 0x4E, 0x4D},                  // Z X C V B N M
	}
	layout := make(map[keycode.Code]physPos)
	for r, row := range rows {
		for c, code := range row {
			layout[keycode.Code(code)] = physPos{Row: r, Col: c}
		}
	}
	return layout
}

// lookupPhys returns the physical position of code, or ok=false if code is
// not part of the ambient layout table.
func lookupPhys(code keycode.Code) (physPos, bool) {
	p, ok := physicalLayout[code]
	return p, ok
}
