package alias

import "testing"

func TestCreateRejectsReserved(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Create("Global"); err == nil {
		t.Error("expected error creating a reserved alias name")
	}
}

func TestCreateAndAssignHardware(t *testing.T) {
	tbl := NewTable()
	hash, err := tbl.Create("Launchpad")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tbl.AssignHardware(hash, 42); err != nil {
		t.Fatalf("AssignHardware: %v", err)
	}
	if got := tbl.HashForHardware(42); got != hash {
		t.Errorf("HashForHardware = %v, want %v", got, hash)
	}
}

func TestAssignHardwareMovesDevice(t *testing.T) {
	tbl := NewTable()
	a, _ := tbl.Create("A")
	b, _ := tbl.Create("B")
	tbl.AssignHardware(a, 1)
	tbl.AssignHardware(b, 1)
	if got := tbl.HashForHardware(1); got != b {
		t.Errorf("device should follow the most recent assignment: got %v want %v", got, b)
	}
}

func TestRenamePreservesHash(t *testing.T) {
	tbl := NewTable()
	hash, _ := tbl.Create("Old")
	oldName, err := tbl.Rename(hash, "New")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if oldName != "Old" {
		t.Errorf("oldName = %q, want Old", oldName)
	}
	if tbl.HashForName("New") != hash {
		t.Error("renamed alias should resolve under its new name")
	}
	if tbl.HashForName("Old") != 0 {
		t.Error("old name should no longer resolve to a real alias")
	}
}

func TestDeleteRetargetsToAnyDevice(t *testing.T) {
	tbl := NewTable()
	hash, _ := tbl.Create("Gone")
	tbl.AssignHardware(hash, 7)
	if err := tbl.Delete(hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := tbl.HashForHardware(7); got != 0 {
		t.Errorf("device of a deleted alias should fall back to AnyDeviceHash, got %v", got)
	}
	if got := tbl.HashForName("Gone"); got != 0 {
		t.Errorf("deleted alias name should resolve to AnyDeviceHash, got %v", got)
	}
}

func TestHashForNameUnknownFallsBack(t *testing.T) {
	tbl := NewTable()
	if got := tbl.HashForName("Nonexistent"); got != 0 {
		t.Errorf("unknown alias name should resolve to AnyDeviceHash, got %v", got)
	}
}
