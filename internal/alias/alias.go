// Package alias implements the device alias table (spec.md §3.6): a
// user-named grouping of hardware device identifiers, with reverse lookup
// from a hardware id to its alias hash. Grounded in the teacher's
// simple-map-backed settings stores (internal/storage/storage.go), adapted
// to the rename/collect-then-update contract the spec requires.
package alias

import (
	"hash/fnv"
	"sort"
	"sync"

	"keyzone/internal/types"
)

// HardwareID is an opaque per-device handle, matching the raw-input device
// handle in a key event (spec.md §6.1).
type HardwareID uint64

// Reserved alias names all resolve to AnyDeviceHash and cannot be created as
// distinct aliases.
var reservedNames = map[string]bool{
	"Any / Master": true,
	"Global":       true,
	"Unassigned":   true,
}

func isReserved(name string) bool { return reservedNames[name] }

// Alias is one named group of hardware devices. Hash is assigned once at
// creation (a stable hash of the original name) and never changes, even
// across renames — callers that need a hash-stable reference (e.g. Zone's
// target_alias_hash) are unaffected by a rename; callers that store the
// alias by name (e.g. Mapping's input_alias) must be rewritten by the
// caller on rename.
type Alias struct {
	Hash     types.AliasHash
	Name     string
	Hardware map[HardwareID]bool
}

type aliasError string

func (e aliasError) Error() string { return string(e) }

// Table is the device alias table. The zero value is not usable; use
// NewTable.
type Table struct {
	mu         sync.RWMutex
	byHash     map[types.AliasHash]*Alias
	byName     map[string]types.AliasHash
	byHardware map[HardwareID]types.AliasHash
}

// NewTable constructs an empty alias table.
func NewTable() *Table {
	return &Table{
		byHash:     make(map[types.AliasHash]*Alias),
		byName:     make(map[string]types.AliasHash),
		byHardware: make(map[HardwareID]types.AliasHash),
	}
}

func hashName(name string) types.AliasHash {
	h := fnv.New64a()
	h.Write([]byte(name))
	sum := h.Sum64()
	if sum == 0 {
		sum = 1 // never collide with AnyDeviceHash
	}
	return types.AliasHash(sum)
}

// Create adds a new alias, returning its stable hash. Reserved and
// already-used names are rejected.
func (t *Table) Create(name string) (types.AliasHash, error) {
	if isReserved(name) {
		return 0, aliasError("alias: " + name + " is a reserved name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byName[name]; exists {
		return 0, aliasError("alias: " + name + " already exists")
	}
	hash := hashName(name)
	for {
		if _, taken := t.byHash[hash]; !taken {
			break
		}
		hash++ // astronomically unlikely fnv collision; linear probe
	}
	t.byHash[hash] = &Alias{Hash: hash, Name: name, Hardware: make(map[HardwareID]bool)}
	t.byName[name] = hash
	return hash, nil
}

// Rename changes an alias's display name. The hash is unaffected. Returns
// the old name so the caller can rewrite any string references to it
// (spec.md §3.6: "Rename rewrites every mapping that referenced the old
// alias, collect-then-update, never mutate during iteration").
func (t *Table) Rename(hash types.AliasHash, newName string) (oldName string, err error) {
	if isReserved(newName) {
		return "", aliasError("alias: " + newName + " is a reserved name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byHash[hash]
	if !ok {
		return "", aliasError("alias: unknown hash")
	}
	if _, exists := t.byName[newName]; exists {
		return "", aliasError("alias: " + newName + " already exists")
	}
	oldName = a.Name
	delete(t.byName, oldName)
	a.Name = newName
	t.byName[newName] = hash
	return oldName, nil
}

// Delete removes an alias and all its hardware assignments. Mappings that
// referenced it by name are not rewritten here; per spec.md §7 they are
// silently retargeted to alias 0 on the next compile (the compiler's
// alias-name lookup falls back to AnyDeviceHash for unknown names).
func (t *Table) Delete(hash types.AliasHash) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byHash[hash]
	if !ok {
		return aliasError("alias: unknown hash")
	}
	for hw := range a.Hardware {
		delete(t.byHardware, hw)
	}
	delete(t.byName, a.Name)
	delete(t.byHash, hash)
	return nil
}

// AssignHardware attaches a hardware device to an alias, detaching it from
// any previous alias first.
func (t *Table) AssignHardware(hash types.AliasHash, hw HardwareID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byHash[hash]
	if !ok {
		return aliasError("alias: unknown hash")
	}
	if prevHash, had := t.byHardware[hw]; had {
		if prev, ok := t.byHash[prevHash]; ok {
			delete(prev.Hardware, hw)
		}
	}
	a.Hardware[hw] = true
	t.byHardware[hw] = hash
	return nil
}

// RemoveHardware detaches a hardware device from whatever alias it belongs
// to. A no-op if unassigned.
func (t *Table) RemoveHardware(hw HardwareID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hash, ok := t.byHardware[hw]; ok {
		if a, ok := t.byHash[hash]; ok {
			delete(a.Hardware, hw)
		}
		delete(t.byHardware, hw)
	}
}

// HashForHardware resolves a raw device handle to its alias hash, or
// AnyDeviceHash if the device has no alias.
func (t *Table) HashForHardware(hw HardwareID) types.AliasHash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if hash, ok := t.byHardware[hw]; ok {
		return hash
	}
	return types.AnyDeviceHash
}

// HashForName resolves an alias name to its hash for compiler/mapping
// lookups. Reserved names and unknown names both resolve to AnyDeviceHash
// (spec.md §7's "stale reference" recovery: deleted aliases are silently
// retargeted to alias 0).
func (t *Table) HashForName(name string) types.AliasHash {
	if name == "" || isReserved(name) {
		return types.AnyDeviceHash
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if hash, ok := t.byName[name]; ok {
		return hash
	}
	return types.AnyDeviceHash
}

// Hashes returns every known alias's hash, for iterating the device stack
// during grid compilation.
func (t *Table) Hashes() []types.AliasHash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hashes := make([]types.AliasHash, 0, len(t.byHash))
	for h := range t.byHash {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes
}

// Names returns every alias name, sorted, for display.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AliasSnapshot is the serializable form of one Alias.
type AliasSnapshot struct {
	Hash     types.AliasHash
	Name     string
	Hardware []HardwareID
}

// Snapshot is the serializable form of a Table, persisted by
// internal/storage (spec.md §6.4).
type Snapshot struct {
	Aliases []AliasSnapshot
}

// Snapshot captures the table's current content for persistence.
func (t *Table) Snapshot() Snapshot {
	hashes := t.Hashes()
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := Snapshot{Aliases: make([]AliasSnapshot, 0, len(hashes))}
	for _, h := range hashes {
		a := t.byHash[h]
		hw := make([]HardwareID, 0, len(a.Hardware))
		for id := range a.Hardware {
			hw = append(hw, id)
		}
		sort.Slice(hw, func(i, j int) bool { return hw[i] < hw[j] })
		snap.Aliases = append(snap.Aliases, AliasSnapshot{Hash: a.Hash, Name: a.Name, Hardware: hw})
	}
	return snap
}

// Restore replaces the table's content with snap's, preserving every
// alias's original stable hash.
func (t *Table) Restore(snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byHash = make(map[types.AliasHash]*Alias, len(snap.Aliases))
	t.byName = make(map[string]types.AliasHash, len(snap.Aliases))
	t.byHardware = make(map[HardwareID]types.AliasHash)
	for _, as := range snap.Aliases {
		hw := make(map[HardwareID]bool, len(as.Hardware))
		for _, id := range as.Hardware {
			hw[id] = true
			t.byHardware[id] = as.Hash
		}
		t.byHash[as.Hash] = &Alias{Hash: as.Hash, Name: as.Name, Hardware: hw}
		t.byName[as.Name] = as.Hash
	}
}
