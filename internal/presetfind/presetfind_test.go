package presetfind

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSearchDirFindsStateFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.json.gz", "sub/b.json.gz", "notes.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	found := searchDir(dir, 3)
	if len(found) != 2 {
		t.Fatalf("expected 2 state files, got %d: %+v", len(found), found)
	}
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	in := []PresetFile{
		{Name: "a", Path: "/x/a.json.gz"},
		{Name: "a again", Path: "/x/a.json.gz"},
		{Name: "b", Path: "/x/b.json.gz"},
	}
	out := dedupe(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique paths, got %d: %+v", len(out), out)
	}
}
