// Package presetfind locates saved preset/alias state files on disk and
// offers an interactive picker for them. Adapted from the teacher's
// internal/project project-folder search + bubbletea picker: instead of
// looking for a fixed "data.json.gz" project folder, it looks for any
// "*.json.gz" state file written by internal/storage, since a keyzone
// preset is one file rather than a folder.
package presetfind

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PresetFile is one discovered preset/alias state file.
type PresetFile struct {
	Name     string
	Path     string
	Modified time.Time
}

// Search walks a small set of common directories (cwd, home, Documents,
// Music, Desktop) up to 3 levels deep and returns every "*.json.gz" file
// found, newest first.
func Search() ([]PresetFile, error) {
	var found []PresetFile
	for _, base := range searchPaths() {
		found = append(found, searchDir(base, 3)...)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Modified.After(found[j].Modified) })
	return dedupe(found), nil
}

func searchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home,
			filepath.Join(home, "Music"),
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
		)
	}
	return paths
}

func searchDir(dir string, maxDepth int) []PresetFile {
	if maxDepth <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var found []PresetFile
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)
		if entry.IsDir() {
			if strings.HasPrefix(name, ".") {
				continue
			}
			found = append(found, searchDir(full, maxDepth-1)...)
			continue
		}
		if !strings.HasSuffix(name, ".json.gz") {
			continue
		}
		if stat, err := entry.Info(); err == nil {
			found = append(found, PresetFile{Name: name, Path: full, Modified: stat.ModTime()})
		}
	}
	return found
}

func dedupe(files []PresetFile) []PresetFile {
	seen := make(map[string]bool, len(files))
	var out []PresetFile
	for _, f := range files {
		clean := filepath.Clean(f.Path)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		f.Path = clean
		out = append(out, f)
	}
	return out
}

// Picker is a bubbletea model listing discovered preset files.
type Picker struct {
	files    []PresetFile
	selected int
	done     bool
	result   string
	cancel   bool
}

type searchDoneMsg struct {
	files []PresetFile
	err   error
}

// NewPicker constructs a Picker that starts searching on Init.
func NewPicker() *Picker {
	return &Picker{}
}

func (m *Picker) Init() tea.Cmd {
	return func() tea.Msg {
		files, err := Search()
		return searchDoneMsg{files: files, err: err}
	}
}

func (m *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case searchDoneMsg:
		if msg.err != nil {
			log.Printf("preset search error: %v", msg.err)
		}
		m.files = msg.files
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel = true
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.files)-1 {
				m.selected++
			}
		case "enter":
			if len(m.files) > 0 {
				m.result = m.files[m.selected].Path
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Picker) View() string {
	title := lipgloss.NewStyle().Bold(true).Render("select a preset file")
	var b strings.Builder
	b.WriteString(title + "\n\n")
	if len(m.files) == 0 {
		b.WriteString("  (none found)\n")
	}
	for i, f := range m.files {
		style := lipgloss.NewStyle()
		if i == m.selected {
			style = style.Reverse(true)
		}
		b.WriteString(fmt.Sprintf("  %s\n", style.Render(fmt.Sprintf("%-30s %s", f.Name, f.Path))))
	}
	b.WriteString("\n↑/↓: navigate  enter: select  q: cancel")
	return b.String()
}

// Result returns the selected path and whether the picker was cancelled.
func (m *Picker) Result() (path string, cancelled bool) {
	return m.result, m.cancel || m.result == ""
}

// Run runs the picker program and returns the chosen path, or cancelled if
// the user quit without selecting one.
func Run() (path string, cancelled bool) {
	p := tea.NewProgram(NewPicker())
	final, err := p.Run()
	if err != nil {
		log.Printf("preset picker error: %v", err)
		return "", true
	}
	picker, ok := final.(*Picker)
	if !ok {
		return "", true
	}
	return picker.Result()
}
