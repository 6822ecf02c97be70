package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"keyzone/internal/midiport"
	"keyzone/internal/oscbridge"
	"keyzone/internal/session"
	"keyzone/internal/storage"
)

var (
	runPresetFile string
	runAliasFile  string
	runDevice     string
	runOSCPort    int
	runOSCHost    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a preset and drive MIDI output from it",
	Long: `run loads a preset and device alias table, compiles them, opens a MIDI
output (optionally mirrored over OSC), and shows a live status display. The
real-time engines run for as long as the process is alive; the status
display only visualizes them and offers a panic key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, aliases, _, err := loadState(runPresetFile, runAliasFile)
		if err != nil {
			return err
		}

		rtPort, err := midiport.OpenRTMIDIPort(runDevice)
		if err != nil {
			return err
		}
		var port midiport.Port = rtPort
		if runOSCPort > 0 {
			port = oscbridge.New(rtPort, runOSCHost, runOSCPort)
		}

		store := storage.NewStore(runPresetFile)
		sess := session.New(p, aliases, port, store)
		defer func() {
			sess.Flush()
			sess.Close()
			port.Close()
		}()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		m := newStatusModel(sess, rtPort.String())
		prog := tea.NewProgram(m, tea.WithAltScreen())

		go func() {
			<-c
			prog.Send(tea.Quit())
		}()

		_, err = prog.Run()
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runPresetFile, "preset", "", "saved preset/alias state file")
	runCmd.Flags().StringVar(&runAliasFile, "alias-table", "", "alias table file (defaults to --preset's file)")
	runCmd.Flags().StringVar(&runDevice, "device", "", "MIDI output device name (empty = first available)")
	runCmd.Flags().IntVar(&runOSCPort, "osc-port", 0, "mirror every outgoing event to this OSC port (0 disables)")
	runCmd.Flags().StringVar(&runOSCHost, "osc-host", "127.0.0.1", "OSC host to mirror to")
	runCmd.MarkFlagRequired("preset")
	rootCmd.AddCommand(runCmd)
}

type statusTickMsg struct{}

func tickStatus() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg { return statusTickMsg{} })
}

type statusModel struct {
	sess       *session.Session
	deviceName string
	panicked   int
}

func newStatusModel(sess *session.Session, deviceName string) *statusModel {
	return &statusModel{sess: sess, deviceName: deviceName}
}

func (m *statusModel) Init() tea.Cmd {
	return tickStatus()
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusTickMsg:
		return m, tickStatus()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "p":
			m.sess.Voices.Panic()
			m.sess.Port.AllNotesOff()
			m.panicked++
		}
	}
	return m, nil
}

func (m *statusModel) View() string {
	title := lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1).
		Render("keyzone")

	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)

	voices := len(m.sess.Voices.ActiveVoices())
	envelopes := m.sess.Envelope.ActiveCount()
	topLayer := m.sess.Dispatcher.EffectiveTopLayer()

	out := title + "\n\n"
	out += label.Render("device:       ") + value.Render(m.deviceName) + "\n"
	out += label.Render("top layer:    ") + value.Render(fmt.Sprintf("%d", topLayer)) + "\n"
	out += label.Render("active notes: ") + value.Render(fmt.Sprintf("%d", voices)) + "\n"
	out += label.Render("envelopes:    ") + value.Render(fmt.Sprintf("%d", envelopes)) + "\n"
	out += label.Render("panics sent:  ") + value.Render(fmt.Sprintf("%d", m.panicked)) + "\n"
	out += "\n" + label.Render("p: panic   q / ctrl+c: quit")
	return out
}
