package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keyzone/internal/midiport"
)

var panicDevice string

var panicCmd = &cobra.Command{
	Use:   "panic",
	Short: "Send an immediate all-notes-off to a MIDI device",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := midiport.OpenRTMIDIPort(panicDevice)
		if err != nil {
			return err
		}
		defer port.Close()
		port.AllNotesOff()
		fmt.Println("sent all-notes-off")
		return nil
	},
}

func init() {
	panicCmd.Flags().StringVar(&panicDevice, "device", "", "MIDI output device name (empty = first available)")
	rootCmd.AddCommand(panicCmd)
}
