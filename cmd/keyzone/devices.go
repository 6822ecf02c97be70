package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keyzone/internal/midiport"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available MIDI output devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := midiport.ListOutputDevices()
		if len(names) == 0 {
			fmt.Println("no MIDI output devices found")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
