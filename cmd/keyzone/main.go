// Command keyzone is the operator CLI for the key-zone performance engine:
// list MIDI devices, run a preset, panic a device, or dump a compiled grid
// for debugging. Grounded in the teacher's cobra-based command layout
// (other_examples' icco-genidi cmd/virtual.go) with its standalone flag
// parsing replaced by subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keyzone",
	Short: "MIDI performance-controller engine",
	Long:  "keyzone compiles a layered key/zone preset into MIDI output, with live remapping and an optional OSC mirror.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
