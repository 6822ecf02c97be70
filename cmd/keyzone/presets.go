package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keyzone/internal/presetfind"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Interactively find and print the path to a saved preset file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cancelled := presetfind.Run()
		if cancelled {
			return fmt.Errorf("no preset selected")
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
