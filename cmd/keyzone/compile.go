package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keyzone/internal/alias"
	"keyzone/internal/compiler"
	"keyzone/internal/keycode"
	"keyzone/internal/preset"
	"keyzone/internal/scale"
	"keyzone/internal/storage"
	"keyzone/internal/types"
)

var (
	compilePresetFile string
	compileAliasFile  string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a saved preset and print a textual grid dump",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, aliases, _, err := loadState(compilePresetFile, compileAliasFile)
		if err != nil {
			return err
		}
		ctx := compiler.Compile(p, aliases)
		printGrid(ctx, aliases)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVar(&compilePresetFile, "preset", "", "saved preset/alias state file")
	compileCmd.Flags().StringVar(&compileAliasFile, "alias-table", "", "alias table file (defaults to --preset's file; they are persisted together)")
	compileCmd.MarkFlagRequired("preset")
	rootCmd.AddCommand(compileCmd)
}

// loadState opens the combined preset+alias-table state file. presetFile and
// aliasFile are accepted as two flags to match the operator's mental model
// of "a preset" and "a device alias table", but internal/storage persists
// both together in one gzip'd file (spec.md §6.4), so a distinct
// aliasFile is only honored when it names a different path.
func loadState(presetFile, aliasFile string) (*preset.Preset, *alias.Table, *scale.Library, error) {
	p := preset.New()
	aliases := alias.NewTable()
	scales := scale.NewLibrary()

	store := storage.NewStore(presetFile)
	if err := store.Load(p, aliases, scales); err != nil {
		return nil, nil, nil, fmt.Errorf("loading %s: %w", presetFile, err)
	}
	if aliasFile != "" && aliasFile != presetFile {
		altStore := storage.NewStore(aliasFile)
		if err := altStore.Load(p, aliases, scales); err != nil {
			return nil, nil, nil, fmt.Errorf("loading %s: %w", aliasFile, err)
		}
	}
	return p, aliases, scales, nil
}

// printGrid renders every non-empty key slot of every layer, for the global
// device and every known device alias, as plain text. Grounded in the
// teacher's RenderPhraseView text-grid rendering style.
func printGrid(ctx *compiler.CompiledContext, aliases *alias.Table) {
	fmt.Println("=== global ===")
	for layer := 0; layer < types.NumLayers; layer++ {
		printLayer(types.LayerID(layer), ctx.GlobalVisual[layer])
	}

	for _, hash := range aliases.Hashes() {
		visuals, ok := ctx.DeviceVisual[hash]
		if !ok {
			continue
		}
		name := "alias"
		for _, n := range aliases.Names() {
			if aliases.HashForName(n) == hash {
				name = n
				break
			}
		}
		fmt.Printf("=== device: %s ===\n", name)
		for layer := 0; layer < types.NumLayers; layer++ {
			printLayer(types.LayerID(layer), visuals[layer])
		}
	}
}

func printLayer(layer types.LayerID, grid compiler.VisualGrid) {
	printed := false
	for key := 0; key < keycode.GridSize; key++ {
		slot := grid[key]
		if slot.State == types.VisualEmpty {
			continue
		}
		if !printed {
			fmt.Printf("-- layer %d --\n", layer)
			printed = true
		}
		fmt.Printf("  key 0x%02X [%s] %-12s %s\n", key, visualStateLabel(slot.State), slot.Label, slot.SourceName)
	}
}

func visualStateLabel(s types.VisualState) string {
	switch s {
	case types.VisualActive:
		return "active  "
	case types.VisualInherited:
		return "inherit "
	case types.VisualOverride:
		return "override"
	case types.VisualConflict:
		return "conflict"
	default:
		return "empty   "
	}
}
