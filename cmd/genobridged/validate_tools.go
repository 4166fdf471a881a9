package main

import (
	"fmt"
	"os"

	"github.com/genobridge/genobridge/pkg/output"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/spf13/cobra"
)

var validateToolsDir string

var validateToolsCmd = &cobra.Command{
	Use:   "validate-tools",
	Short: "Load the tool catalogue and report any descriptor errors",
	Long: `Loads the embedded tool catalogue, plus any overlay directory
given with --tools-dir, and prints a table of every descriptor found.
Exits non-zero if the catalogue itself failed to load (duplicate name,
unknown category, malformed schema).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidateTools(validateToolsDir)
	},
}

func init() {
	validateToolsCmd.Flags().StringVar(&validateToolsDir, "tools-dir", "", "overlay directory of additional tool descriptors")
}

func runValidateTools(toolsDir string) error {
	printer := output.New()

	reg := registry.New()
	if err := reg.LoadBuiltin(toolsDir); err != nil {
		printer.Error("tool catalogue failed to load", "error", err)
		os.Exit(1)
	}

	descriptors := reg.All()
	summaries := make([]output.ToolSummary, 0, len(descriptors))
	for _, d := range descriptors {
		summaries = append(summaries, output.ToolSummary{
			Name:          d.Name,
			Category:      string(d.Category),
			ExecutionSide: string(d.ExecutionSide),
			LongRunning:   d.LongRunning,
			Problem:       validateProblem(d),
		})
	}

	printer.Tools(summaries)
	printer.Info(fmt.Sprintf("%d tools loaded", len(descriptors)))
	return nil
}

func validateProblem(d *registry.Descriptor) string {
	if err := d.Validate(); err != nil {
		return err.Error()
	}
	return ""
}
