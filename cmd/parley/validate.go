package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate flow documents",
	Long: `Decodes and validates flow documents. With file arguments each file is checked
on its own; without them every document in the flows directory is loaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		if len(args) > 0 {
			return validateFiles(args, jsonOut)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := cfg.Log.Logger()
		if err != nil {
			return err
		}
		repo, err := loam.Open(cmd.Context(), cfg.Flows.Dir, loam.WithLogger(logger))
		if err != nil {
			return err
		}
		return listValid(cmd.Context(), repo)
	},
}

func validateFiles(paths []string, jsonOut bool) error {
	var reports []mcp.ValidationReport
	invalid := 0
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		r := mcp.Validate(p, data)
		if !r.Valid {
			invalid++
		}
		reports = append(reports, r)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for i, r := range reports {
			if r.Valid {
				fmt.Printf("✓ %s (%s)\n", paths[i], r.FlowID)
				continue
			}
			fmt.Printf("✗ %s\n", paths[i])
			for _, e := range r.Errors {
				fmt.Printf("    %s\n", e)
			}
			for _, p := range r.Problems {
				fmt.Printf("    %s\n", p)
			}
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d documents are invalid", invalid, len(paths))
	}
	return nil
}

func listValid(ctx context.Context, repo *loam.FlowRepository) error {
	flows, err := repo.List(ctx)
	if err != nil {
		return err
	}
	if len(flows) == 0 {
		return fmt.Errorf("no valid flows found")
	}
	for _, f := range flows {
		fmt.Printf("✓ %s v%d\n", f.FlowID, f.Latest)
	}
	fmt.Println(tui.Faint(os.Stdout, "Invalid documents are reported in the log and skipped."))
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().Bool("json", false, "Print reports as JSON")
}
