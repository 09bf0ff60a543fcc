package main

import (
	"fmt"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow-id>",
	Short: "Export a flow as a Mermaid diagram",
	Long:  `Loads a flow from the flows directory and prints a Mermaid diagram (graph TD) of its nodes and handles.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		g, err := repo.Latest(cmd.Context(), args[0])
		if version, _ := cmd.Flags().GetInt("version"); version > 0 {
			g, err = repo.Get(cmd.Context(), args[0], version)
		}
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if key, _ := cmd.Flags().GetString("session"); key != "" {
			app, err := cli.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			s, err := app.Sessions().Load(cmd.Context(), key)
			if err != nil {
				return err
			}
			if s.FlowID == g.FlowID && s.FlowVersion != g.Version {
				if g, err = repo.Get(cmd.Context(), s.FlowID, s.FlowVersion); err != nil {
					return err
				}
			}
			overlay = graph.SessionOverlay(s)
		}
		fmt.Print(graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().Int("version", 0, "Flow version (0 for the latest)")
	graphCmd.Flags().String("session", "", "Highlight the trail of this session key")
}
