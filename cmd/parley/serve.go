package main

import (
	"github.com/aretw0/parley/internal/cli"
	httpadapter "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the wake-up scheduler",
	Long: `Starts the webhook/REST API, the Server-Sent Events stream of session diffs
and the scheduler that wakes sleeping sessions. Stops gracefully on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		streams := httpadapter.NewStreamManager()
		app, err := buildApp(ctx, cmd, cli.WithRunnerOptions(runner.WithDiffListener(streams.Broadcast)))
		if err != nil {
			return err
		}
		defer app.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			app.Config.HTTP.Addr = addr
		}
		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			app.Config.Flows.Watch = true
		}
		return cli.RunServe(ctx, app, streams)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload flow documents when they change")
}
