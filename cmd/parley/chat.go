package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/pkg/adapters/console"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <flow-id>",
	Short: "Talk to a flow from the terminal",
	Long: `Plays the end-user of a flow. Every line typed goes through the same runner
as webhook messages, and delays are woken by an in-process scheduler.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		markdown, _ := cmd.Flags().GetBool("markdown")
		ch, err := console.New(os.Stdout, console.WithMarkdown(markdown && console.IsTerminal(os.Stdout)))
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if interval, _ := cmd.Flags().GetDuration("tick"); interval > 0 {
			cfg.Scheduler.Interval = interval
		}
		app, err := cli.Build(ctx, cfg, cli.WithChannel(ch))
		if err != nil {
			return err
		}
		defer app.Close()

		user, _ := cmd.Flags().GetString("user")
		quiet, _ := cmd.Flags().GetBool("quiet")
		return cli.RunChat(ctx, app, cli.ChatOptions{
			FlowID: args[0],
			UserID: user,
			In:     os.Stdin,
			Out:    os.Stdout,
			Quiet:  quiet,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("user", "u", "terminal", "User id of the conversation")
	chatCmd.Flags().Duration("tick", 0, "Scheduler interval for waking delays (overrides scheduler.interval)")
	chatCmd.Flags().Bool("markdown", true, "Render messages as markdown when attached to a terminal")
	chatCmd.Flags().BoolP("quiet", "q", false, "Hide the banner and system lines")
}
