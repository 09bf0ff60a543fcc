package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted sessions",
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		keys, err := app.Sessions().List(cmd.Context())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No sessions.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tFLOW\tSTATUS\tNODE\tLAST ACTIVITY")
		for _, key := range keys {
			s, err := app.Sessions().Load(cmd.Context(), key)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s v%d\t%s\t%s\t%s\n", s.Key, s.FlowID, s.FlowVersion, s.Status, s.CurrentNodeID, s.LastActivityAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <key>",
	Short: "Print a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		s, err := app.Sessions().Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:     "rm <key>",
	Aliases: []string{"delete"},
	Short:   "Delete a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Sessions().Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Session %s deleted.\n", args[0])
		return nil
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <key>",
	Short: "Wake a sleeping session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := app.Resume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel <key>",
	Short: "End a session from outside its flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		reason, _ := cmd.Flags().GetString("reason")
		res, err := app.Cancel(cmd.Context(), args[0], reason)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd, sessionInspectCmd, sessionRmCmd, sessionResumeCmd, sessionCancelCmd)

	sessionCancelCmd.Flags().String("reason", "", "Reason recorded on the session")
}
