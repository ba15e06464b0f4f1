package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"calibmon/internal/bootstrap"
	"calibmon/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var overrides bootstrap.Overrides

	root := &cobra.Command{
		Use:           "calibmon",
		Short:         "Device calibration monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&overrides.LaunchURL, "launch-url", "", "launch URL carrying device_id and session_id")
	flags.StringVar(&overrides.DeviceID, "device-id", "", "device to calibrate")
	flags.StringVar(&overrides.SessionID, "session-id", "", "session to poll (skips lookup)")
	flags.StringVar(&overrides.BackendURL, "backend-url", "", "backend base URL")
	flags.BoolVar(&overrides.DisableJournal, "no-journal", false, "do not record calibration runs")

	root.AddCommand(newRunCmd(&overrides))
	root.AddCommand(newSessionsCmd(&overrides))
	root.AddCommand(newHistoryCmd(&overrides))
	return root
}

func newRunCmd(overrides *bootstrap.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Calibrate a device in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink := tui.NewSink()
			services, err := bootstrap.Build(sink, sink, nil, *overrides)
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			model := tui.NewModel(services.Controller, services.Renderer)
			if err := services.Controller.Start(ctx); err != nil {
				return err
			}
			target, err := tui.Run(ctx, model, sink)
			if err != nil {
				return err
			}
			if target != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "calibration complete, continue at %s\n", target)
			}
			return nil
		},
	}
}

func newSessionsCmd(overrides *bootstrap.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the device's sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap.Resolve(*overrides)
			if err != nil {
				return err
			}
			sessions, err := rt.NewBackend().ListSessions(cmd.Context(), rt.DeviceID)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no sessions for device %s\n", rt.DeviceID)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "\tID\tMODE")
			for i, s := range sessions {
				marker := ""
				if i == len(sessions)-1 {
					marker = "*"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", marker, s.ID, s.Modo)
			}
			return w.Flush()
		},
	}
}

func newHistoryCmd(overrides *bootstrap.Overrides) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent calibration runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap.Resolve(*overrides)
			if err != nil {
				return err
			}
			store, err := rt.OpenJournal()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("run journal is disabled")
			}
			defer func() { _ = store.Close() }()

			records, err := store.Recent(cmd.Context(), overrides.DeviceID, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no calibration runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "RECORDED\tDEVICE\tSESSION\tOUTCOME\tMODE SWITCH\tRESTART")
			for _, r := range records {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
					r.DeviceID, r.SessionID, r.Outcome, r.ModeSwitch, r.ForceRestart)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
