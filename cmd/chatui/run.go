package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/pipeline"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run <task-id>",
		Short: "Run one task now and wait for it to finish",
		Long: `Runs a task immediately in the foreground, writing one report per room.
Interrupting the command stops the run before the next room starts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to chatui config file")
	return cmd
}

func runRun(cmd *cobra.Command, configPath, taskID string) error {
	cfg, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := buildApp(ctx, cfg, st, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	state, err := a.sched.RunNow(ctx, taskID)
	if err != nil {
		return err
	}
	writeRunState(cmd.OutOrStdout(), state)
	if state.Status == models.RunFailed {
		return fmt.Errorf("run %s failed", state.RunID)
	}
	return nil
}

func writeRunState(out io.Writer, state *pipeline.RunState) {
	fmt.Fprintf(out, "Run %s of task %s: %s\n", state.RunID, state.TaskID, state.Status)
	fmt.Fprintf(out, "Window: %s (%d messages)\n", state.Window.Wire, state.TotalMessages)
	if len(state.Rooms) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tMESSAGES\tSOURCE\tRESULT\tREPORT")
	for _, r := range state.Rooms {
		result := "ok"
		if !r.OK {
			result = "failed"
			if r.Outcome.Kind != "" {
				result = "failed (" + string(r.Outcome.Kind) + ")"
			}
		}
		reportID := "-"
		if r.ReportID != 0 {
			reportID = fmt.Sprintf("%d", r.ReportID)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.Room, r.Messages, r.From, result, reportID)
	}
	w.Flush()
	fmt.Fprintf(out, "%d succeeded, %d failed\n", state.Succeeded, state.Failed)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
