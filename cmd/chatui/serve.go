package main

import (
	"fmt"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP server",
		Long: `Registers every enabled task with the scheduler and serves the report
index, the JSON API and /metrics until interrupted. Tasks left in the
analyzing state by an earlier process are reset to not_started first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to chatui config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := buildApp(ctx, cfg, st, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	reset, err := st.ResetStaleProgress(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		a.log.Warn("reset tasks left analyzing by a previous process", logging.F("count", reset))
	}

	n, err := a.sched.LoadEnabled(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %d tasks\n", n)

	a.sched.Start(ctx)
	go a.sched.Watch(ctx, cfg.Scheduler.ReloadInterval())
	serveErr := server.Start(ctx, server.StartOpts{
		Store:    st,
		Trigger:  a.sched,
		Sink:     a.sink,
		Gatherer: a.registry,
		Port:     cfg.Server.Port,
		Out:      cmd.OutOrStdout(),
		Log:      a.log,
	})

	// The server returns early only on a listen error; stop runs either way.
	cancel()
	fmt.Fprintln(cmd.OutOrStdout(), "Waiting for in-flight runs...")
	<-a.sched.Stop().Done()
	return serveErr
}

