package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/iyou00/chatui/internal/config"
	"github.com/iyou00/chatui/internal/db"
	"github.com/iyou00/chatui/internal/llm"
	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/pipeline"
	"github.com/iyou00/chatui/internal/report"
	"github.com/iyou00/chatui/internal/scheduler"
	"github.com/iyou00/chatui/internal/store"
	"github.com/iyou00/chatui/internal/transcript"
	"github.com/iyou00/chatui/internal/transcript/discord"
	"github.com/iyou00/chatui/internal/transcript/slack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const defaultConfigPath = "chatui.yaml"

// connectFromConfig loads the config file and opens the store it names.
func connectFromConfig(configPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store.New(gormDB), nil
}

// app is the fully wired process: store, pipeline, scheduler and the
// report sink the HTTP server reads from.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	store    *store.Store
	sink     report.Sink
	registry *prometheus.Registry
	metrics  *pipeline.Metrics
	runner   *pipeline.Runner
	sched    *scheduler.Scheduler
}

// buildApp wires every component from cfg. Log output goes to logOut.
func buildApp(ctx context.Context, cfg *config.Config, st *store.Store, logOut io.Writer) (*app, error) {
	log := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Output: logOut})

	source, err := newTranscriptSource(cfg, log)
	if err != nil {
		return nil, err
	}

	sink, err := report.NewSink(ctx, cfg.Reports)
	if err != nil {
		return nil, err
	}
	assembler, err := report.New(report.Opts{Sink: sink, Store: st, Log: log})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(registry)

	gateway := llm.New(llm.Opts{
		Providers: llm.NewProviders(cfg.LLM, &http.Client{}),
		Policy: llm.Policy{
			MaxAttempts: cfg.LLM.MaxAttempts,
			Delay:       llm.LinearDelay(cfg.LLM.RetryDelay()),
		},
		Timeout:      cfg.LLM.Timeout(),
		SafetyMargin: cfg.Pipeline.SafetyMarginTokens,
		Observer:     metrics,
		Log:          log,
	})

	runner, err := pipeline.New(pipeline.Opts{
		Tasks:            st,
		Source:           source,
		Cache:            st,
		Templates:        st,
		Analyzer:         gateway,
		Reports:          assembler,
		Metrics:          metrics,
		DefaultModel:     cfg.LLM.DefaultModel,
		RoomInterval:     cfg.Pipeline.RoomInterval(),
		FetchConcurrency: cfg.Pipeline.FetchConcurrency,
		Location:         cfg.Location(),
		Log:              log,
	})
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(scheduler.Opts{
		Runner:   runner,
		Tasks:    st,
		Metrics:  metrics,
		Location: cfg.Location(),
		Log:      log,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		sink:     sink,
		registry: registry,
		metrics:  metrics,
		runner:   runner,
		sched:    sched,
	}, nil
}

// newTranscriptSource routes unprefixed rooms to the chatlog service and
// slack:/discord: rooms to their APIs when a bot token is configured.
func newTranscriptSource(cfg *config.Config, log logging.Logger) (*transcript.Router, error) {
	router := &transcript.Router{Prefixed: make(map[string]transcript.Source)}

	if cfg.Chatlog.BaseURL != "" {
		chatlog, err := transcript.NewChatlogClient(transcript.ChatlogOpts{
			BaseURL: cfg.Chatlog.BaseURL,
			Timeout: cfg.Chatlog.Timeout(),
			Format:  cfg.Chatlog.Format,
			Log:     log,
		})
		if err != nil {
			return nil, err
		}
		router.Default = chatlog
	}
	if cfg.Slack.BotToken != "" {
		src, err := slack.New(slack.SourceOpts{BotToken: cfg.Slack.BotToken, Log: log})
		if err != nil {
			return nil, err
		}
		router.Prefixed["slack"] = src
	}
	if cfg.Discord.BotToken != "" {
		src, err := discord.New(discord.SourceOpts{BotToken: cfg.Discord.BotToken, Log: log})
		if err != nil {
			return nil, err
		}
		router.Prefixed["discord"] = src
	}
	return router, nil
}
