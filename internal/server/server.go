// Package server exposes health, metrics, manual triggers and report
// browsing over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/report"
	"github.com/iyou00/chatui/internal/scheduler"
	"github.com/iyou00/chatui/internal/store"
)

// Store is the read side of the task and report stores.
type Store interface {
	ListTasks(ctx context.Context, filters store.TaskFilters) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListReports(ctx context.Context, filters store.ReportFilters) ([]models.Report, error)
	GetReport(ctx context.Context, id uint) (*models.Report, error)
}

// Trigger starts runs under the scheduler's re-entrancy guard.
type Trigger interface {
	TryRun(ctx context.Context, id string) bool
	StateOf(id string) scheduler.State
}

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Store    Store
	Trigger  Trigger
	Sink     report.Sink
	Gatherer prometheus.Gatherer // optional, defaults to prometheus.DefaultGatherer
	Port     int
	Out      io.Writer
	Log      logging.Logger
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully. Runs triggered over HTTP use ctx.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	router, err := NewRouter(ctx, opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "chatui server running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the Gin engine. runCtx is handed to runs started by the
// manual trigger endpoint.
func NewRouter(runCtx context.Context, opts StartOpts) (*gin.Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if opts.Trigger == nil {
		return nil, fmt.Errorf("server: trigger is required")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := template.New("index.html").Funcs(templateFuncs).Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("server: parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	h := &handlers{
		store:   opts.Store,
		trigger: opts.Trigger,
		sink:    opts.Sink,
		runCtx:  runCtx,
		log:     logging.OrNop(opts.Log),
	}
	registerRoutes(router, h, opts.Gatherer)
	return router, nil
}
