package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/report"
	"github.com/iyou00/chatui/internal/store"
)

const defaultReportLimit = 50

type handlers struct {
	store   Store
	trigger Trigger
	sink    report.Sink
	runCtx  context.Context
	log     logging.Logger
}

// registerRoutes sets up all routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers, gatherer prometheus.Gatherer) {
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Pages.
	router.GET("/", h.index)
	router.GET("/reports/:id", h.reportHTML)

	api := router.Group("/api")
	api.GET("/tasks", h.listTasks)
	api.GET("/tasks/:id", h.getTask)
	api.POST("/tasks/:id/run", h.runTask)
	api.GET("/reports", h.listReports)
}

type taskView struct {
	models.Task
	RoomNames []string `json:"room_names"`
	State     string   `json:"state"`
}

func (h *handlers) view(t models.Task) taskView {
	return taskView{Task: t, RoomNames: t.RoomList(), State: h.trigger.StateOf(t.ID).String()}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) index(c *gin.Context) {
	reports, err := h.store.ListReports(c.Request.Context(), store.ReportFilters{Limit: defaultReportLimit})
	if err != nil {
		h.internalError(c, err)
		return
	}
	tasks, err := h.store.ListTasks(c.Request.Context(), store.TaskFilters{})
	if err != nil {
		h.internalError(c, err)
		return
	}
	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = h.view(t)
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"tasks":   views,
		"reports": reports,
	})
}

func (h *handlers) listTasks(c *gin.Context) {
	var filters store.TaskFilters
	if v := c.Query("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "enabled must be true or false"})
			return
		}
		filters.Enabled = &enabled
	}
	tasks, err := h.store.ListTasks(c.Request.Context(), filters)
	if err != nil {
		h.internalError(c, err)
		return
	}
	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = h.view(t)
	}
	c.JSON(http.StatusOK, views)
}

func (h *handlers) getTask(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.view(*task))
}

func (h *handlers) runTask(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	if !h.trigger.TryRun(h.runCtx, task.ID) {
		c.JSON(http.StatusConflict, gin.H{"error": "task is already running", "task_id": task.ID})
		return
	}
	h.log.Info("manual run triggered", logging.F("task_id", task.ID), logging.F("remote", c.ClientIP()))
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "state": "running"})
}

func (h *handlers) listReports(c *gin.Context) {
	filters := store.ReportFilters{
		TaskID: c.Query("task_id"),
		RunID:  c.Query("run_id"),
		Status: c.Query("status"),
		Limit:  defaultReportLimit,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filters.Limit = n
	}
	reports, err := h.store.ListReports(c.Request.Context(), filters)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (h *handlers) reportHTML(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid report id")
		return
	}
	rep, err := h.store.GetReport(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.String(http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	if h.sink == nil || rep.FilePath == "" {
		c.String(http.StatusNotFound, "report has no stored file")
		return
	}
	rc, err := h.sink.Open(c.Request.Context(), rep.FilePath)
	if err != nil {
		h.log.Warn("open report file", logging.F("report_id", rep.ID), logging.Err(err))
		c.String(http.StatusNotFound, "report file unavailable")
		return
	}
	defer rc.Close()
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	io.Copy(c.Writer, rc)
}

func (h *handlers) loadTask(c *gin.Context) (*models.Task, bool) {
	task, err := h.store.GetTask(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return nil, false
	}
	if err != nil {
		h.internalError(c, err)
		return nil, false
	}
	return task, true
}

func (h *handlers) internalError(c *gin.Context, err error) {
	h.log.Error("request failed", logging.F("path", c.FullPath()), logging.Err(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
