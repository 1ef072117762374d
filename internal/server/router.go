package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/agentctl/internal/history"
	"github.com/loykin/agentctl/internal/logger"
	mng "github.com/loykin/agentctl/internal/manager"
	"github.com/loykin/agentctl/internal/metrics"
)

// Router exposes the supervisor over HTTP. Every handler answers with JSON;
// failures carry success=false and a server-error status.
//
//	GET  {base}/api/agents/status
//	POST {base}/api/agents/:name/start
//	POST {base}/api/agents/:name/stop
//	POST {base}/api/agents/start-all
//	POST {base}/api/agents/stop-all
//	GET  {base}/api/agents/:name/history?limit=20
//	GET  {base}/api/logs/:name?lines=50
//	GET  {base}/api/alerts
//	GET  {base}/api/system/info
//	POST {base}/api/config/reload
//	GET  {base}/metrics
//
// Starts over HTTP never prompt: API callers are taken to have confirmed any
// agent warning already.
type Router struct {
	mgr      *mng.Manager
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a Router mounted under basePath, which may be empty.
func NewRouter(mgr *mng.Manager, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath), log: log}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(r.requestLog(), gin.CustomRecovery(r.recovered))
	group := g.Group(r.basePath)

	api := group.Group("/api")
	api.GET("/agents/status", r.handleStatus)
	api.POST("/agents/start-all", r.handleStartAll)
	api.POST("/agents/stop-all", r.handleStopAll)
	api.POST("/agents/:name/start", r.handleStart)
	api.POST("/agents/:name/stop", r.handleStop)
	api.GET("/agents/:name/history", r.handleHistory)
	api.GET("/logs/:name", r.handleLogs)
	api.GET("/alerts", r.handleAlerts)
	api.GET("/system/info", r.handleSystemInfo)
	api.POST("/config/reload", r.handleReload)

	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	g.NoRoute(func(c *gin.Context) {
		writeJSON(c, http.StatusNotFound, actionResp{Success: false, Message: "not found: " + c.Request.URL.Path})
	})
	return g
}

// NewServer builds an http.Server for the router. It does not start listening.
func NewServer(addr, basePath string, mgr *mng.Manager, log *slog.Logger) *http.Server {
	r := NewRouter(mgr, basePath, log)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// bulk operations block for several seconds per agent
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// Serve listens on srv.Addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, srv, ln)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// --- Responses ---

type actionResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PID     int    `json:"pid,omitempty"`
}

type bulkStartResp struct {
	Success bool     `json:"success"`
	Started []string `json:"started"`
	Failed  []string `json:"failed"`
	Message string   `json:"message"`
}

type bulkStopResp struct {
	Success bool     `json:"success"`
	Stopped []string `json:"stopped"`
	Failed  []string `json:"failed"`
	Message string   `json:"message"`
}

type statusResp struct {
	Agents []mng.AgentStatus `json:"agents"`
}

type logsResp struct {
	Agent string   `json:"agent"`
	Lines []string `json:"lines"`
}

type historyResp struct {
	Agent  string          `json:"agent"`
	Events []history.Event `json:"events"`
}

type alertsResp struct {
	Alerts []logger.Alert `json:"alerts"`
}

// --- Handlers ---

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{Agents: mng.VisibleStatus(r.mgr.StatusAll())})
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: "invalid agent name: " + name})
		return
	}
	res, err := r.mgr.Start(c.Request.Context(), name, mng.StartOptions{})
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: err.Error(), PID: res.PID})
		return
	}
	writeJSON(c, http.StatusOK, actionResp{Success: true, Message: fmt.Sprintf("Started %s (PID %d)", name, res.PID), PID: res.PID})
}

// handleStop detaches from the request context: a client that disconnects
// mid-stop does not cut the graceful window short.
func (r *Router) handleStop(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: "invalid agent name: " + name})
		return
	}
	res, err := r.mgr.Stop(context.WithoutCancel(c.Request.Context()), name)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: err.Error()})
		return
	}
	msg := "Stopped " + name
	switch {
	case !res.WasRunning:
		msg = name + " was not running"
	case res.Forced:
		msg += " (killed after timeout)"
	}
	writeJSON(c, http.StatusOK, actionResp{Success: true, Message: msg, PID: res.PID})
}

func (r *Router) handleStartAll(c *gin.Context) {
	res := r.mgr.StartAllEnabled(c.Request.Context(), mng.StartOptions{})
	writeJSON(c, http.StatusOK, bulkStartResp{
		Success: res.OK(),
		Started: res.Succeeded,
		Failed:  res.Failed,
		Message: res.Summary("Started"),
	})
}

func (r *Router) handleStopAll(c *gin.Context) {
	res := r.mgr.StopAll(context.WithoutCancel(c.Request.Context()))
	writeJSON(c, http.StatusOK, bulkStopResp{
		Success: res.OK(),
		Stopped: res.Succeeded,
		Failed:  res.Failed,
		Message: res.Summary("Stopped"),
	})
}

func (r *Router) handleLogs(c *gin.Context) {
	name := c.Param("name")
	n := queryInt(c, "lines", mng.DefaultLogLines, 10000)
	lines, err := r.mgr.Logs(name, n)
	switch {
	case errors.Is(err, mng.ErrNoLog):
		lines = []string{mng.NoLogLine(name)}
	case err != nil:
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, logsResp{Agent: name, Lines: lines})
}

func (r *Router) handleHistory(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: "invalid agent name: " + name})
		return
	}
	limit := queryInt(c, "limit", history.DefaultLimit, 1000)
	evs, err := r.mgr.History(c.Request.Context(), name, limit)
	switch {
	case errors.Is(err, history.ErrDisabled):
		writeJSON(c, http.StatusServiceUnavailable, actionResp{Message: err.Error()})
		return
	case err != nil:
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, historyResp{Agent: name, Events: evs})
}

func (r *Router) handleAlerts(c *gin.Context) {
	writeJSON(c, http.StatusOK, alertsResp{Alerts: r.mgr.Alerts()})
}

func (r *Router) handleSystemInfo(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.SystemInfo())
}

func (r *Router) handleReload(c *gin.Context) {
	if err := r.mgr.Reload(); err != nil {
		writeJSON(c, http.StatusInternalServerError, actionResp{Message: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, actionResp{Success: true, Message: fmt.Sprintf("Reloaded %d agent(s)", len(r.mgr.Config().Agents))})
}

func (r *Router) recovered(c *gin.Context, rec any) {
	r.log.Error("panic in handler", "path", c.Request.URL.Path, "panic", rec)
	writeJSON(c, http.StatusInternalServerError, actionResp{Message: "internal error"})
	c.Abort()
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// queryInt parses a positive integer query parameter, falling back to def
// when absent or invalid and capping at limit.
func queryInt(c *gin.Context, key string, def, limit int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > limit {
		return limit
	}
	return v
}
