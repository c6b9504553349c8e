package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/minermon/internal/metrics"
	"github.com/loykin/minermon/internal/monitor"
)

// Supervisor is the part of the monitor exposed over HTTP. *monitor.Monitor satisfies it.
type Supervisor interface {
	Status() monitor.Status
	Kill(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Router provides HTTP handlers for inspecting and controlling the watchdog.
// Endpoints:
//
//	GET  {basePath}/status          last cycle snapshot
//	GET  {basePath}/metrics         Prometheus metrics
//	POST {basePath}/miner/kill      same as the K console command
//	POST {basePath}/miner/restart   same as the R console command
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      Supervisor
	basePath string
	lifetime context.Context
}

// NewRouter builds a router whose manual commands are canceled when lifetime is done.
// A nil lifetime never cancels.
func NewRouter(lifetime context.Context, sup Supervisor, basePath string) *Router {
	if lifetime == nil {
		lifetime = context.Background()
	}
	return &Router{sup: sup, basePath: sanitizeBase(basePath), lifetime: lifetime}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	group.POST("/miner/kill", r.handleKill)
	group.POST("/miner/restart", r.handleRestart)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Stop it with Shutdown after canceling lifetime.
func NewServer(lifetime context.Context, addr, basePath string, sup Supervisor) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(lifetime, sup, basePath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a restart can take start_grace + stop_grace + stop_timeout
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "addr", addr, "error", err)
		}
	}()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status())
}

func (r *Router) handleKill(c *gin.Context) {
	r.runCommand(c, "kill", r.sup.Kill)
}

func (r *Router) handleRestart(c *gin.Context) {
	r.runCommand(c, "restart", r.sup.Restart)
}

func (r *Router) runCommand(c *gin.Context, name string, fn func(context.Context) error) {
	slog.Info("Manual command received over HTTP", "command", name, "remote", c.ClientIP())
	// Client hang-up does not interrupt the command; server shutdown does.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	stop := context.AfterFunc(r.lifetime, cancel)
	defer stop()
	if err := fn(ctx); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
