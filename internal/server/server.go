// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/core"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/telemetry"
	"github.com/flowpilot-ai/flowpilot/internal/kb"
	"github.com/flowpilot-ai/flowpilot/internal/resync"
	"github.com/flowpilot-ai/flowpilot/internal/vector"
	"github.com/flowpilot-ai/flowpilot/session"
	websearch "github.com/flowpilot-ai/flowpilot/tools/web_search"
)

// Run wires every dependency and serves until interrupted. The
// knowledge base and vector index are acquired before the listener
// opens; failure there is fatal because every chat request needs them.
func Run(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[SERVER] ", log.LstdFlags)

	store, err := kb.Open(cfg.Knowledge.Path)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer store.Close()

	index, err := vector.Load(cfg.Vector.Path)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	llmProvider, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	searcher, err := websearch.NewSearcher(websearch.Provider(cfg.WebSearch.Provider), websearch.Options{
		OpenAIAPIKey:     cfg.WebSearch.OpenAIAPIKey,
		OpenAIModel:      cfg.WebSearch.OpenAIModel,
		PerplexityAPIKey: cfg.WebSearch.PerplexityAPIKey,
		PerplexityModel:  cfg.WebSearch.PerplexityModel,
		Timeout:          cfg.WebSearch.Timeout,
	})
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	sessions, err := session.NewStore(cfg.Session)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	metrics := telemetry.Get()
	tools := core.NewTools(store, index, llmProvider, searcher, cfg.Vector.TopK)
	planner := core.NewPlanner(cfg, llmProvider, metrics)
	router := core.NewRouter(cfg, llmProvider, planner, tools, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Resync.Enabled {
		checker, err := resync.NewChecker(store, index, cfg.Resync.CronSpec)
		if err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		go checker.Run(ctx)
	}

	e := newEcho(metrics)
	h := &Handlers{
		cfg:      cfg,
		router:   router,
		sessions: sessions,
		logger:   log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	h.Register(e.Group("/api"))

	go func() {
		<-ctx.Done()
		logger.Printf("shutting down")
		_ = e.Shutdown(context.Background())
	}()

	logger.Printf("listening on %s", cfg.Server.Address)
	if err := e.Start(cfg.Server.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// newEcho builds the echo instance with recovery, CORS, the unified
// JSON error handler and the operational endpoints.
func newEcho(metrics *telemetry.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	return e
}
