package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/core"
	"github.com/flowpilot-ai/flowpilot/session"
	"github.com/flowpilot-ai/flowpilot/session/session_models"
)

// historyWindow bounds how many prior turns are replayed into prompts.
const historyWindow = 12

// Assistant answers one message given prior turns.
type Assistant interface {
	Answer(ctx context.Context, message string, history []core.HistoryTurn) core.Answer
}

// Handlers carries the chat and session endpoints.
type Handlers struct {
	cfg      *config.Config
	router   Assistant
	sessions session.Store
	logger   *log.Logger
}

// Register mounts the API routes on a group.
func (h *Handlers) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
	g.GET("/sessions", h.listSessions)
	g.GET("/sessions/:id", h.getSession)
	g.DELETE("/sessions/:id", h.deleteSession)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID  string  `json:"session_id"`
	Answer     string  `json:"answer"`
	State      string  `json:"state"`
	QueryType  string  `json:"query_type"`
	Iterations int     `json:"iterations"`
	TokensUsed int64   `json:"tokens_used"`
	Cost       float64 `json:"cost"`
	DurationMS int64   `json:"duration_ms"`
}

func (h *Handlers) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := c.Request().Context()
	if h.cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Server.RequestTimeout)
		defer cancel()
	}

	var history []core.HistoryTurn
	turns, err := h.sessions.History(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, "session backend unavailable")
	}
	for _, turn := range session.Clip(turns, historyWindow) {
		history = append(history, core.HistoryTurn{Role: turn.Role, Content: turn.Content})
	}

	start := time.Now()
	answer := h.router.Answer(ctx, message, history)

	if err := h.sessions.Append(ctx, sessionID,
		session.NewTurn("user", message, ""),
		session.NewTurn("assistant", answer.Text, string(answer.State)),
	); err != nil {
		// The answer is already computed; losing history is not worth a 500.
		h.logger.Printf("failed to persist session %s: %v", sessionID, err)
	}

	return c.JSON(http.StatusOK, chatResponse{
		SessionID:  sessionID,
		Answer:     answer.Text,
		State:      string(answer.State),
		QueryType:  string(answer.Plan.QueryType),
		Iterations: answer.Iterations,
		TokensUsed: answer.TokensUsed,
		Cost:       answer.Cost,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

func (h *Handlers) listSessions(c echo.Context) error {
	summaries, err := h.sessions.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session backend unavailable")
	}
	if summaries == nil {
		summaries = []session_models.Summary{}
	}
	return c.JSON(http.StatusOK, summaries)
}

func (h *Handlers) getSession(c echo.Context) error {
	turns, err := h.sessions.History(c.Request().Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session backend unavailable")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":    c.Param("id"),
		"turns": turns,
	})
}

func (h *Handlers) deleteSession(c echo.Context) error {
	err := h.sessions.Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session backend unavailable")
	}
	return c.NoContent(http.StatusNoContent)
}
