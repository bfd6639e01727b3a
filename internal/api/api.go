package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-companion/internal/engage"
	"github.com/celerix-dev/celerix-companion/internal/history"
	"github.com/celerix-dev/celerix-companion/internal/persona"
	"github.com/celerix-dev/celerix-companion/pkg/schema"
)

// ClientKeyHeader carries the client key when the body or query omits it.
const ClientKeyHeader = "X-Client-Key"

// Engine is the engagement policy as seen by the HTTP layer.
type Engine interface {
	Handle(ctx context.Context, msg engage.Message) (engage.Response, error)
	Status(clientKey, personaID string) (engage.Status, error)
	Personas() *persona.Catalog
}

type Handler struct {
	Engine Engine
	Log    *zap.Logger
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Chat(c *gin.Context) {
	var req schema.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, schema.ErrorResponse{Error: err.Error()})
		return
	}
	if req.ClientKey == "" {
		req.ClientKey = c.GetHeader(ClientKeyHeader)
	}

	turns := make([]history.Turn, 0, len(req.History))
	for _, t := range req.History {
		turns = append(turns, history.Turn{Role: t.Role, Content: t.Content})
	}

	resp, err := h.Engine.Handle(c.Request.Context(), engage.Message{
		ClientKey: req.ClientKey,
		PersonaID: req.Character,
		Text:      req.Message,
		History:   turns,
	})
	if err != nil {
		h.reject(c, err)
		return
	}

	c.JSON(http.StatusOK, schema.ChatResponse{
		OK:            true,
		Reply:         resp.Reply,
		Remaining:     resp.Remaining,
		LockedUntilMs: unixMilli(resp.LockedUntil),
		Silent:        resp.Silent,
		Phase:         resp.Phase,
	})
}

func (h *Handler) Status(c *gin.Context) {
	clientKey := c.Query("clientKey")
	if clientKey == "" {
		clientKey = c.GetHeader(ClientKeyHeader)
	}

	st, err := h.Engine.Status(clientKey, c.Query("character"))
	if err != nil {
		h.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.StatusResponse{
		OK:            true,
		Remaining:     st.Remaining,
		LockedUntilMs: unixMilli(st.LockedUntil),
		Phase:         st.Phase,
	})
}

func (h *Handler) GetPersonas(c *gin.Context) {
	list := h.Engine.Personas().List()
	out := make([]schema.PersonaSummary, 0, len(list))
	for _, p := range list {
		out = append(out, schema.PersonaSummary{ID: p.ID, Name: p.Name, Hour: p.Hour, Minute: p.Minute})
	}
	c.JSON(http.StatusOK, out)
}

// reject maps validation errors to 400 responses.
func (h *Handler) reject(c *gin.Context, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, engage.ErrEmptyMessage):
		msg = "Mesaj bos olamaz."
	case errors.Is(err, engage.ErrMissingClientKey), errors.Is(err, engage.ErrUnknownPersona):
	default:
		h.Log.Error("unexpected engine error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, schema.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusBadRequest, schema.ErrorResponse{Error: msg})
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
