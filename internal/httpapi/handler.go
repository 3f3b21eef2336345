// Package httpapi exposes a speaker's websocket operations over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/EgorLis/sonosws/internal/sonosws"
)

// Speaker is the part of *sonosws.Client the bridge needs.
type Speaker interface {
	PlayClip(ctx context.Context, uri string, volume int) (sonosws.Response, error)
	GetGroups(ctx context.Context) (sonosws.Response, error)
	GetPlayerID(ctx context.Context) (string, error)
	IsConnected() bool
	CachedIDs() (householdID, playerID string)
}

type Handler struct {
	Speaker Speaker
	Log     zerolog.Logger
	// Timeout bounds each request's device work.
	Timeout time.Duration
}

func NewHandler(s Speaker, log zerolog.Logger) *Handler {
	return &Handler{Speaker: s, Log: log, Timeout: 15 * time.Second}
}

type clipRequest struct {
	URI    string `json:"uri" binding:"required"`
	Volume int    `json:"volume" binding:"min=0,max=100"`
}

// Engine builds the gin router.
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests())

	r.GET("/status", h.status)
	r.GET("/groups", h.groups)
	r.GET("/player", h.player)
	r.POST("/clip", h.clip)
	return r
}

func (h *Handler) status(c *gin.Context) {
	household, player := h.Speaker.CachedIDs()
	c.JSON(http.StatusOK, gin.H{
		"connected":    h.Speaker.IsConnected(),
		"household_id": household,
		"player_id":    player,
	})
}

func (h *Handler) groups(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()
	resp, err := h.Speaker.GetGroups(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) player(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()
	id, err := h.Speaker.GetPlayerID(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player_id": id})
}

func (h *Handler) clip(c *gin.Context) {
	var req clipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	resp, err := h.Speaker.PlayClip(ctx, req.URI, req.Volume)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.Timeout)
}

// fail maps client errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		unauthorized *sonosws.UnauthorizedError
		connErr      *sonosws.ConnectionError
		unsupported  *sonosws.UnsupportedError
		dispatchErr  *sonosws.DispatchError
	)
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &unauthorized):
		status, kind = http.StatusBadGateway, "unauthorized"
	case errors.As(err, &connErr):
		status, kind = http.StatusServiceUnavailable, "connection"
	case errors.As(err, &unsupported):
		status, kind = http.StatusNotImplemented, "unsupported"
	case errors.As(err, &dispatchErr):
		status, kind = http.StatusBadGateway, "dispatch"
	}
	h.Log.Warn().Err(err).Str("kind", kind).Str("path", c.FullPath()).Msg("request failed")
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}
