// Package api implements the read API: a gin router serving the
// versioned /api/v1 endpoints. Its handler shape (a *Server receiver,
// gin.H JSON bodies, explicit status codes per branch) is grounded on
// poorman-SynapseStrike's api/tactics.go.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/gameslice"
	"github.com/classroomsim/market-engine/internal/historicalstore"
	"github.com/classroomsim/market-engine/internal/room"
)

// Server holds every dependency the handlers need.
type Server struct {
	store          historicalstore.Gateway
	slices         *gameslice.Builder
	registry       *room.Registry
	log            zerolog.Logger
	defaultTickers []string
}

// New builds a Server and its gin.Engine.
func New(store historicalstore.Gateway, slices *gameslice.Builder, registry *room.Registry, log zerolog.Logger, defaultTickers []string) *gin.Engine {
	s := &Server{store: store, slices: slices, registry: registry, log: log, defaultTickers: defaultTickers}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/game/data", s.handleGameData)

	mp := v1.Group("/multiplayer")
	mp.POST("/rooms", s.handleCreateRoom)
	mp.POST("/rooms/join", s.handleJoinRoom)
	mp.GET("/rooms/:code", s.handleGetRoom)
	mp.GET("/rooms/:code/state", s.handleRoomState)
	mp.GET("/rooms/:code/leaderboard", s.handleLeaderboard)
	mp.POST("/rooms/:code/start", s.handleStartRoom)
	mp.POST("/rooms/:code/advance-day", s.handleAdvanceDay)
	mp.POST("/rooms/:code/set-timer", s.handleSetTimer)
	mp.POST("/rooms/:code/end-game", s.handleEndGame)
	mp.PUT("/players/:id", s.handleUpdatePlayer)
	mp.POST("/players/:id/ready", s.handleMarkReady)
	mp.POST("/players/:id/trades", s.handleSubmitTrade)
	mp.POST("/players/:id/advance", s.handleAdvancePlayer)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// respondErr maps a closed apperr.Kind to its HTTP status code — the
// single boundary translation point.
func respondErr(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.Validation:
		status = http.StatusUnprocessableEntity
	case apperr.RuleViolation:
		status = http.StatusBadRequest
	case apperr.InsufficientData, apperr.OutOfRange:
		status = http.StatusBadRequest
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.Unavailable:
		status = http.StatusServiceUnavailable
	case apperr.Timeout:
		status = http.StatusGatewayTimeout
	}

	body := gin.H{"error": gin.H{"kind": kind, "message": err.Error()}}
	if ae, ok := err.(*apperr.Error); ok && ae.Code != "" {
		body["error"].(gin.H)["code"] = ae.Code
	}
	c.JSON(status, body)
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
