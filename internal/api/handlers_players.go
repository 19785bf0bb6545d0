package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/room"
	"github.com/classroomsim/market-engine/internal/tradeengine"
)

func playerDTO(p model.Player) gin.H {
	return gin.H{
		"player_id":        p.PlayerID,
		"room_code":        p.RoomCode,
		"name":             p.Name,
		"email":            p.Email,
		"current_day":      p.CurrentDay,
		"cash":             p.Cash,
		"holdings":         p.Holdings,
		"trades":           p.Trades,
		"portfolio_history": p.PortfolioHist,
		"score":            p.Score,
		"grade":            p.Grade,
		"score_breakdown":  p.ScoreBreakdown,
		"is_ready":         p.IsReady,
		"is_finished":      p.IsFinished,
		"joined_at":        p.JoinedAt,
		"last_action_at":   p.LastActionAt,
	}
}

// findRoomByPlayer resolves the room a player belongs to by scanning live
// rooms — the registry is keyed by room_code, not player_id, and a
// classroom-scale deployment has few enough concurrent rooms that this
// linear scan is not a concern.
func (s *Server) findRoomByPlayer(c *gin.Context, playerID string) (*room.Room, model.Player, error) {
	for _, r := range s.registry.Rooms() {
		if p, ok := r.Player(playerID); ok {
			return r, p, nil
		}
	}
	return nil, model.Player{}, apperr.New(apperr.NotFound, "player not found")
}

func (s *Server) handleUpdatePlayer(c *gin.Context) {
	playerID := c.Param("id")
	r, _, err := s.findRoomByPlayer(c, playerID)
	if err != nil {
		respondErr(c, err)
		return
	}

	var patch model.Player
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}

	updated, err := r.UpdatePlayer(c.Request.Context(), playerID, patch)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, playerDTO(updated))
}

func (s *Server) handleMarkReady(c *gin.Context) {
	playerID := c.Param("id")
	r, _, err := s.findRoomByPlayer(c, playerID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := r.MarkReady(c.Request.Context(), playerID); err != nil {
		respondErr(c, err)
		return
	}
	p, _ := r.Player(playerID)
	c.JSON(http.StatusOK, playerDTO(p))
}

type submitTradeRequest struct {
	Ticker string             `json:"ticker" binding:"required"`
	Action model.TradeAction  `json:"action" binding:"required"`
	Shares float64            `json:"shares" binding:"required"`
}

func (s *Server) handleSubmitTrade(c *gin.Context) {
	playerID := c.Param("id")
	r, _, err := s.findRoomByPlayer(c, playerID)
	if err != nil {
		respondErr(c, err)
		return
	}

	var req submitTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}

	result, err := r.SubmitTrade(c.Request.Context(), playerID, tradeengine.PendingTrade{
		Ticker: req.Ticker, Action: req.Action, Shares: req.Shares,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	if !result.OK {
		kind := apperr.RuleViolation
		if result.Reason == tradeengine.ReasonDuplicateSameDay {
			kind = apperr.Conflict
		}
		respondErr(c, apperr.WithCode(kind, string(result.Reason), "trade rejected"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAdvancePlayer(c *gin.Context) {
	playerID := c.Param("id")
	r, _, err := s.findRoomByPlayer(c, playerID)
	if err != nil {
		respondErr(c, err)
		return
	}
	p, err := r.AdvancePlayer(c.Request.Context(), playerID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, playerDTO(p))
}
