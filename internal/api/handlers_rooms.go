package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/metrics"
	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/room"
)

type createRoomRequest struct {
	CreatedBy          string           `json:"created_by" binding:"required"`
	RoomName           string           `json:"room_name"`
	GameMode           model.RoomMode   `json:"game_mode" binding:"required"`
	Config             gameConfigDTO    `json:"config" binding:"required"`
	StartDate          string           `json:"start_date"`
	EndDate            string           `json:"end_date"`
	DayDurationSeconds *int             `json:"day_duration_seconds"`
}

type gameConfigDTO struct {
	InitialCash float64         `json:"initial_cash"`
	NumDays     int             `json:"num_days"`
	Tickers     []string        `json:"tickers"`
	Difficulty  model.Difficulty `json:"difficulty"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}

	var start, end time.Time
	if v, ok := parseDate(req.StartDate); ok {
		start = v
	}
	if v, ok := parseDate(req.EndDate); ok {
		end = v
	}

	in := room.CreateRoomInput{
		CreatedBy: req.CreatedBy,
		RoomName:  req.RoomName,
		Mode:      req.GameMode,
		Config: model.GameConfig{
			InitialCash: req.Config.InitialCash,
			NumDays:     req.Config.NumDays,
			Tickers:     req.Config.Tickers,
			Difficulty:  req.Config.Difficulty,
		},
		StartDate:          start,
		EndDate:            end,
		DayDurationSeconds: req.DayDurationSeconds,
	}

	r, err := s.registry.CreateRoom(c.Request.Context(), in)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, roomDTO(r.View(), nil))
}

type joinRoomRequest struct {
	RoomCode    string  `json:"room_code" binding:"required"`
	PlayerName  string  `json:"player_name" binding:"required"`
	PlayerEmail *string `json:"player_email"`
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}

	r, err := s.registry.GetRoom(c.Request.Context(), req.RoomCode)
	if err != nil {
		respondErr(c, err)
		return
	}
	p, err := r.Join(c.Request.Context(), req.PlayerName, req.PlayerEmail)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, playerDTO(p))
}

func (s *Server) handleGetRoom(c *gin.Context) {
	r, err := s.registry.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, roomDTO(r.View(), r.Players()))
}

func (s *Server) handleRoomState(c *gin.Context) {
	r, err := s.registry.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}
	view := r.View()
	players := r.Players()

	readyCount := 0
	for _, p := range players {
		if p.IsReady {
			readyCount++
		}
	}

	resp := gin.H{
		"status":            view.Status,
		"mode":              view.Mode,
		"current_day":       view.CurrentDay,
		"day_started_at":    view.DayStartedAt,
		"day_time_limit":    view.DayTimeLimit,
		"time_remaining":    r.TimeRemaining(time.Now().UTC()),
		"waiting_for_teacher": view.Status == model.StatusInProgress && view.Mode == model.ModeSync,
		"ready_count":       readyCount,
		"total_players":     len(players),
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	start := time.Now()
	defer func() { metrics.LeaderboardReadSeconds.Observe(time.Since(start).Seconds()) }()

	r, err := s.registry.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": r.Leaderboard()})
}

func (s *Server) handleStartRoom(c *gin.Context) {
	var req struct {
		StartedBy string `json:"started_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}
	r, err := s.registry.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := r.Start(c.Request.Context(), req.StartedBy); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, roomDTO(r.View(), r.Players()))
}

func (s *Server) handleAdvanceDay(c *gin.Context) {
	var req struct {
		InitiatedBy    string `json:"initiated_by" binding:"required"`
		DayTimeLimit   *int   `json:"day_time_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}
	r, err := s.registry.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if req.InitiatedBy != r.View().CreatedBy {
		respondErr(c, apperr.New(apperr.Forbidden, "only the room's creator may advance the day"))
		return
	}
	if err := r.AdvanceDay(c.Request.Context(), req.DayTimeLimit); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, roomDTO(r.View(), r.Players()))
}

func (s *Server) handleSetTimer(c *gin.Context) {
	var req struct {
		DurationSeconds int `json:"duration_seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}
	r, err := s.registry.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := r.SetTimer(c.Request.Context(), req.DurationSeconds); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, roomDTO(r.View(), r.Players()))
}

func (s *Server) handleEndGame(c *gin.Context) {
	var req struct {
		EndedBy string `json:"ended_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.New(apperr.Validation, err.Error()))
		return
	}
	r, err := s.registry.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := r.EndGame(c.Request.Context(), req.EndedBy); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, roomDTO(r.View(), r.Players()))
}

func roomDTO(r model.Room, players []model.Player) gin.H {
	out := gin.H{
		"room_code":          r.RoomCode,
		"created_by":         r.CreatedBy,
		"room_name":          r.RoomName,
		"mode":               r.Mode,
		"status":             r.Status,
		"config":             r.Config,
		"start_date":         r.StartDate.Format("2006-01-02"),
		"end_date":           r.EndDate.Format("2006-01-02"),
		"current_day":        r.CurrentDay,
		"day_started_at":     r.DayStartedAt,
		"day_time_limit":     r.DayTimeLimit,
		"game_started_at":    r.GameStartedAt,
		"game_ended_at":      r.GameEndedAt,
		"ai_current_day":     r.AICurrentDay,
		"ai_portfolio_value": r.AIPortfolioVal,
		"ai_total_return_pct": r.AIReturnPct,
	}
	if players != nil {
		dtos := make([]gin.H, len(players))
		for i, p := range players {
			dtos[i] = playerDTO(p)
		}
		out["players"] = dtos
	}
	return out
}
