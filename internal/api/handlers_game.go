package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/model"
)

type gameDataResponse struct {
	Days      []gameDayDTO `json:"days"`
	Tickers   []string     `json:"tickers"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	TotalDays int          `json:"total_days"`
}

type gameDayDTO struct {
	Day             int                                 `json:"day"`
	Date            string                              `json:"date"`
	IsTradingDay    bool                                `json:"is_trading_day"`
	Prices          map[string]priceDTO                  `json:"prices"`
	Recommendations []recommendationDTO                  `json:"recommendations"`
	TechnicalInd    map[string]model.TechnicalSnapshot   `json:"technical_indicators"`
	News            map[string][]model.NewsItem          `json:"news"`
}

type priceDTO struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type recommendationDTO struct {
	Ticker           string               `json:"ticker"`
	Recommendation   model.Recommendation `json:"recommendation"`
	Confidence       float64              `json:"confidence"`
	TechnicalSignal  model.SignalLabel    `json:"technical_signal"`
	SentimentSignal  model.SignalLabel    `json:"sentiment_signal"`
	RiskLevel        model.SignalLabel    `json:"risk_level"`
	RationaleSummary string               `json:"rationale_summary"`
}

// handleGameData serves the read-only async game-data slice.
func (s *Server) handleGameData(c *gin.Context) {
	days := 30
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 90 {
			respondErr(c, apperr.New(apperr.Validation, "days must be an integer in [1,90]"))
			return
		}
		days = n
	}

	tickers := s.defaultTickers
	if v := c.Query("tickers"); v != "" {
		tickers = nil
		for _, t := range strings.Split(v, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t != "" {
				tickers = append(tickers, t)
			}
		}
	}

	cfg := model.GameConfig{InitialCash: 1, NumDays: days, Tickers: tickers, Difficulty: model.Medium}

	var start, end time.Time
	if v, ok := parseDate(c.Query("start_date")); ok {
		start = v
	}
	if v, ok := parseDate(c.Query("end_date")); ok {
		end = v
	}

	slice, err := s.slices.Build(c.Request.Context(), cfg, start, end)
	if err != nil {
		respondErr(c, err)
		return
	}

	resp := gameDataResponse{
		Tickers:   slice.Tickers,
		StartDate: slice.StartDate.Format("2006-01-02"),
		EndDate:   slice.EndDate.Format("2006-01-02"),
		TotalDays: len(slice.Days),
	}
	for _, gd := range slice.Days {
		dto := gameDayDTO{
			Day:          gd.Day,
			Date:         gd.Date.Format("2006-01-02"),
			IsTradingDay: gd.IsTradingDay,
			Prices:       map[string]priceDTO{},
			TechnicalInd: gd.Technicals,
			News:         gd.News,
		}
		for ticker, md := range gd.Prices {
			dto.Prices[ticker] = priceDTO{Open: md.Open, High: md.High, Low: md.Low, Close: md.Close}
		}
		for ticker, rec := range gd.Recommendations {
			dto.Recommendations = append(dto.Recommendations, recommendationDTO{
				Ticker: ticker, Recommendation: rec.Recommendation, Confidence: rec.Confidence,
				TechnicalSignal: rec.TechnicalSignal, SentimentSignal: rec.SentimentSignal,
				RiskLevel: rec.RiskLevel, RationaleSummary: rec.RationaleSummary,
			})
		}
		resp.Days = append(resp.Days, dto)
	}

	c.JSON(http.StatusOK, resp)
}
