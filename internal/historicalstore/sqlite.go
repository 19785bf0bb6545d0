package historicalstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteGateway reads the market_data/news/features/agents schemas out of
// a sqlite database. The core never writes through this type; ingestion
// is an external collaborator's job.
type SQLiteGateway struct {
	db       *sql.DB
	earliest time.Time
}

// OpenSQLiteGateway opens dsn and creates the historical tables if they do
// not exist yet. Every cmd/server subcommand (serve, migrate,
// seed-market-data) opens the gateway this way, so any of them leaves the
// tables in place.
func OpenSQLiteGateway(dsn string, earliest time.Time) (*SQLiteGateway, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "open historical store", err)
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "ping historical store", err)
	}
	g := &SQLiteGateway{db: db, earliest: earliest}
	if err := g.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

func (g *SQLiteGateway) Close() error { return g.db.Close() }

func (g *SQLiteGateway) ensureSchema() error {
	_, err := g.db.Exec(`
		CREATE TABLE IF NOT EXISTS market_prices (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);
		CREATE INDEX IF NOT EXISTS idx_market_prices_ticker_date ON market_prices(ticker, date);

		CREATE TABLE IF NOT EXISTS technical_snapshots (
			ticker        TEXT NOT NULL,
			date          TEXT NOT NULL,
			momentum      REAL NOT NULL,
			trend         REAL NOT NULL,
			range_value   REAL NOT NULL,
			reversion     REAL NOT NULL,
			volume_signal REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);

		CREATE TABLE IF NOT EXISTS news_items (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker       TEXT NOT NULL,
			published_at TEXT NOT NULL,
			headline     TEXT NOT NULL,
			body         TEXT,
			source       TEXT NOT NULL,
			sentiment    REAL
		);
		CREATE INDEX IF NOT EXISTS idx_news_ticker_published ON news_items(ticker, published_at);

		CREATE TABLE IF NOT EXISTS recommendations (
			ticker            TEXT NOT NULL,
			date              TEXT NOT NULL,
			recommendation    TEXT NOT NULL,
			confidence        REAL NOT NULL,
			technical_signal  TEXT NOT NULL,
			sentiment_signal  TEXT NOT NULL,
			risk_level        TEXT NOT NULL,
			rationale_summary TEXT NOT NULL,
			PRIMARY KEY (ticker, date)
		);
	`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "ensure historical store schema", err)
	}
	return nil
}

func (g *SQLiteGateway) EarliestAllowedDate() time.Time { return g.earliest }

func (g *SQLiteGateway) Prices(ctx context.Context, ticker string, from, to time.Time) ([]model.MarketDay, error) {
	if from.Before(g.earliest) {
		return nil, outOfRangeErr(from, g.earliest)
	}
	rows, err := g.db.QueryContext(ctx, `
		SELECT ticker, date, open, high, low, close, volume FROM market_prices
		WHERE ticker = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		ticker, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "query prices", err)
	}
	defer rows.Close()

	var out []model.MarketDay
	for rows.Next() {
		var m model.MarketDay
		var dateStr string
		if err := rows.Scan(&m.Ticker, &dateStr, &m.Open, &m.High, &m.Low, &m.Close, &m.Volume); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan price row", err)
		}
		m.Date, _ = time.Parse("2006-01-02", dateStr)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (g *SQLiteGateway) HasPriceOn(ctx context.Context, ticker string, date time.Time) (bool, error) {
	var count int
	err := g.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM market_prices WHERE ticker = ? AND date = ?`,
		ticker, date.Format("2006-01-02")).Scan(&count)
	if err != nil {
		return false, apperr.Wrap(apperr.Unavailable, "check price presence", err)
	}
	return count > 0, nil
}

func (g *SQLiteGateway) Indicators(ctx context.Context, ticker string, date time.Time) (*model.TechnicalSnapshot, error) {
	var t model.TechnicalSnapshot
	t.Ticker = ticker
	t.Date = date
	err := g.db.QueryRowContext(ctx, `
		SELECT momentum, trend, range_value, reversion, volume_signal FROM technical_snapshots
		WHERE ticker = ? AND date = ?`, ticker, date.Format("2006-01-02")).
		Scan(&t.Momentum, &t.Trend, &t.RangeValue, &t.Reversion, &t.VolumeSignal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "query indicators", err)
	}
	return &t, nil
}

func (g *SQLiteGateway) News(ctx context.Context, ticker string, date time.Time, minCount int) ([]model.NewsItem, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT published_at, headline, body, source, sentiment FROM news_items
		WHERE ticker = ? AND published_at <= ? ORDER BY published_at DESC LIMIT ?`,
		ticker, date.Format(time.RFC3339), minCount)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "query news", err)
	}
	defer rows.Close()

	var out []model.NewsItem
	for rows.Next() {
		var n model.NewsItem
		var publishedAt string
		var body sql.NullString
		var sentiment sql.NullFloat64
		if err := rows.Scan(&publishedAt, &n.Headline, &body, &n.Source, &sentiment); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan news row", err)
		}
		n.Ticker = ticker
		n.PublishedAt, _ = time.Parse(time.RFC3339, publishedAt)
		if body.Valid {
			b := body.String
			n.Body = &b
		}
		if sentiment.Valid {
			s := sentiment.Float64
			n.Sentiment = &s
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (g *SQLiteGateway) Recommendation(ctx context.Context, ticker string, date time.Time) (*model.RecommendationRecord, error) {
	var r model.RecommendationRecord
	r.Ticker = ticker
	r.Date = date
	var rec, tech, sent, risk string
	err := g.db.QueryRowContext(ctx, `
		SELECT recommendation, confidence, technical_signal, sentiment_signal, risk_level, rationale_summary
		FROM recommendations WHERE ticker = ? AND date = ?`, ticker, date.Format("2006-01-02")).
		Scan(&rec, &r.Confidence, &tech, &sent, &risk, &r.RationaleSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "query recommendation", err)
	}
	r.Recommendation = model.Recommendation(rec)
	r.TechnicalSignal = model.SignalLabel(tech)
	r.SentimentSignal = model.SignalLabel(sent)
	r.RiskLevel = model.SignalLabel(risk)
	return &r, nil
}

// InsertMarketDay is used only by the seed tool — the core never calls it.
func (g *SQLiteGateway) InsertMarketDay(ctx context.Context, m model.MarketDay) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO market_prices (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET open=excluded.open, high=excluded.high,
			low=excluded.low, close=excluded.close, volume=excluded.volume`,
		m.Ticker, m.Date.Format("2006-01-02"), m.Open, m.High, m.Low, m.Close, m.Volume)
	return err
}

// InsertRecommendation is used only by the seed tool.
func (g *SQLiteGateway) InsertRecommendation(ctx context.Context, r model.RecommendationRecord) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO recommendations (ticker, date, recommendation, confidence, technical_signal, sentiment_signal, risk_level, rationale_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET recommendation=excluded.recommendation, confidence=excluded.confidence`,
		r.Ticker, r.Date.Format("2006-01-02"), string(r.Recommendation), r.Confidence,
		string(r.TechnicalSignal), string(r.SentimentSignal), string(r.RiskLevel), r.RationaleSummary)
	return err
}

// InsertTechnicalSnapshot is used only by the seed tool.
func (g *SQLiteGateway) InsertTechnicalSnapshot(ctx context.Context, t model.TechnicalSnapshot) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO technical_snapshots (ticker, date, momentum, trend, range_value, reversion, volume_signal)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET momentum=excluded.momentum, trend=excluded.trend,
			range_value=excluded.range_value, reversion=excluded.reversion, volume_signal=excluded.volume_signal`,
		t.Ticker, t.Date.Format("2006-01-02"), t.Momentum, t.Trend, t.RangeValue, t.Reversion, t.VolumeSignal)
	return err
}

// InsertNewsItem is used only by the seed tool.
func (g *SQLiteGateway) InsertNewsItem(ctx context.Context, n model.NewsItem) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO news_items (ticker, published_at, headline, body, source, sentiment)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.Ticker, n.PublishedAt.Format(time.RFC3339), n.Headline, n.Body, n.Source, n.Sentiment)
	return err
}
