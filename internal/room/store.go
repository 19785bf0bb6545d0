// Package room implements the room state machine and player registry:
// per-room lifecycle transitions, player join/resume, and the
// multiplayer.game_rooms / multiplayer.players persistence schema.
// Room/Player are persisted as JSON snapshots the same way trader.go
// persists BotState — saveState builds a snapshot under lock and writes
// it out — rather than fully normalized SQL columns, since the nested
// holdings/trades/portfolio_history shape does not benefit from
// relational decomposition for a classroom-scale store.
package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/model"
)

// Store is the sqlite-backed multiplayer schema: authoritative mutator for
// game_rooms and players.
type Store struct {
	db *sql.DB
}

// OpenStore opens dsn and ensures the multiplayer tables exist.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "open room store", err)
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "ping room store", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS game_rooms (
			room_code  TEXT PRIMARY KEY,
			created_by TEXT NOT NULL,
			status     TEXT NOT NULL,
			mode       TEXT NOT NULL,
			state      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS players (
			player_id  TEXT PRIMARY KEY,
			room_code  TEXT NOT NULL,
			name_lower TEXT NOT NULL,
			state      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(room_code, name_lower)
		);
		CREATE INDEX IF NOT EXISTS idx_players_room ON players(room_code);
	`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "ensure multiplayer schema", err)
	}
	return nil
}

// SaveRoom upserts the room's full JSON snapshot plus its indexed columns.
func (s *Store) SaveRoom(ctx context.Context, r model.Room) error {
	blob, err := json.Marshal(r)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal room state", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO game_rooms (room_code, created_by, status, mode, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_code) DO UPDATE SET
			status=excluded.status, mode=excluded.mode, state=excluded.state, updated_at=excluded.updated_at`,
		r.RoomCode, r.CreatedBy, string(r.Status), string(r.Mode), string(blob), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "save room", err)
	}
	return nil
}

// LoadRoom reads a room's JSON snapshot by code.
func (s *Store) LoadRoom(ctx context.Context, code string) (model.Room, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM game_rooms WHERE room_code = ?`, code).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Room{}, apperr.New(apperr.NotFound, "room not found")
	}
	if err != nil {
		return model.Room{}, apperr.Wrap(apperr.Unavailable, "load room", err)
	}
	var r model.Room
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return model.Room{}, apperr.Wrap(apperr.Internal, "unmarshal room state", err)
	}
	return r, nil
}

// SavePlayer upserts a player's full JSON snapshot.
func (s *Store) SavePlayer(ctx context.Context, p model.Player) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal player state", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO players (player_id, room_code, name_lower, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at`,
		p.PlayerID, p.RoomCode, lower(p.Name), string(blob), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "save player", err)
	}
	return nil
}

// LoadPlayer reads a player's JSON snapshot by id.
func (s *Store) LoadPlayer(ctx context.Context, playerID string) (model.Player, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM players WHERE player_id = ?`, playerID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, apperr.New(apperr.NotFound, "player not found")
	}
	if err != nil {
		return model.Player{}, apperr.Wrap(apperr.Unavailable, "load player", err)
	}
	var p model.Player
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return model.Player{}, apperr.Wrap(apperr.Internal, "unmarshal player state", err)
	}
	return p, nil
}

// FindPlayerByName resolves the case-insensitive join/resume lookup.
// Returns apperr.NotFound if no player with that name exists in the
// room yet.
func (s *Store) FindPlayerByName(ctx context.Context, roomCode, name string) (model.Player, error) {
	var playerID string
	err := s.db.QueryRowContext(ctx, `SELECT player_id FROM players WHERE room_code = ? AND name_lower = ?`,
		roomCode, lower(name)).Scan(&playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, apperr.New(apperr.NotFound, "player not found")
	}
	if err != nil {
		return model.Player{}, apperr.Wrap(apperr.Unavailable, "find player by name", err)
	}
	return s.LoadPlayer(ctx, playerID)
}

// ListPlayers returns every player in a room, unordered.
func (s *Store) ListPlayers(ctx context.Context, roomCode string) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM players WHERE room_code = ?`, roomCode)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list players", err)
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan player row", err)
		}
		var p model.Player
		if err := json.Unmarshal([]byte(blob), &p); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "unmarshal player state", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
