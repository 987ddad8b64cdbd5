package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/thraizz/skirmish-server-go/internal/game"
	"go.uber.org/zap"
)

// Store implements game.Store on Postgres.
type Store struct {
	db     DBTX
	logger *zap.Logger
}

var _ game.Store = (*Store)(nil)

// NewStore creates a store over db.
func NewStore(db DBTX, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// ActiveGame summarizes a stored live match.
type ActiveGame struct {
	GameID    string
	Turn      int
	UpdatedAt time.Time
}

const upsertGameSQL = `
INSERT INTO active_games (game_id, serialized_state, current_turn, checksum, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (game_id) DO UPDATE
SET serialized_state = EXCLUDED.serialized_state,
    current_turn     = EXCLUDED.current_turn,
    checksum         = EXCLUDED.checksum,
    updated_at       = now()`

// SaveGame inserts or replaces the stored state of a live match.
func (s *Store) SaveGame(ctx context.Context, rec game.SaveRecord) error {
	if _, err := s.db.Exec(ctx, upsertGameSQL, rec.GameID, string(rec.State), rec.Turn, rec.Checksum); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	return nil
}

const loadGameSQL = `
SELECT game_id, serialized_state, current_turn, checksum
FROM active_games
WHERE game_id = $1`

// LoadGame returns the stored state of a live match.
func (s *Store) LoadGame(ctx context.Context, gameID string) (*game.SaveRecord, error) {
	var (
		rec   game.SaveRecord
		state string
	)
	err := s.db.QueryRow(ctx, loadGameSQL, gameID).Scan(&rec.GameID, &state, &rec.Turn, &rec.Checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	rec.State = []byte(state)
	return &rec, nil
}

// DeleteGame removes a live match. Deleting a missing match is not an error.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM active_games WHERE game_id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	s.logger.Debug("deleted active game", zap.String("game_id", gameID), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

const listActiveSQL = `
SELECT game_id, current_turn, updated_at
FROM active_games
ORDER BY updated_at DESC
LIMIT $1`

// ListActive returns the most recently updated live matches.
func (s *Store) ListActive(ctx context.Context, limit int) ([]ActiveGame, error) {
	rows, err := s.db.Query(ctx, listActiveSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var out []ActiveGame
	for rows.Next() {
		var g ActiveGame
		if err := rows.Scan(&g.GameID, &g.Turn, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return out, nil
}
