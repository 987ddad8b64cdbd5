package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/thraizz/skirmish-server-go/internal/game"
	"go.uber.org/zap"
)

const insertMatchSQL = `
INSERT INTO match_history (game_id, winner_id, end_reason, turns, final_state, finished_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (game_id) DO NOTHING`

const insertPlayerStatsSQL = `
INSERT INTO match_player_stats
    (game_id, player_id, score, resources_gathered, units_alive, units_lost, energy)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (game_id, player_id) DO NOTHING`

// RecordMatch stores the outcome and per-player statistics of a finished
// match and drops it from the live table, in one transaction.
func (s *Store) RecordMatch(ctx context.Context, rec game.MatchRecord) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertMatchSQL,
			rec.GameID, rec.WinnerID, string(rec.Reason), rec.Turns, string(rec.FinalState),
		); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		for _, p := range rec.Players {
			if _, err := tx.Exec(ctx, insertPlayerStatsSQL,
				rec.GameID, p.PlayerID, p.Score, p.ResourcesGathered, p.UnitsAlive, p.UnitsLost, p.Energy,
			); err != nil {
				return fmt.Errorf("insert stats for player %d: %w", p.PlayerID, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM active_games WHERE game_id = $1`, rec.GameID); err != nil {
			return fmt.Errorf("delete active game: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record match: %w", err)
	}

	fields := []zap.Field{
		zap.String("game_id", rec.GameID),
		zap.String("reason", string(rec.Reason)),
		zap.Int("turns", rec.Turns),
	}
	if rec.WinnerID != nil {
		fields = append(fields, zap.Int("winner_id", *rec.WinnerID))
	}
	s.logger.Info("match recorded", fields...)
	return nil
}

// MatchSummary is a row of match_history.
type MatchSummary struct {
	GameID   string
	WinnerID *int
	Reason   game.EndReason
	Turns    int
}

const recentMatchesSQL = `
SELECT game_id, winner_id, end_reason, turns
FROM match_history
ORDER BY finished_at DESC
LIMIT $1`

// RecentMatches returns the latest finished matches.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]MatchSummary, error) {
	rows, err := s.db.Query(ctx, recentMatchesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		var (
			m      MatchSummary
			reason string
		)
		if err := rows.Scan(&m.GameID, &m.WinnerID, &reason, &m.Turns); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Reason = game.EndReason(reason)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	return out, nil
}
