// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/models"
)

// RecordRoundResult persists one finished round: the winners and every
// player's score at the moment the threshold check fired.
func RecordRoundResult(ctx context.Context, gameID uuid.UUID, round int, winners []int, scores map[int]int) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, status)
			VALUES ($1, 'in_progress')
			ON CONFLICT (id) DO NOTHING
		`
		if _, e := tx.Exec(ctx, upsertGame, gameID); e != nil {
			return e
		}

		for playerID, score := range scores {
			didWin := false
			for _, w := range winners {
				if w == playerID {
					didWin = true
					break
				}
			}
			q := `
				INSERT INTO round_results (game_id, round, player_id, score, did_win)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (game_id, round, player_id)
				DO UPDATE SET score=$4, did_win=$5
			`
			if _, e := tx.Exec(ctx, q, gameID, round, playerID, score, didWin); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert round results: %w", err)
	}
	return nil
}

// RecordGameEnd marks a game completed with its winner.
func RecordGameEnd(ctx context.Context, gameID uuid.UUID, winnerID int) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO games (id, status, winner_seat)
			VALUES ($1, 'completed', $2)
			ON CONFLICT (id) DO UPDATE SET status='completed', winner_seat=$2
		`
		_, e := tx.Exec(ctx, q, gameID, winnerID)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx record game end: %w", err)
	}
	return nil
}

// UpsertGameSnapshot stores the latest full state as JSON on the game row.
// Called asynchronously after each broadcast; failures are logged, never
// surfaced into game flow.
func UpsertGameSnapshot(ctx context.Context, gameID uuid.UUID, state *models.GameState) error {
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal game snapshot: %w", err)
	}
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO games (id, status, last_snapshot)
			VALUES ($1, 'in_progress', $2)
			ON CONFLICT (id) DO UPDATE SET last_snapshot=$2
		`
		_, e := tx.Exec(ctx, q, gameID, jsonData)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx upsert snapshot: %w", err)
	}
	return nil
}

// GameRecorder adapts this package to the game engine's persistence hook.
// Nil DB (persistence disabled) makes every method a no-op.
type GameRecorder struct{}

func (GameRecorder) SaveSnapshot(gameID uuid.UUID, state *models.GameState) {
	if DB == nil {
		return
	}
	if err := UpsertGameSnapshot(context.Background(), gameID, state); err != nil {
		logrus.WithError(err).WithField("game", gameID).Warn("snapshot persist failed")
	}
}

func (GameRecorder) RecordRound(gameID uuid.UUID, round int, winners []int, scores map[int]int) {
	if DB == nil {
		return
	}
	if err := RecordRoundResult(context.Background(), gameID, round, winners, scores); err != nil {
		logrus.WithError(err).WithField("game", gameID).Warn("round result persist failed")
	}
}

func (GameRecorder) RecordGameEnd(gameID uuid.UUID, winnerID int) {
	if DB == nil {
		return
	}
	if err := RecordGameEnd(context.Background(), gameID, winnerID); err != nil {
		logrus.WithError(err).WithField("game", gameID).Warn("game end persist failed")
	}
}
