package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
)

// ChallengeRepo handles the challenge adoption log. One row per challenge:
// started when the orchestrator cuts over to it, completed when it is
// superseded or the round ends.
type ChallengeRepo struct{}

// MarkStarted records that a challenge became current. Re-adopting a known
// challenge updates nothing.
func (r *ChallengeRepo) MarkStarted(ctx context.Context, db *sql.DB, ch domain.Challenge) error {
	const q = `INSERT INTO challenge_log (challenge_id, difficulty, started_at)
VALUES (?, ?, ?)
ON CONFLICT(challenge_id) DO NOTHING`
	_, err := db.ExecContext(ctx, q, ch.ID, ch.Difficulty, time.Now().Unix())
	if err != nil {
		return domain.WrapMinerError(domain.ErrStoreWrite.Code, "mark challenge started", err)
	}
	return nil
}

// MarkCompleted records the moment a challenge stopped being current and
// how many items were solved for it.
func (r *ChallengeRepo) MarkCompleted(ctx context.Context, db *sql.DB, challengeID string, solvedCount int) error {
	const q = `UPDATE challenge_log SET completed_at = ?, solved_count = ? WHERE challenge_id = ?`
	_, err := db.ExecContext(ctx, q, time.Now().Unix(), solvedCount, challengeID)
	if err != nil {
		return domain.WrapMinerError(domain.ErrStoreWrite.Code, "mark challenge completed", err)
	}
	return nil
}

// List returns the challenge log ordered by adoption time, newest first.
func (r *ChallengeRepo) List(ctx context.Context, db *sql.DB) ([]domain.ChallengeLogEntry, error) {
	const q = `SELECT challenge_id, difficulty, started_at, completed_at, solved_count
FROM challenge_log ORDER BY started_at DESC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, domain.WrapMinerError(domain.ErrStoreQuery.Code, "list challenges", err)
	}
	defer rows.Close()

	var entries []domain.ChallengeLogEntry
	for rows.Next() {
		var e domain.ChallengeLogEntry
		if err := rows.Scan(&e.ChallengeID, &e.Difficulty, &e.StartedAt, &e.CompletedAt, &e.SolvedCount); err != nil {
			return nil, fmt.Errorf("scan challenge entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
