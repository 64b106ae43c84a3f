package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
)

// StatsRepo handles persistence for engine telemetry samples.
type StatsRepo struct{}

// Record inserts one telemetry sample.
func (r *StatsRepo) Record(ctx context.Context, db *sql.DB, sample domain.StatsSample) error {
	if sample.CreatedAt == 0 {
		sample.CreatedAt = time.Now().Unix()
	}
	const q = `INSERT INTO stats_history (challenge_id, total_hashes, solutions_found, hash_rate, mining_active, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		sample.ChallengeID,
		sample.TotalHashes,
		sample.SolutionsFound,
		sample.HashRate,
		boolToInt(sample.MiningActive),
		sample.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record stats sample: %w", err)
	}
	return nil
}

// ListRecent returns up to limit samples, newest first.
func (r *StatsRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.StatsSample, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, challenge_id, total_hashes, solutions_found, hash_rate, mining_active, created_at
FROM stats_history
ORDER BY id DESC
LIMIT ?`

	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list stats samples: %w", err)
	}
	defer rows.Close()

	var samples []domain.StatsSample
	for rows.Next() {
		var s domain.StatsSample
		var active int
		if err := rows.Scan(&s.ID, &s.ChallengeID, &s.TotalHashes, &s.SolutionsFound, &s.HashRate, &active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stats sample: %w", err)
		}
		s.MiningActive = active != 0
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Latest returns the most recent sample, or nil when none exists.
func (r *StatsRepo) Latest(ctx context.Context, db *sql.DB) (*domain.StatsSample, error) {
	samples, err := r.ListRecent(ctx, db, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}
