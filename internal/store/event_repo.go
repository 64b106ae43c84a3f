package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
)

// EventRepo handles persistence for the miner event feed.
type EventRepo struct{}

// Append inserts one event. The sequence number is assigned by the store.
func (r *EventRepo) Append(ctx context.Context, db *sql.DB, rec domain.EventRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	const q = `INSERT INTO miner_events (event_type, challenge_id, address, fee, message, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.Type,
		rec.ChallengeID,
		rec.Address,
		boolToInt(rec.Fee),
		rec.Message,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListSince returns events with sequence numbers greater than sinceSeq,
// ordered by sequence number ascending.
func (r *EventRepo) ListSince(ctx context.Context, db *sql.DB, sinceSeq int64) ([]domain.EventRecord, error) {
	const q = `SELECT seq_no, event_type, challenge_id, address, fee, message, created_at
FROM miner_events
WHERE seq_no > ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.EventRecord
	for rows.Next() {
		var e domain.EventRecord
		var fee int
		if err := rows.Scan(&e.SeqNo, &e.Type, &e.ChallengeID, &e.Address, &fee, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Fee = fee != 0
		events = append(events, e)
	}
	return events, rows.Err()
}
