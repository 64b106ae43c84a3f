package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mineworks/scavengerd/internal/domain"
)

// ReceiptRepo handles persistence for submission receipts. The receipts
// table is append-only; a (challenge, address) pair is recorded at most once.
type ReceiptRepo struct{}

// Record appends one receipt. The caller may leave ID empty, in which case
// a fresh UUID is assigned. Re-recording an existing (challenge, address)
// pair is a no-op so duplicate acceptances stay idempotent.
func (r *ReceiptRepo) Record(ctx context.Context, db *sql.DB, rec domain.Receipt) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}

	const q = `INSERT INTO receipts (id, challenge_id, address, nonce, token, fee, outcome, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(challenge_id, address) DO NOTHING`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.ChallengeID,
		rec.Address,
		rec.Nonce,
		rec.Token,
		boolToInt(rec.Fee),
		string(rec.Outcome),
		rec.CreatedAt,
	)
	if err != nil {
		return domain.WrapMinerError(domain.ErrStoreWrite.Code, "record receipt", err)
	}
	return nil
}

// Exists reports whether a receipt is already logged for the address under
// the given challenge. This backs the tracker's external-receipt predicate.
func (r *ReceiptRepo) Exists(ctx context.Context, db *sql.DB, challengeID, address string) (bool, error) {
	const q = `SELECT 1 FROM receipts WHERE challenge_id = ? AND address = ? LIMIT 1`
	var one int
	err := db.QueryRowContext(ctx, q, challengeID, address).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapMinerError(domain.ErrStoreQuery.Code, "check receipt", err)
	}
	return true, nil
}

// ListByChallenge returns all receipts for a challenge ordered by creation time.
func (r *ReceiptRepo) ListByChallenge(ctx context.Context, db *sql.DB, challengeID string) ([]domain.Receipt, error) {
	const q = `SELECT id, challenge_id, address, nonce, token, fee, outcome, created_at
FROM receipts WHERE challenge_id = ? ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, q, challengeID)
	if err != nil {
		return nil, domain.WrapMinerError(domain.ErrStoreQuery.Code, "list receipts", err)
	}
	defer rows.Close()

	var receipts []domain.Receipt
	for rows.Next() {
		var rec domain.Receipt
		var fee int
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.ChallengeID, &rec.Address, &rec.Nonce, &rec.Token, &fee, &outcome, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		rec.Fee = fee != 0
		rec.Outcome = domain.SubmitOutcome(outcome)
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}

// CountByChallenge returns how many receipts exist for a challenge.
func (r *ReceiptRepo) CountByChallenge(ctx context.Context, db *sql.DB, challengeID string) (int, error) {
	const q = `SELECT COUNT(*) FROM receipts WHERE challenge_id = ?`
	var n int
	if err := db.QueryRowContext(ctx, q, challengeID).Scan(&n); err != nil {
		return 0, domain.WrapMinerError(domain.ErrStoreQuery.Code, "count receipts", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
