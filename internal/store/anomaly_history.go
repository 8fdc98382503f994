package store

import (
	"context"
	"time"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// RecentBySender satisfies anomaly.History: transactions sent by
// senderIDX within the trailing window, most recent first.
func (s *PostgresStore) RecentBySender(ctx context.Context, senderIDX string, window time.Duration) ([]*models.Transaction, error) {
	sql := `
		SELECT sequence_number, transaction_hash, sender_account_id, receiver_account_id, sender_idx,
		       receiver_idx, sender_session_id, COALESCE(receiver_session_id, ''), amount, fee, miner_fee,
		       bank_fee, transaction_type, status, COALESCE(batch_id, ''), public_block_index,
		       private_block_index, commitment, nullifier, COALESCE(encrypted_data, ''),
		       COALESCE(encrypted_key, ''), anomaly_score, COALESCE(anomaly_flags, '{}'),
		       requires_investigation, created_at, completed_at, flagged_at
		FROM transactions
		WHERE sender_idx = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, sql, senderIDX, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := s.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CompletedCountBetween counts COMPLETED transfers from sender to
// receiver, used as the "verified recipient" trust signal.
func (s *PostgresStore) CompletedCountBetween(ctx context.Context, senderIDX, receiverIDX string) (int, error) {
	var n int
	sql := `SELECT COUNT(*) FROM transactions WHERE sender_idx = $1 AND receiver_idx = $2 AND status = $3`
	err := s.pool.QueryRow(ctx, sql, senderIDX, receiverIDX, models.StatusCompleted).Scan(&n)
	return n, err
}

// IsBusinessAccount reports whether any of senderIDX's bank accounts is
// flagged as a business account.
func (s *PostgresStore) IsBusinessAccount(ctx context.Context, senderIDX string) (bool, error) {
	var isBusiness bool
	sql := `SELECT COALESCE(bool_or(is_business), false) FROM bank_accounts WHERE user_idx = $1`
	err := s.pool.QueryRow(ctx, sql, senderIDX).Scan(&isBusiness)
	return isBusiness, err
}

// Max90Day returns senderIDX's largest single transaction amount over
// the trailing 90 days, or 0 if it has none.
func (s *PostgresStore) Max90Day(ctx context.Context, senderIDX string) (float64, error) {
	var max *float64
	sql := `SELECT MAX(amount) FROM transactions WHERE sender_idx = $1 AND created_at >= $2`
	err := s.pool.QueryRow(ctx, sql, senderIDX, time.Now().Add(-90*24*time.Hour)).Scan(&max)
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
