package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// FindJudge looks up a whitelisted judge by id.
func (s *PostgresStore) FindJudge(ctx context.Context, judgeID string) (*models.Judge, error) {
	sql := `SELECT judge_id, full_name, court_name, jurisdiction, is_active, COALESCE(public_key, '') FROM judges WHERE judge_id = $1`
	j := &models.Judge{}
	err := s.pool.QueryRow(ctx, sql, judgeID).Scan(&j.JudgeID, &j.FullName, &j.CourtName, &j.Jurisdiction, &j.IsActive, &j.PublicKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CreateCourtOrder files a new disclosure order in PENDING status.
func (s *PostgresStore) CreateCourtOrder(ctx context.Context, o *models.CourtOrder) error {
	sql := `
		INSERT INTO court_orders (order_id, judge_id, target_idx, reason, case_number, status, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, sql, o.OrderID, o.JudgeID, o.TargetIDX, o.Reason, o.CaseNumber, o.Status, o.IssuedAt, o.ExpiresAt)
	return err
}

// FindCourtOrder loads one order by id.
func (s *PostgresStore) FindCourtOrder(ctx context.Context, orderID string) (*models.CourtOrder, error) {
	sql := `
		SELECT order_id, judge_id, target_idx, reason, case_number, status, issued_at, expires_at,
		       executed_at, access_granted, company_key_issued
		FROM court_orders WHERE order_id = $1
	`
	o := &models.CourtOrder{}
	err := s.pool.QueryRow(ctx, sql, orderID).Scan(&o.OrderID, &o.JudgeID, &o.TargetIDX, &o.Reason, &o.CaseNumber,
		&o.Status, &o.IssuedAt, &o.ExpiresAt, &o.ExecutedAt, &o.AccessGranted, &o.CompanyKeyIssued)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListCourtOrders returns every order, most recently issued first.
func (s *PostgresStore) ListCourtOrders(ctx context.Context) ([]*models.CourtOrder, error) {
	sql := `
		SELECT order_id, judge_id, target_idx, reason, case_number, status, issued_at, expires_at,
		       executed_at, access_granted, company_key_issued
		FROM court_orders ORDER BY issued_at DESC
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CourtOrder
	for rows.Next() {
		o := &models.CourtOrder{}
		if err := rows.Scan(&o.OrderID, &o.JudgeID, &o.TargetIDX, &o.Reason, &o.CaseNumber,
			&o.Status, &o.IssuedAt, &o.ExpiresAt, &o.ExecutedAt, &o.AccessGranted, &o.CompanyKeyIssued); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkCourtOrderExecuted flips an order to EXECUTED and records whether
// the split-key reconstruction succeeded.
func (s *PostgresStore) MarkCourtOrderExecuted(ctx context.Context, orderID string, accessGranted bool) error {
	sql := `
		UPDATE court_orders SET status = $1, executed_at = now(), access_granted = $2, company_key_issued = true
		WHERE order_id = $3
	`
	_, err := s.pool.Exec(ctx, sql, models.OrderExecuted, accessGranted, orderID)
	return err
}

// ExpireCourtOrder flips a stale order to EXPIRED.
func (s *PostgresStore) ExpireCourtOrder(ctx context.Context, orderID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE court_orders SET status = $1 WHERE order_id = $2`, models.OrderExpired, orderID)
	return err
}

// FindTransactionsForIDX returns every transaction touching idx as
// sender or receiver, for disclosure execution.
func (s *PostgresStore) FindTransactionsForIDX(ctx context.Context, idx string) ([]*models.Transaction, error) {
	sql := `
		SELECT sequence_number, transaction_hash, sender_account_id, receiver_account_id, sender_idx,
		       receiver_idx, sender_session_id, COALESCE(receiver_session_id, ''), amount, fee, miner_fee,
		       bank_fee, transaction_type, status, COALESCE(batch_id, ''), public_block_index,
		       private_block_index, commitment, nullifier, COALESCE(encrypted_data, ''),
		       COALESCE(encrypted_key, ''), anomaly_score, COALESCE(anomaly_flags, '{}'),
		       requires_investigation, created_at, completed_at, flagged_at
		FROM transactions WHERE sender_idx = $1 OR receiver_idx = $1 ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, sql, idx)
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

// FreezeAccountsForIDX freezes every bank account owned by idx, the
// disclosure freeze path referenced by the transaction lifecycle's
// account-frozen invariant.
func (s *PostgresStore) FreezeAccountsForIDX(ctx context.Context, idx string) error {
	_, err := s.pool.Exec(ctx, `UPDATE bank_accounts SET is_frozen = true WHERE user_idx = $1`, idx)
	return err
}

// AppendAuditLog writes the next hash-chained audit record. data is
// already-serialized JSON; entryHash must already be computed by the
// caller as sha256(prevHash + ":" + event + ":" + data), so the store stays free
// of crypto decisions.
func (s *PostgresStore) AppendAuditLog(ctx context.Context, eventType string, data string, prevHash, entryHash string) error {
	sql := `INSERT INTO audit_log (event_type, data, prev_hash, entry_hash) VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, sql, eventType, []byte(data), prevHash, entryHash)
	return err
}

// LatestAuditHash returns the entry_hash of the most recent audit row,
// or the empty string ("genesis") if the log is empty.
func (s *PostgresStore) LatestAuditHash(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT entry_hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// ListAuditTrail returns the full audit chain in order, for verification
// and for responding to a regulator's trail request.
func (s *PostgresStore) ListAuditTrail(ctx context.Context) ([]*models.AuditLogEntry, error) {
	sql := `SELECT id, event_type, data, prev_hash, entry_hash, created_at FROM audit_log ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AuditLogEntry
	for rows.Next() {
		e := &models.AuditLogEntry{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.EventType, &data, &e.PrevHash, &e.EntryHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = string(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
