package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// CreateTransactionWithLocks inserts a new transaction, first debiting
// the sender account by t.Amount when debitSender is set and crediting
// creditAmount to creditReceiverID when that is non-nil and creditAmount
// is positive — all inside one transaction with rows locked in ascending
// account_id order
// to avoid the classic transfer deadlock between two concurrent opposite
// transfers.
func (s *PostgresStore) CreateTransactionWithLocks(ctx context.Context, t *models.Transaction, debitSender bool, creditReceiverID *int64, creditAmount float64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockIDs := []int64{t.SenderAccountID}
	if creditReceiverID != nil {
		lockIDs = append(lockIDs, *creditReceiverID)
	}
	if len(lockIDs) == 2 && lockIDs[0] > lockIDs[1] {
		lockIDs[0], lockIDs[1] = lockIDs[1], lockIDs[0]
	}
	for _, id := range lockIDs {
		var frozen bool
		if err := tx.QueryRow(ctx, `SELECT is_frozen FROM bank_accounts WHERE id = $1 FOR UPDATE`, id).Scan(&frozen); err != nil {
			return 0, fmt.Errorf("lock account %d: %w", id, err)
		}
	}

	if debitSender {
		cmd, err := tx.Exec(ctx, `UPDATE bank_accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1`, t.Amount, t.SenderAccountID)
		if err != nil {
			return 0, err
		}
		if cmd.RowsAffected() == 0 {
			return 0, fmt.Errorf("insufficient balance on account %d", t.SenderAccountID)
		}
	}
	if creditReceiverID != nil && creditAmount > 0 {
		if _, err := tx.Exec(ctx, `UPDATE bank_accounts SET balance = balance + $1 WHERE id = $2`, creditAmount, *creditReceiverID); err != nil {
			return 0, err
		}
	}

	sql := `
		INSERT INTO transactions (
			transaction_hash, sender_account_id, receiver_account_id, sender_idx, receiver_idx,
			sender_session_id, receiver_session_id, amount, fee, miner_fee, bank_fee,
			transaction_type, status, commitment, nullifier, encrypted_data, encrypted_key,
			anomaly_score, anomaly_flags, requires_investigation
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING sequence_number
	`
	var seq int64
	err = tx.QueryRow(ctx, sql,
		t.TransactionHash, t.SenderAccountID, t.ReceiverAccountID, t.SenderIDX, t.ReceiverIDX,
		t.SenderSessionID, nullIfEmpty(t.ReceiverSessionID), t.Amount, t.Fee, t.MinerFee, t.BankFee,
		t.TransactionType, t.Status, t.Commitment, t.Nullifier, t.EncryptedData, t.EncryptedKey,
		t.AnomalyScore, t.AnomalyFlags, t.RequiresInvestigation,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, tx.Commit(ctx)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// FindTransactionByHash loads a transaction by its content hash.
func (s *PostgresStore) FindTransactionByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	sql := `
		SELECT sequence_number, transaction_hash, sender_account_id, receiver_account_id, sender_idx,
		       receiver_idx, sender_session_id, COALESCE(receiver_session_id, ''), amount, fee, miner_fee,
		       bank_fee, transaction_type, status, COALESCE(batch_id, ''), public_block_index,
		       private_block_index, commitment, nullifier, COALESCE(encrypted_data, ''),
		       COALESCE(encrypted_key, ''), anomaly_score, COALESCE(anomaly_flags, '{}'),
		       requires_investigation, created_at, completed_at, flagged_at
		FROM transactions WHERE transaction_hash = $1
	`
	return s.scanTransaction(s.pool.QueryRow(ctx, sql, hash))
}

func (s *PostgresStore) scanTransaction(row pgx.Row) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(
		&t.SequenceNumber, &t.TransactionHash, &t.SenderAccountID, &t.ReceiverAccountID, &t.SenderIDX,
		&t.ReceiverIDX, &t.SenderSessionID, &t.ReceiverSessionID, &t.Amount, &t.Fee, &t.MinerFee,
		&t.BankFee, &t.TransactionType, &t.Status, &t.BatchID, &t.PublicBlockIndex,
		&t.PrivateBlockIndex, &t.Commitment, &t.Nullifier, &t.EncryptedData,
		&t.EncryptedKey, &t.AnomalyScore, &t.AnomalyFlags,
		&t.RequiresInvestigation, &t.CreatedAt, &t.CompletedAt, &t.FlaggedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListPendingTransactions returns up to limit transactions in PENDING
// status ordered by sequence_number, the candidate pool for the next batch.
func (s *PostgresStore) ListPendingTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	sql := `
		SELECT sequence_number, transaction_hash, sender_account_id, receiver_account_id, sender_idx,
		       receiver_idx, sender_session_id, COALESCE(receiver_session_id, ''), amount, fee, miner_fee,
		       bank_fee, transaction_type, status, COALESCE(batch_id, ''), public_block_index,
		       private_block_index, commitment, nullifier, COALESCE(encrypted_data, ''),
		       COALESCE(encrypted_key, ''), anomaly_score, COALESCE(anomaly_flags, '{}'),
		       requires_investigation, created_at, completed_at, flagged_at
		FROM transactions WHERE status = $1 ORDER BY sequence_number ASC LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, models.StatusPending, limit)
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

// ListTransactionsForBatch returns every transaction sealed into a batch,
// the re-validation set for bank voting and RBI re-audit alike.
func (s *PostgresStore) ListTransactionsForBatch(ctx context.Context, batchID string) ([]*models.Transaction, error) {
	sql := `
		SELECT sequence_number, transaction_hash, sender_account_id, receiver_account_id, sender_idx,
		       receiver_idx, sender_session_id, COALESCE(receiver_session_id, ''), amount, fee, miner_fee,
		       bank_fee, transaction_type, status, COALESCE(batch_id, ''), public_block_index,
		       private_block_index, commitment, nullifier, COALESCE(encrypted_data, ''),
		       COALESCE(encrypted_key, ''), anomaly_score, COALESCE(anomaly_flags, '{}'),
		       requires_investigation, created_at, completed_at, flagged_at
		FROM transactions WHERE batch_id = $1 ORDER BY sequence_number ASC
	`
	rows, err := s.pool.Query(ctx, sql, batchID)
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

// UpdateTransactionStatus moves a transaction to a new lifecycle state.
func (s *PostgresStore) UpdateTransactionStatus(ctx context.Context, hash string, status models.TransactionStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE transactions SET status = $1 WHERE transaction_hash = $2`, status, hash)
	return err
}

// AssignTransactionsToBatch stamps batch_id and MINING status on the
// sequence range [start, end] in one statement.
func (s *PostgresStore) AssignTransactionsToBatch(ctx context.Context, batchID string, start, end int64) error {
	sql := `
		UPDATE transactions SET batch_id = $1, status = $2
		WHERE sequence_number BETWEEN $3 AND $4 AND status = $5
	`
	_, err := s.pool.Exec(ctx, sql, batchID, models.StatusMining, start, end, models.StatusPending)
	return err
}

// RejectTransaction marks a transaction rejected. Balances are left
// untouched: transactions are created without debiting the sender
// (ledger.Engine.Create), and money moves only at settlement.
func (s *PostgresStore) RejectTransaction(ctx context.Context, t *models.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE transaction_hash = $2`, models.StatusRejected, t.TransactionHash); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CompleteTransaction marks a transaction COMPLETED and stamps completed_at.
func (s *PostgresStore) CompleteTransaction(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE transactions SET status = $1, completed_at = now() WHERE transaction_hash = $2`, models.StatusCompleted, hash)
	return err
}

// FlagTransaction records the anomaly assessment for every transaction
// scored (§4.2): anomaly_score and anomaly_flags are always written;
// flagged_at is stamped only when requiresInvestigation is true, so the
// "most recently flagged" ordering in ListFlaggedTransactions stays
// meaningful.
func (s *PostgresStore) FlagTransaction(ctx context.Context, hash string, score int, flags []string, requiresInvestigation bool) error {
	sql := `
		UPDATE transactions SET
			anomaly_score = $1,
			anomaly_flags = $2,
			requires_investigation = $3,
			flagged_at = CASE WHEN $3 THEN now() ELSE flagged_at END
		WHERE transaction_hash = $4
	`
	_, err := s.pool.Exec(ctx, sql, score, flags, requiresInvestigation, hash)
	return err
}

// ListFlaggedTransactions returns transactions requiring investigation,
// most recent first.
func (s *PostgresStore) ListFlaggedTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	sql := `
		SELECT sequence_number, transaction_hash, sender_account_id, receiver_account_id, sender_idx,
		       receiver_idx, sender_session_id, COALESCE(receiver_session_id, ''), amount, fee, miner_fee,
		       bank_fee, transaction_type, status, COALESCE(batch_id, ''), public_block_index,
		       private_block_index, commitment, nullifier, COALESCE(encrypted_data, ''),
		       COALESCE(encrypted_key, ''), anomaly_score, COALESCE(anomaly_flags, '{}'),
		       requires_investigation, created_at, completed_at, flagged_at
		FROM transactions WHERE requires_investigation = true ORDER BY flagged_at DESC LIMIT $1
	`
	rows, err := s.pool.Query(ctx, sql, limit)
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

// SettleTransaction performs the final, atomic movement of money for a
// transaction that has cleared consensus: re-check the sender's balance
// under an exclusive row lock (the final double-spend guard), debit
// amount+fee, credit the receiver, distribute bankShares to each bank's
// total_fees_earned (ascending bank_code order, per the deadlock-avoidance
// rule), and mark the transaction COMPLETED. If the recheck fails, it
// returns ok=false and leaves every balance untouched — the caller marks
// the transaction FAILED; the miner has already been paid and that is
// not reversed here.
func (s *PostgresStore) SettleTransaction(ctx context.Context, hash string, senderAccountID, receiverAccountID int64, amount, fee float64, bankShares map[string]float64) (ok bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockIDs := []int64{senderAccountID, receiverAccountID}
	if lockIDs[0] > lockIDs[1] {
		lockIDs[0], lockIDs[1] = lockIDs[1], lockIDs[0]
	}
	for _, id := range lockIDs {
		if _, err := tx.Exec(ctx, `SELECT 1 FROM bank_accounts WHERE id = $1 FOR UPDATE`, id); err != nil {
			return false, err
		}
	}

	var senderBalance float64
	if err := tx.QueryRow(ctx, `SELECT balance FROM bank_accounts WHERE id = $1`, senderAccountID).Scan(&senderBalance); err != nil {
		return false, err
	}
	if senderBalance < amount+fee {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE bank_accounts SET balance = balance - $1 WHERE id = $2`, amount+fee, senderAccountID); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `UPDATE bank_accounts SET balance = balance + $1 WHERE id = $2`, amount, receiverAccountID); err != nil {
		return false, err
	}

	bankCodes := make([]string, 0, len(bankShares))
	for code := range bankShares {
		bankCodes = append(bankCodes, code)
	}
	sort.Strings(bankCodes)
	for _, code := range bankCodes {
		share := bankShares[code]
		if share <= 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE banks SET stake_amount = stake_amount + $1, total_fees_earned = total_fees_earned + $1 WHERE bank_code = $2`, share, code); err != nil {
			return false, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1, completed_at = now() WHERE transaction_hash = $2`, models.StatusCompleted, hash); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// RecentTransactionsForIDX returns up to limit of an IDX's most recent
// transactions as sender, newest first. (The anomaly scorer reads its
// history through RecentBySender in anomaly_history.go instead.)
func (s *PostgresStore) RecentTransactionsForIDX(ctx context.Context, idx string, limit int) ([]*models.Transaction, error) {
	sql := `
		SELECT sequence_number, transaction_hash, sender_account_id, receiver_account_id, sender_idx,
		       receiver_idx, sender_session_id, COALESCE(receiver_session_id, ''), amount, fee, miner_fee,
		       bank_fee, transaction_type, status, COALESCE(batch_id, ''), public_block_index,
		       private_block_index, commitment, nullifier, COALESCE(encrypted_data, ''),
		       COALESCE(encrypted_key, ''), anomaly_score, COALESCE(anomaly_flags, '{}'),
		       requires_investigation, created_at, completed_at, flagged_at
		FROM transactions WHERE sender_idx = $1 ORDER BY created_at DESC LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, idx, limit)
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
