package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// CreateBatch persists a new transaction batch in BUILDING status.
func (s *PostgresStore) CreateBatch(ctx context.Context, b *models.TransactionBatch) error {
	sql := `
		INSERT INTO transaction_batches (batch_id, sequence_start, sequence_end, transaction_count, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, sql, b.BatchID, b.SequenceStart, b.SequenceEnd, b.TransactionCount, b.Status)
	return err
}

// SetBatchMerkleRoot records the computed Merkle root once the batch is sealed.
func (s *PostgresStore) SetBatchMerkleRoot(ctx context.Context, batchID, merkleRoot string, tree [][]string) error {
	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	sql := `UPDATE transaction_batches SET merkle_root = $1, merkle_tree = $2, status = $3 WHERE batch_id = $4`
	_, err = s.pool.Exec(ctx, sql, merkleRoot, treeJSON, models.BatchReady, batchID)
	return err
}

// RecordVote upserts one bank's vote on a batch.
func (s *PostgresStore) RecordVote(ctx context.Context, v *models.BankVotingRecord) error {
	sql := `
		INSERT INTO bank_voting_records (batch_id, bank_code, vote, validation_time_ms, rbi_verified, group_signature)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (batch_id, bank_code) DO UPDATE
		SET vote = EXCLUDED.vote, validation_time_ms = EXCLUDED.validation_time_ms,
		    rbi_verified = EXCLUDED.rbi_verified, group_signature = EXCLUDED.group_signature
	`
	_, err := s.pool.Exec(ctx, sql, v.BatchID, v.BankCode, v.Vote, v.ValidationTimeMs, v.RBIVerified, v.GroupSignature)
	return err
}

// ListVotesForBatch returns every vote cast on a batch so far.
func (s *PostgresStore) ListVotesForBatch(ctx context.Context, batchID string) ([]*models.BankVotingRecord, error) {
	sql := `
		SELECT batch_id, bank_code, vote, validation_time_ms, is_correct, rbi_verified,
		       was_slashed, slash_amount, COALESCE(challenged_by, ''), COALESCE(group_signature, '')
		FROM bank_voting_records WHERE batch_id = $1
	`
	rows, err := s.pool.Query(ctx, sql, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.BankVotingRecord
	for rows.Next() {
		v := &models.BankVotingRecord{}
		var isCorrect *bool
		if err := rows.Scan(&v.BatchID, &v.BankCode, &v.Vote, &v.ValidationTimeMs, &isCorrect,
			&v.RBIVerified, &v.WasSlashed, &v.SlashAmount, &v.ChallengedBy, &v.GroupSignature); err != nil {
			return nil, err
		}
		v.IsCorrect = isCorrect
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkVoteOutcome records the RBI audit's verdict and any slash applied
// to a single bank's vote on a batch.
func (s *PostgresStore) MarkVoteOutcome(ctx context.Context, batchID, bankCode string, isCorrect bool, wasSlashed bool, slashAmount float64) error {
	sql := `
		UPDATE bank_voting_records SET is_correct = $1, was_slashed = $2, slash_amount = $3
		WHERE batch_id = $4 AND bank_code = $5
	`
	_, err := s.pool.Exec(ctx, sql, isCorrect, wasSlashed, slashAmount, batchID, bankCode)
	return err
}

// FinalizeBatch sets a batch to the given status (callers pass MINING
// once its public block is mined, or FAILED) and links its
// public/private block indexes.
func (s *PostgresStore) FinalizeBatch(ctx context.Context, batchID string, status models.TransactionBatchStatus, publicIdx, privateIdx *int64) error {
	sql := `
		UPDATE transaction_batches SET status = $1, public_block_index = $2, private_block_index = $3
		WHERE batch_id = $4
	`
	_, err := s.pool.Exec(ctx, sql, status, publicIdx, privateIdx, batchID)
	return err
}

// InsertPublicBlock appends a mined block to the public PoW chain.
func (s *PostgresStore) InsertPublicBlock(ctx context.Context, b *models.BlockPublic) error {
	sql := `
		INSERT INTO blocks_public (block_index, block_hash, previous_hash, transactions, nonce, difficulty, timestamp, mined_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, sql, b.BlockIndex, b.BlockHash, b.PreviousHash, b.Transactions, b.Nonce, b.Difficulty, b.Timestamp, b.MinedBy)
	return err
}

// LatestPublicBlock returns the chain tip, or nil if the chain is empty.
func (s *PostgresStore) LatestPublicBlock(ctx context.Context) (*models.BlockPublic, error) {
	sql := `
		SELECT block_index, block_hash, previous_hash, transactions, nonce, difficulty, timestamp, mined_by
		FROM blocks_public ORDER BY block_index DESC LIMIT 1
	`
	b := &models.BlockPublic{}
	err := s.pool.QueryRow(ctx, sql).Scan(&b.BlockIndex, &b.BlockHash, &b.PreviousHash, &b.Transactions, &b.Nonce, &b.Difficulty, &b.Timestamp, &b.MinedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// InsertPrivateBlock appends the encrypted identity-map block linked to
// a public block.
func (s *PostgresStore) InsertPrivateBlock(ctx context.Context, b *models.BlockPrivate) error {
	sql := `
		INSERT INTO blocks_private (block_index, block_hash, linked_public_block, encrypted_data, encrypted_key, consensus_votes, consensus_achieved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, sql, b.BlockIndex, b.BlockHash, b.LinkedPublicBlock, b.EncryptedData, b.EncryptedKey, b.ConsensusVotes, b.ConsensusAchieved)
	return err
}

// FindPrivateBlockByPublicIndex loads the private block linked to a
// given public block index, for disclosure.
func (s *PostgresStore) FindPrivateBlockByPublicIndex(ctx context.Context, publicIndex int64) (*models.BlockPrivate, error) {
	sql := `
		SELECT block_index, block_hash, linked_public_block, encrypted_data, encrypted_key, consensus_votes, consensus_achieved, created_at
		FROM blocks_private WHERE linked_public_block = $1
	`
	b := &models.BlockPrivate{}
	err := s.pool.QueryRow(ctx, sql, publicIndex).Scan(
		&b.BlockIndex, &b.BlockHash, &b.LinkedPublicBlock, &b.EncryptedData, &b.EncryptedKey,
		&b.ConsensusVotes, &b.ConsensusAchieved, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBanks returns every registered consortium bank.
func (s *PostgresStore) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	sql := `
		SELECT bank_code, bank_name, stake_amount, initial_stake, is_active, total_validations,
		       total_fees_earned, penalty_count, total_penalties, honest_verifications,
		       malicious_verifications, last_fiscal_year_reward, COALESCE(last_fiscal_year_for, '')
		FROM banks
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Bank
	for rows.Next() {
		b := &models.Bank{}
		if err := rows.Scan(&b.BankCode, &b.BankName, &b.StakeAmount, &b.InitialStake, &b.IsActive,
			&b.TotalValidations, &b.TotalFeesEarned, &b.PenaltyCount, &b.TotalPenalties,
			&b.HonestVerifications, &b.MaliciousVerifications, &b.LastFiscalYearReward, &b.LastFiscalYearRewardFor); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindBank loads one bank by code.
func (s *PostgresStore) FindBank(ctx context.Context, bankCode string) (*models.Bank, error) {
	sql := `
		SELECT bank_code, bank_name, stake_amount, initial_stake, is_active, total_validations,
		       total_fees_earned, penalty_count, total_penalties, honest_verifications,
		       malicious_verifications, last_fiscal_year_reward, COALESCE(last_fiscal_year_for, '')
		FROM banks WHERE bank_code = $1
	`
	b := &models.Bank{}
	err := s.pool.QueryRow(ctx, sql, bankCode).Scan(&b.BankCode, &b.BankName, &b.StakeAmount, &b.InitialStake, &b.IsActive,
		&b.TotalValidations, &b.TotalFeesEarned, &b.PenaltyCount, &b.TotalPenalties,
		&b.HonestVerifications, &b.MaliciousVerifications, &b.LastFiscalYearReward, &b.LastFiscalYearRewardFor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AdjustBankStake applies a signed delta to a bank's stake (positive for
// fee/reward credit, negative for a slash) inside a locked row read, and
// deactivates the bank if its stake falls under 30% of its initial stake.
func (s *PostgresStore) AdjustBankStake(ctx context.Context, bankCode string, delta float64, honestDelta, maliciousDelta int64) (stakeAfter float64, deactivated bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stake, initial float64
	if err := tx.QueryRow(ctx, `SELECT stake_amount, initial_stake FROM banks WHERE bank_code = $1 FOR UPDATE`, bankCode).Scan(&stake, &initial); err != nil {
		return 0, false, err
	}
	stake += delta
	if stake < 0 {
		stake = 0
	}
	deactivate := initial > 0 && stake < 0.30*initial

	sql := `
		UPDATE banks SET stake_amount = $1, is_active = is_active AND NOT $2,
		       honest_verifications = honest_verifications + $3,
		       malicious_verifications = malicious_verifications + $4
		WHERE bank_code = $5
	`
	if _, err := tx.Exec(ctx, sql, stake, deactivate, honestDelta, maliciousDelta, bankCode); err != nil {
		return 0, false, err
	}
	return stake, deactivate, tx.Commit(ctx)
}

// FindBatch loads one batch by id.
func (s *PostgresStore) FindBatch(ctx context.Context, batchID string) (*models.TransactionBatch, error) {
	sql := `
		SELECT batch_id, sequence_start, sequence_end, transaction_count,
		       COALESCE(merkle_root, ''), status, public_block_index, private_block_index, created_at
		FROM transaction_batches WHERE batch_id = $1
	`
	b := &models.TransactionBatch{}
	err := s.pool.QueryRow(ctx, sql, batchID).Scan(&b.BatchID, &b.SequenceStart, &b.SequenceEnd, &b.TransactionCount,
		&b.MerkleRoot, &b.Status, &b.PublicBlockIndex, &b.PrivateBlockIndex, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListSampleableBatches returns every batch in MINING or COMPLETED status,
// plus every batch carrying a vote with a non-empty challenged_by — the
// population the RBI auditor samples ~10% of (§4.3.4).
func (s *PostgresStore) ListSampleableBatches(ctx context.Context) ([]*models.TransactionBatch, error) {
	sql := `
		SELECT DISTINCT b.batch_id, b.sequence_start, b.sequence_end, b.transaction_count,
		       COALESCE(b.merkle_root, ''), b.status, b.public_block_index, b.private_block_index, b.created_at
		FROM transaction_batches b
		LEFT JOIN bank_voting_records v ON v.batch_id = b.batch_id AND v.challenged_by <> ''
		WHERE b.status IN ($1, $2) OR v.challenged_by IS NOT NULL
		ORDER BY b.created_at ASC
	`
	rows, err := s.pool.Query(ctx, sql, models.BatchMining, models.BatchCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TransactionBatch
	for rows.Next() {
		b := &models.TransactionBatch{}
		if err := rows.Scan(&b.BatchID, &b.SequenceStart, &b.SequenceEnd, &b.TransactionCount,
			&b.MerkleRoot, &b.Status, &b.PublicBlockIndex, &b.PrivateBlockIndex, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RecordPenalty increments a bank's penalty_count and total_penalties.
func (s *PostgresStore) RecordPenalty(ctx context.Context, bankCode string, amount float64) error {
	sql := `UPDATE banks SET penalty_count = penalty_count + 1, total_penalties = total_penalties + $1 WHERE bank_code = $2`
	_, err := s.pool.Exec(ctx, sql, amount, bankCode)
	return err
}
