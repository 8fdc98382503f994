package store

import (
	"context"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// InsertTreasuryEntry appends an insert-only ledger row (slash debit or
// reward credit). Never updated or deleted once written.
func (s *PostgresStore) InsertTreasuryEntry(ctx context.Context, e *models.TreasuryEntry) error {
	sql := `
		INSERT INTO treasury_entries (entry_type, amount, bank_code, fiscal_year, reason, offense_count, honest_verification_count)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NULLIF($7, 0))
	`
	_, err := s.pool.Exec(ctx, sql, e.EntryType, e.Amount, e.BankCode, e.FiscalYear, e.Reason, e.OffenseCount, e.HonestVerificationCount)
	return err
}

// TreasuryBalance sums every SLASH credit minus every REWARD debit for a
// fiscal year, i.e. what remains undistributed for that year.
func (s *PostgresStore) TreasuryBalance(ctx context.Context, fiscalYear string) (float64, error) {
	sql := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'SLASH'), 0) -
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'REWARD'), 0)
		FROM treasury_entries WHERE fiscal_year = $1
	`
	var balance float64
	err := s.pool.QueryRow(ctx, sql, fiscalYear).Scan(&balance)
	return balance, err
}

// ListTreasuryEntriesForFiscalYear returns every entry recorded for a
// fiscal year, for the reward-distribution report.
func (s *PostgresStore) ListTreasuryEntriesForFiscalYear(ctx context.Context, fiscalYear string) ([]*models.TreasuryEntry, error) {
	sql := `
		SELECT id, entry_type, amount, bank_code, fiscal_year, reason,
		       COALESCE(offense_count, 0), COALESCE(honest_verification_count, 0), created_at
		FROM treasury_entries WHERE fiscal_year = $1 ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, sql, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TreasuryEntry
	for rows.Next() {
		e := &models.TreasuryEntry{}
		if err := rows.Scan(&e.ID, &e.EntryType, &e.Amount, &e.BankCode, &e.FiscalYear, &e.Reason,
			&e.OffenseCount, &e.HonestVerificationCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DistributeRewards transactionally credits each bank's stake by its
// share and inserts the corresponding REWARD entries — all-or-nothing,
// so a mid-distribution failure never leaves a partially rewarded year.
func (s *PostgresStore) DistributeRewards(ctx context.Context, fiscalYear string, shares map[string]float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for bankCode, amount := range shares {
		if amount <= 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE banks SET stake_amount = stake_amount + $1, last_fiscal_year_reward = $1, last_fiscal_year_for = $2 WHERE bank_code = $3`, amount, fiscalYear, bankCode); err != nil {
			return err
		}
		sql := `
			INSERT INTO treasury_entries (entry_type, amount, bank_code, fiscal_year, reason)
			VALUES ('REWARD', $1, $2, $3, 'fiscal year reward distribution')
		`
		if _, err := tx.Exec(ctx, sql, amount, bankCode, fiscalYear); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ResetBankVerificationCounters zeroes every bank's honest_verifications
// and malicious_verifications, the per-fiscal-year counters distribution
// consumes before the next cycle accrues its own (§4.3.5).
func (s *PostgresStore) ResetBankVerificationCounters(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE banks SET honest_verifications = 0, malicious_verifications = 0`)
	return err
}
