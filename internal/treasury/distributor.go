// Package treasury computes and books the end-of-year proportional reward
// payout from slashed stake back to the banks that verified honestly.
package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// Store is the persistence contract the distributor needs.
type Store interface {
	ListBanks(ctx context.Context) ([]*models.Bank, error)
	TreasuryBalance(ctx context.Context, fiscalYear string) (float64, error)
	DistributeRewards(ctx context.Context, fiscalYear string, shares map[string]float64) error
	ResetBankVerificationCounters(ctx context.Context) error
}

// Distributor drives one fiscal-year-end reward pass.
type Distributor struct {
	store Store
}

// New builds a Distributor.
func New(store Store) *Distributor {
	return &Distributor{store: store}
}

// FiscalYearFor derives the "YYYY-YYYY" label for a wall-clock instant. The
// Indian fiscal year runs April through March, so a January 2026 timestamp
// belongs to "2025-2026" while an April 2026 timestamp begins "2026-2027".
func FiscalYearFor(t time.Time) string {
	year := t.Year()
	if t.Month() < time.April {
		return fmt.Sprintf("%d-%d", year-1, year)
	}
	return fmt.Sprintf("%d-%d", year, year+1)
}

// Result summarizes one distribution pass.
type Result struct {
	FiscalYear string
	Available  float64
	TotalHonest int64
	Shares     map[string]float64
}

// Distribute computes available = Σ SLASH(fiscalYear) − Σ REWARD(fiscalYear),
// splits it proportionally to each bank's honest_verifications, books the
// rewards transactionally, and resets every bank's verification counters
// for the next cycle (§4.3.5). A fiscal year with no available balance or
// no honest verifications at all is a no-op, not an error.
func (d *Distributor) Distribute(ctx context.Context, fiscalYear string) (Result, error) {
	result := Result{FiscalYear: fiscalYear}

	available, err := d.store.TreasuryBalance(ctx, fiscalYear)
	if err != nil {
		return result, err
	}
	result.Available = available
	if available <= 0 {
		return result, nil
	}

	banks, err := d.store.ListBanks(ctx)
	if err != nil {
		return result, err
	}

	var totalHonest int64
	for _, b := range banks {
		totalHonest += b.HonestVerifications
	}
	result.TotalHonest = totalHonest
	if totalHonest == 0 {
		return result, nil
	}

	shares := make(map[string]float64, len(banks))
	for _, b := range banks {
		if b.HonestVerifications <= 0 {
			continue
		}
		shares[b.BankCode] = available * float64(b.HonestVerifications) / float64(totalHonest)
	}
	result.Shares = shares

	if err := d.store.DistributeRewards(ctx, fiscalYear, shares); err != nil {
		return result, err
	}
	if err := d.store.ResetBankVerificationCounters(ctx); err != nil {
		return result, err
	}
	return result, nil
}
