package treasury

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

type fakeStore struct {
	banks          []*models.Bank
	balance        float64
	distributed    map[string]float64
	resetCalled    bool
}

func (f *fakeStore) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	return f.banks, nil
}

func (f *fakeStore) TreasuryBalance(ctx context.Context, fiscalYear string) (float64, error) {
	return f.balance, nil
}

func (f *fakeStore) DistributeRewards(ctx context.Context, fiscalYear string, shares map[string]float64) error {
	f.distributed = shares
	return nil
}

func (f *fakeStore) ResetBankVerificationCounters(ctx context.Context) error {
	f.resetCalled = true
	return nil
}

// Rewards split proportionally to each bank's honest_verifications, and the
// counters reset for the next cycle only after a successful distribution.
func TestDistribute_SplitsProportionally(t *testing.T) {
	store := &fakeStore{
		balance: 1000,
		banks: []*models.Bank{
			{BankCode: "SBI", HonestVerifications: 30},
			{BankCode: "HDFC", HonestVerifications: 70},
			{BankCode: "ICICI", HonestVerifications: 0},
		},
	}
	d := New(store)

	result, err := d.Distribute(context.Background(), "2026-2027")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalHonest != 100 {
		t.Fatalf("expected totalHonest=100, got %d", result.TotalHonest)
	}
	if result.Shares["SBI"] != 300 {
		t.Fatalf("expected SBI share=300, got %.2f", result.Shares["SBI"])
	}
	if result.Shares["HDFC"] != 700 {
		t.Fatalf("expected HDFC share=700, got %.2f", result.Shares["HDFC"])
	}
	if _, ok := result.Shares["ICICI"]; ok {
		t.Fatalf("expected ICICI with zero honest verifications to receive no share")
	}
	if !store.resetCalled {
		t.Fatalf("expected verification counters reset after distribution")
	}
	if len(store.distributed) != 2 {
		t.Fatalf("expected 2 banks paid, got %d", len(store.distributed))
	}
}

// A fiscal year with nothing in the treasury is a no-op, not an error, and
// never resets counters since nothing was actually distributed.
func TestDistribute_ZeroBalanceIsNoop(t *testing.T) {
	store := &fakeStore{balance: 0, banks: []*models.Bank{{BankCode: "SBI", HonestVerifications: 10}}}
	d := New(store)

	result, err := d.Distribute(context.Background(), "2026-2027")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Shares != nil {
		t.Fatalf("expected no shares computed, got %+v", result.Shares)
	}
	if store.resetCalled {
		t.Fatalf("expected counters untouched on a zero-balance no-op")
	}
}

// A positive balance with no honest verifications anywhere is also a no-op.
func TestDistribute_NoHonestVerificationsIsNoop(t *testing.T) {
	store := &fakeStore{balance: 500, banks: []*models.Bank{{BankCode: "SBI", HonestVerifications: 0}}}
	d := New(store)

	result, err := d.Distribute(context.Background(), "2026-2027")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Shares != nil {
		t.Fatalf("expected no shares computed, got %+v", result.Shares)
	}
	if store.resetCalled {
		t.Fatalf("expected counters untouched when nothing was paid out")
	}
}

// The fiscal year runs April-March: a January timestamp belongs to the
// cycle that started the previous April.
func TestFiscalYearFor_StraddlesAprilBoundary(t *testing.T) {
	jan := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	apr := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	if got := FiscalYearFor(jan); got != "2025-2026" {
		t.Fatalf("expected 2025-2026 for January, got %s", got)
	}
	if got := FiscalYearFor(apr); got != "2026-2027" {
		t.Fatalf("expected 2026-2027 for April, got %s", got)
	}
}
