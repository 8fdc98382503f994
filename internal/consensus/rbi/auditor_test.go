package rbi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

type fakeRevalidator struct {
	invalidHashes map[string]bool
}

func (f *fakeRevalidator) Revalidate(ctx context.Context, t *models.Transaction) (bool, error) {
	return !f.invalidHashes[t.TransactionHash], nil
}

type fakeStore struct {
	batches    []*models.TransactionBatch
	txsByBatch map[string][]*models.Transaction
	votes      map[string][]*models.BankVotingRecord
	banks      map[string]*models.Bank
	outcomes   []outcomeCall
	penalties  map[string]float64
	treasury   []*models.TreasuryEntry
}

type outcomeCall struct {
	batchID, bankCode string
	correct, slashed  bool
	amount            float64
}

func (f *fakeStore) ListSampleableBatches(ctx context.Context) ([]*models.TransactionBatch, error) {
	return f.batches, nil
}

func (f *fakeStore) ListTransactionsForBatch(ctx context.Context, batchID string) ([]*models.Transaction, error) {
	return f.txsByBatch[batchID], nil
}

func (f *fakeStore) ListVotesForBatch(ctx context.Context, batchID string) ([]*models.BankVotingRecord, error) {
	return f.votes[batchID], nil
}

func (f *fakeStore) MarkVoteOutcome(ctx context.Context, batchID, bankCode string, isCorrect, wasSlashed bool, slashAmount float64) error {
	f.outcomes = append(f.outcomes, outcomeCall{batchID, bankCode, isCorrect, wasSlashed, slashAmount})
	return nil
}

func (f *fakeStore) FindBank(ctx context.Context, bankCode string) (*models.Bank, error) {
	b, ok := f.banks[bankCode]
	if !ok {
		return nil, nil
	}
	return b, nil
}

func (f *fakeStore) AdjustBankStake(ctx context.Context, bankCode string, delta float64, honestDelta, maliciousDelta int64) (float64, bool, error) {
	b, ok := f.banks[bankCode]
	if !ok {
		return 0, false, errors.New("unknown bank")
	}
	b.StakeAmount += delta
	b.HonestVerifications += honestDelta
	b.MaliciousVerifications += maliciousDelta
	if maliciousDelta > 0 {
		b.PenaltyCount++
	}
	return b.StakeAmount, b.StakeAmount <= 0, nil
}

func (f *fakeStore) RecordPenalty(ctx context.Context, bankCode string, amount float64) error {
	if f.penalties == nil {
		f.penalties = make(map[string]float64)
	}
	f.penalties[bankCode] += amount
	return nil
}

func (f *fakeStore) InsertTreasuryEntry(ctx context.Context, e *models.TreasuryEntry) error {
	f.treasury = append(f.treasury, e)
	return nil
}

func newFixtureStore() *fakeStore {
	return &fakeStore{
		txsByBatch: map[string][]*models.Transaction{},
		votes:      map[string][]*models.BankVotingRecord{},
		banks: map[string]*models.Bank{
			"SBI": {BankCode: "SBI", StakeAmount: 1000},
			"HDFC": {BankCode: "HDFC", StakeAmount: 1000},
		},
	}
}

// A bank that voted APPROVE on a batch the auditor finds invalid loses its
// first-offense 5% stake slash and has the offense recorded (§4.3.4).
func TestRunPass_SlashesApproveOnInvalidBatch(t *testing.T) {
	store := newFixtureStore()
	store.batches = []*models.TransactionBatch{{BatchID: "b1", Status: models.BatchCompleted}}
	store.txsByBatch["b1"] = []*models.Transaction{{TransactionHash: "bad-tx"}}
	store.votes["b1"] = []*models.BankVotingRecord{{BatchID: "b1", BankCode: "SBI", Vote: models.VoteApprove, ChallengedBy: "HDFC"}}

	auditor := New(store, &fakeRevalidator{invalidHashes: map[string]bool{"bad-tx": true}}, func(time.Time) string { return "2026-2027" })

	results, err := auditor.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if len(results[0].Malicious) != 1 || results[0].Malicious[0] != "SBI" {
		t.Fatalf("expected SBI flagged malicious, got %+v", results[0])
	}
	wantSlash := SlashRate(1) * 1000
	if results[0].SlashedTotal != wantSlash {
		t.Fatalf("expected slash %.2f, got %.2f", wantSlash, results[0].SlashedTotal)
	}
	if store.banks["SBI"].StakeAmount != 1000-wantSlash {
		t.Fatalf("expected stake reduced to %.2f, got %.2f", 1000-wantSlash, store.banks["SBI"].StakeAmount)
	}
	if len(store.treasury) != 1 || store.treasury[0].EntryType != models.TreasurySlash {
		t.Fatalf("expected one SLASH treasury entry, got %+v", store.treasury)
	}
}

// A bank that voted APPROVE on a batch the auditor confirms valid is
// credited as an honest verification, untouched in stake.
func TestRunPass_CreditsHonestApprove(t *testing.T) {
	store := newFixtureStore()
	store.batches = []*models.TransactionBatch{{BatchID: "b1", Status: models.BatchCompleted}}
	store.txsByBatch["b1"] = []*models.Transaction{{TransactionHash: "good-tx"}}
	store.votes["b1"] = []*models.BankVotingRecord{{BatchID: "b1", BankCode: "HDFC", Vote: models.VoteApprove, ChallengedBy: "SBI"}}

	auditor := New(store, &fakeRevalidator{invalidHashes: map[string]bool{}}, func(time.Time) string { return "2026-2027" })

	results, err := auditor.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results[0].Honest) != 1 || results[0].Honest[0] != "HDFC" {
		t.Fatalf("expected HDFC credited honest, got %+v", results[0])
	}
	if store.banks["HDFC"].HonestVerifications != 1 {
		t.Fatalf("expected honest_verifications=1, got %d", store.banks["HDFC"].HonestVerifications)
	}
	if store.banks["HDFC"].StakeAmount != 1000 {
		t.Fatalf("expected stake untouched, got %.2f", store.banks["HDFC"].StakeAmount)
	}
}

// A bank that voted REJECT on a batch the auditor confirms valid is merely
// wrong — neither honest nor malicious, and its stake is untouched.
func TestRunPass_RejectOnValidBatchIsNeitherHonestNorMalicious(t *testing.T) {
	store := newFixtureStore()
	store.batches = []*models.TransactionBatch{{BatchID: "b1", Status: models.BatchCompleted}}
	store.txsByBatch["b1"] = []*models.Transaction{{TransactionHash: "good-tx"}}
	store.votes["b1"] = []*models.BankVotingRecord{{BatchID: "b1", BankCode: "SBI", Vote: models.VoteReject, ChallengedBy: "HDFC"}}

	auditor := New(store, &fakeRevalidator{invalidHashes: map[string]bool{}}, func(time.Time) string { return "2026-2027" })

	results, err := auditor.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results[0].Honest) != 0 || len(results[0].Malicious) != 0 {
		t.Fatalf("expected neither honest nor malicious, got %+v", results[0])
	}
	if store.banks["SBI"].StakeAmount != 1000 {
		t.Fatalf("expected stake untouched for a merely-wrong vote, got %.2f", store.banks["SBI"].StakeAmount)
	}
	if len(store.outcomes) != 1 || store.outcomes[0].correct {
		t.Fatalf("expected outcome recorded as incorrect, got %+v", store.outcomes)
	}
}

// Escalating offense count raises the slash rate: 5%, 10%, then 20%.
func TestSlashRate_Escalates(t *testing.T) {
	cases := []struct {
		offense int
		want    float64
	}{
		{1, 0.05},
		{2, 0.10},
		{3, 0.20},
		{4, 0.20},
	}
	for _, c := range cases {
		if got := SlashRate(c.offense); got != c.want {
			t.Fatalf("SlashRate(%d) = %.2f, want %.2f", c.offense, got, c.want)
		}
	}
}

// A batch with a pending challenge is always sampled, bypassing the random
// 10% gate.
func TestRunPass_ChallengedBatchAlwaysSampled(t *testing.T) {
	store := newFixtureStore()
	store.batches = []*models.TransactionBatch{{BatchID: "b1", Status: models.BatchCompleted}}
	store.txsByBatch["b1"] = []*models.Transaction{{TransactionHash: "good-tx"}}
	store.votes["b1"] = []*models.BankVotingRecord{{BatchID: "b1", BankCode: "SBI", Vote: models.VoteApprove, ChallengedBy: "HDFC"}}

	auditor := New(store, &fakeRevalidator{invalidHashes: map[string]bool{}}, func(time.Time) string { return "2026-2027" })
	results, err := auditor.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].Sampled {
		t.Fatalf("expected challenged batch to be sampled, got %+v", results)
	}
}
