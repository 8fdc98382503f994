// Package rbi implements the central bank's independent re-audit of mined
// batches: sampling, re-validation against the same checks banks ran, and
// escalating stake slashing for banks that voted APPROVE on an invalid batch.
package rbi

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// SampleRate is the fraction of MINING/COMPLETED batches the auditor pulls
// in each pass, independent of the challenged set (§4.3.4: "roughly 10%").
const SampleRate = 0.10

// Revalidator runs the same per-transaction checks a consortium bank runs
// before voting — sender/receiver exist, not frozen, balance covers amount+fee.
type Revalidator interface {
	Revalidate(ctx context.Context, t *models.Transaction) (bool, error)
}

// Store is the persistence contract the auditor needs.
type Store interface {
	ListSampleableBatches(ctx context.Context) ([]*models.TransactionBatch, error)
	ListTransactionsForBatch(ctx context.Context, batchID string) ([]*models.Transaction, error)
	ListVotesForBatch(ctx context.Context, batchID string) ([]*models.BankVotingRecord, error)
	MarkVoteOutcome(ctx context.Context, batchID, bankCode string, isCorrect bool, wasSlashed bool, slashAmount float64) error
	FindBank(ctx context.Context, bankCode string) (*models.Bank, error)
	AdjustBankStake(ctx context.Context, bankCode string, delta float64, honestDelta, maliciousDelta int64) (stakeAfter float64, deactivated bool, err error)
	RecordPenalty(ctx context.Context, bankCode string, amount float64) error
	InsertTreasuryEntry(ctx context.Context, e *models.TreasuryEntry) error
}

// SlashRate returns the multiplicative penalty for a bank's Nth lifetime
// offense (1-indexed): 5% first, 10% second, 20% third and beyond (§4.3.4).
func SlashRate(offenseNumber int) float64 {
	switch {
	case offenseNumber <= 1:
		return 0.05
	case offenseNumber == 2:
		return 0.10
	default:
		return 0.20
	}
}

// Auditor drives one sampling-and-reaudit pass.
type Auditor struct {
	store       Store
	revalidator Revalidator
	fiscalYear  func(time.Time) string
}

// New builds an Auditor. fiscalYear computes the "YYYY-YYYY" label a slash
// is booked against; pass treasury.FiscalYearFor (distributor.go) in
// production wiring.
func New(store Store, revalidator Revalidator, fiscalYear func(time.Time) string) *Auditor {
	return &Auditor{store: store, revalidator: revalidator, fiscalYear: fiscalYear}
}

// BatchResult summarizes one batch's audit outcome, for logging/metrics.
type BatchResult struct {
	BatchID       string
	Sampled       bool
	Honest        []string
	Malicious     []string
	SlashedTotal  float64
}

// RunPass samples the current population, re-validates every sampled batch,
// and slashes every bank found malicious on it. A batch is sampled if a
// fair coin weighted at SampleRate lands heads, or unconditionally if any
// of its votes carry a non-empty challenged_by (§4.3.4).
func (a *Auditor) RunPass(ctx context.Context) ([]BatchResult, error) {
	batches, err := a.store.ListSampleableBatches(ctx)
	if err != nil {
		return nil, err
	}

	var results []BatchResult
	for _, b := range batches {
		votes, err := a.store.ListVotesForBatch(ctx, b.BatchID)
		if err != nil {
			return nil, err
		}
		challenged := false
		for _, v := range votes {
			if v.ChallengedBy != "" {
				challenged = true
				break
			}
		}

		sample, err := shouldSample(challenged)
		if err != nil {
			return nil, err
		}
		if !sample {
			continue
		}

		result, err := a.auditBatch(ctx, b, votes)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// auditBatch re-validates every transaction in the batch, derives the
// auditor's own verdict (the batch is valid iff every transaction in it
// re-validates), and reconciles that verdict against each bank's vote.
func (a *Auditor) auditBatch(ctx context.Context, b *models.TransactionBatch, votes []*models.BankVotingRecord) (BatchResult, error) {
	result := BatchResult{BatchID: b.BatchID, Sampled: true}

	txs, err := a.store.ListTransactionsForBatch(ctx, b.BatchID)
	if err != nil {
		return result, err
	}

	batchValid := true
	for _, t := range txs {
		valid, err := a.revalidator.Revalidate(ctx, t)
		if err != nil {
			return result, err
		}
		if !valid {
			batchValid = false
			break
		}
	}

	now := time.Now()
	fiscalYear := a.fiscalYear(now)

	for _, v := range votes {
		approved := v.Vote == models.VoteApprove
		correct := approved == batchValid
		malicious := approved && !batchValid

		var slashAmount float64
		if malicious {
			bank, err := a.store.FindBank(ctx, v.BankCode)
			if err != nil {
				return result, err
			}
			if bank == nil {
				continue
			}
			offenseNumber := bank.PenaltyCount + 1
			slashAmount = SlashRate(offenseNumber) * bank.StakeAmount

			if _, _, err := a.store.AdjustBankStake(ctx, v.BankCode, -slashAmount, 0, 1); err != nil {
				return result, err
			}
			if err := a.store.RecordPenalty(ctx, v.BankCode, slashAmount); err != nil {
				return result, err
			}
			if err := a.store.InsertTreasuryEntry(ctx, &models.TreasuryEntry{
				EntryType:    models.TreasurySlash,
				Amount:       slashAmount,
				BankCode:     v.BankCode,
				FiscalYear:   fiscalYear,
				Reason:       "approved an invalid batch",
				OffenseCount: offenseNumber,
			}); err != nil {
				return result, err
			}
			result.Malicious = append(result.Malicious, v.BankCode)
			result.SlashedTotal += slashAmount
		} else if correct {
			if _, _, err := a.store.AdjustBankStake(ctx, v.BankCode, 0, 1, 0); err != nil {
				return result, err
			}
			result.Honest = append(result.Honest, v.BankCode)
		}

		if err := a.store.MarkVoteOutcome(ctx, b.BatchID, v.BankCode, correct, malicious, slashAmount); err != nil {
			return result, err
		}
	}
	return result, nil
}

// shouldSample draws a cryptographically random decision weighted at
// SampleRate, or always samples a challenged batch regardless of the draw.
func shouldSample(challenged bool) (bool, error) {
	if challenged {
		return true, nil
	}
	const denominator = 1000
	n, err := rand.Int(rand.Reader, big.NewInt(denominator))
	if err != nil {
		return false, err
	}
	return n.Int64() < int64(SampleRate*denominator), nil
}
