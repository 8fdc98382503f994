// Package pos drives Byzantine-fault-tolerant bank voting on the
// private chain: domestic batches need 10-of-12 consortium approval,
// travel transfers need unanimous 2-of-2 approval from the sender's
// and receiver's banks only.
package pos

import (
	"context"

	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// ConsortiumSize is the number of banks defined at genesis (§3 Bank).
const ConsortiumSize = 12

// DomesticApprovalThreshold is 10 of the original 12 — stronger than
// classic BFT's floor(2n/3)+1=9, per the open-questions resolution.
const DomesticApprovalThreshold = 10

// Validator is the per-bank re-validation contract each consortium
// member runs independently against a transaction before voting.
type Validator interface {
	// Revalidate re-checks sender/receiver accounts and balance exactly
	// as the transaction engine did at creation time, but against
	// present state. Returns true if the transaction still checks out.
	Revalidate(ctx context.Context, t *models.Transaction) (bool, error)
}

// Store is the persistence contract the voting driver needs.
type Store interface {
	RecordVote(ctx context.Context, v *models.BankVotingRecord) error
	ListVotesForBatch(ctx context.Context, batchID string) ([]*models.BankVotingRecord, error)
	FinalizeBatch(ctx context.Context, batchID string, status models.TransactionBatchStatus, publicIdx, privateIdx *int64) error
}

// Driver runs one consensus pass over a mined batch: every active
// consortium bank (domestic) or the two endpoint banks (travel)
// re-validates independently and casts one vote.
type Driver struct {
	store      Store
	validators map[string]Validator // bank_code -> validator
}

// NewDriver builds a Driver over the given bank_code -> Validator map.
func NewDriver(store Store, validators map[string]Validator) *Driver {
	return &Driver{store: store, validators: validators}
}

// VoteResult is the outcome of one bank's independent re-validation.
type VoteResult struct {
	BankCode string
	Vote     models.Vote
}

// RunDomestic has every bank in activeBanks cast a vote on every
// transaction in the batch, recording one APPROVE/REJECT per bank per
// batch: a bank votes APPROVE only if every transaction it re-validated
// passed. Returns the per-bank results and whether consensus (>=10 of
// the original 12) was reached — a deactivated bank counts as an
// implicit REJECT because it never appears in activeBanks.
func (d *Driver) RunDomestic(ctx context.Context, batch *models.TransactionBatch, txs []*models.Transaction, activeBanks []string) ([]VoteResult, bool, error) {
	results := make([]VoteResult, 0, len(activeBanks))
	approvals := 0

	for _, bankCode := range activeBanks {
		validator, ok := d.validators[bankCode]
		if !ok {
			continue
		}
		vote := models.VoteApprove
		for _, t := range txs {
			valid, err := validator.Revalidate(ctx, t)
			if err != nil {
				return nil, false, err
			}
			if !valid {
				vote = models.VoteReject
				break
			}
		}
		if vote == models.VoteApprove {
			approvals++
		}
		record := &models.BankVotingRecord{BatchID: batch.BatchID, BankCode: bankCode, Vote: vote}
		if err := d.store.RecordVote(ctx, record); err != nil {
			return nil, false, err
		}
		results = append(results, VoteResult{BankCode: bankCode, Vote: vote})
	}

	achieved := approvals >= DomesticApprovalThreshold
	status := models.BatchMining
	if !achieved {
		status = models.BatchFailed
	}
	if err := d.store.FinalizeBatch(ctx, batch.BatchID, status, batch.PublicBlockIndex, nil); err != nil {
		return nil, false, err
	}
	return results, achieved, nil
}

// RunTravel requires unanimous APPROVE from exactly the sender's and
// receiver's banks.
func (d *Driver) RunTravel(ctx context.Context, batch *models.TransactionBatch, t *models.Transaction, senderBank, receiverBank string) (bool, error) {
	if !t.TransactionType.IsTravel() {
		return false, ledgererr.New(ledgererr.ConsensusFailed, "not a travel transaction")
	}

	approvals := 0
	for _, bankCode := range []string{senderBank, receiverBank} {
		validator, ok := d.validators[bankCode]
		vote := models.VoteReject
		if ok {
			valid, err := validator.Revalidate(ctx, t)
			if err != nil {
				return false, err
			}
			if valid {
				vote = models.VoteApprove
				approvals++
			}
		}
		record := &models.BankVotingRecord{BatchID: batch.BatchID, BankCode: bankCode, Vote: vote}
		if err := d.store.RecordVote(ctx, record); err != nil {
			return false, err
		}
	}
	return approvals == 2, nil
}
