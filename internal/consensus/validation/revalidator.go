// Package validation implements the single re-validation check every
// consortium bank and the RBI auditor run independently against a
// transaction before casting a vote or a verdict (§4.3.3, §4.3.4): sender
// account exists and is not frozen, receiver account exists and is not
// frozen, and the sender's current balance still covers amount+fee.
package validation

import (
	"context"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// AccountStore is the read path every independent re-validator needs.
type AccountStore interface {
	FindBankAccount(ctx context.Context, id int64) (*models.BankAccount, error)
}

// Revalidator is a single implementation of the re-validation check shared
// by every bank's vote and the RBI auditor's verdict — a bank's and the
// RBI's views differ only in which rows their own read sees, never in the
// rule applied.
type Revalidator struct {
	store AccountStore
}

// New builds a Revalidator.
func New(store AccountStore) *Revalidator {
	return &Revalidator{store: store}
}

// Revalidate re-runs the transaction engine's creation-time checks against
// present state.
func (r *Revalidator) Revalidate(ctx context.Context, t *models.Transaction) (bool, error) {
	if t.Amount <= 0 {
		return false, nil
	}

	sender, err := r.store.FindBankAccount(ctx, t.SenderAccountID)
	if err != nil {
		return false, err
	}
	if sender == nil || sender.IsFrozen || !sender.IsActive {
		return false, nil
	}
	if sender.Balance < t.Amount+t.Fee {
		return false, nil
	}

	if t.ReceiverAccountID != nil {
		receiver, err := r.store.FindBankAccount(ctx, *t.ReceiverAccountID)
		if err != nil {
			return false, err
		}
		if receiver == nil || receiver.IsFrozen || !receiver.IsActive {
			return false, nil
		}
	}

	return true, nil
}
