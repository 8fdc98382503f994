package validation

import (
	"context"
	"testing"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

type fakeAccountStore struct {
	accounts map[int64]*models.BankAccount
}

func (f *fakeAccountStore) FindBankAccount(ctx context.Context, id int64) (*models.BankAccount, error) {
	return f.accounts[id], nil
}

func newAccount(id int64, balance float64) *models.BankAccount {
	return &models.BankAccount{ID: id, Balance: balance, IsActive: true}
}

func TestRevalidate_ApprovesSufficientBalance(t *testing.T) {
	receiverID := int64(2)
	store := &fakeAccountStore{accounts: map[int64]*models.BankAccount{
		1: newAccount(1, 1000),
		2: newAccount(2, 0),
	}}
	r := New(store)

	ok, err := r.Revalidate(context.Background(), &models.Transaction{
		SenderAccountID: 1, ReceiverAccountID: &receiverID, Amount: 100, Fee: 1.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid transaction to revalidate true")
	}
}

func TestRevalidate_RejectsInsufficientBalance(t *testing.T) {
	store := &fakeAccountStore{accounts: map[int64]*models.BankAccount{1: newAccount(1, 50)}}
	r := New(store)

	ok, err := r.Revalidate(context.Background(), &models.Transaction{SenderAccountID: 1, Amount: 100, Fee: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected insufficient balance to revalidate false")
	}
}

func TestRevalidate_RejectsFrozenSender(t *testing.T) {
	sender := newAccount(1, 1000)
	sender.IsFrozen = true
	store := &fakeAccountStore{accounts: map[int64]*models.BankAccount{1: sender}}
	r := New(store)

	ok, err := r.Revalidate(context.Background(), &models.Transaction{SenderAccountID: 1, Amount: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected frozen sender to revalidate false")
	}
}

func TestRevalidate_RejectsUnknownReceiver(t *testing.T) {
	receiverID := int64(99)
	store := &fakeAccountStore{accounts: map[int64]*models.BankAccount{1: newAccount(1, 1000)}}
	r := New(store)

	ok, err := r.Revalidate(context.Background(), &models.Transaction{
		SenderAccountID: 1, ReceiverAccountID: &receiverID, Amount: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected unknown receiver to revalidate false")
	}
}

func TestRevalidate_RejectsNonPositiveAmount(t *testing.T) {
	store := &fakeAccountStore{accounts: map[int64]*models.BankAccount{1: newAccount(1, 1000)}}
	r := New(store)

	ok, err := r.Revalidate(context.Background(), &models.Transaction{SenderAccountID: 1, Amount: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected zero amount to revalidate false")
	}
}
