// Package ledger implements the transaction lifecycle state machine: it
// validates a transfer intent, computes fees, assigns a replay-proof
// sequence number and content hash, and settles balances atomically
// once the transfer has cleared consensus.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/internal/eventbus"
	"github.com/rawblock/idx-consortium-ledger/internal/identity"
	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// Store is the persistence contract the transaction engine needs.
// Satisfied by internal/store.PostgresStore.
type Store interface {
	FindBankAccount(ctx context.Context, id int64) (*models.BankAccount, error)
	CreateTransactionWithLocks(ctx context.Context, t *models.Transaction, debitSender bool, creditReceiverID *int64, creditAmount float64) (int64, error)
	FindTransactionByHash(ctx context.Context, hash string) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, hash string, status models.TransactionStatus) error
	RejectTransaction(ctx context.Context, t *models.Transaction) error
	CompleteTransaction(ctx context.Context, hash string) error
	ListPendingTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)
	ListFlaggedTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)
	SettleTransaction(ctx context.Context, hash string, senderAccountID, receiverAccountID int64, amount, fee float64, bankShares map[string]float64) (bool, error)
}

// Engine drives the transaction lifecycle described in the component
// design's state machine: PENDING/AWAITING_RECEIVER through MINING,
// PUBLIC_CONFIRMED, PRIVATE_CONFIRMED to COMPLETED or FAILED.
type Engine struct {
	store    Store
	sessions *identity.SessionService
	fees     FeeRates
	bus      *eventbus.Bus
}

// New builds an Engine. bus may be nil in tests that don't assert on events.
func New(store Store, sessions *identity.SessionService, fees FeeRates, bus *eventbus.Bus) *Engine {
	return &Engine{store: store, sessions: sessions, fees: fees, bus: bus}
}

func (e *Engine) publish(name string, data any) {
	if e.bus != nil {
		e.bus.Publish(name, data)
	}
}

// CreateParams describes a sender-initiated transfer intent.
type CreateParams struct {
	SenderSessionID   string
	SenderIDX         string
	SenderAccountID   int64
	ReceiverIDX       string
	ReceiverAccountID *int64 // nil when the receiver has not yet chosen a destination bank
	ReceiverSessionID string
	Amount            float64
	Type              models.TransactionType
}

// Create validates the sender's session and account, computes fees,
// and persists a new transaction. No balances move here — settlement
// happens only after consensus. When ReceiverAccountID is nil the
// transaction starts AWAITING_RECEIVER; otherwise it starts PENDING.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*models.Transaction, error) {
	if p.Amount <= 0 {
		return nil, ledgererr.New(ledgererr.InsufficientBalance, "amount must be positive")
	}

	session, err := e.sessions.Validate(ctx, p.SenderSessionID, p.SenderIDX)
	if err != nil {
		return nil, err
	}
	if session.BankAccountID != p.SenderAccountID {
		return nil, ledgererr.New(ledgererr.UnknownSession, "session does not authorize this account")
	}

	account, err := e.store.FindBankAccount(ctx, p.SenderAccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ledgererr.New(ledgererr.UnknownAccount, "sender account not found")
	}
	if account.IsFrozen {
		return nil, ledgererr.New(ledgererr.AccountFrozen, "sender account is frozen")
	}

	minerFee, bankFee, fee := e.fees.Compute(p.Amount)
	if account.Balance < p.Amount+fee {
		return nil, ledgererr.New(ledgererr.InsufficientBalance, "balance below amount plus fee")
	}

	now := time.Now()
	hash := transactionHash(p.SenderIDX, p.ReceiverIDX, p.Amount, now)
	nullifier, err := nullifierFor(hash, p.SenderSessionID)
	if err != nil {
		return nil, err
	}

	status := models.StatusPending
	if p.ReceiverAccountID == nil {
		status = models.StatusAwaitingReceiver
	}

	t := &models.Transaction{
		TransactionHash:   hash,
		SenderAccountID:   p.SenderAccountID,
		ReceiverAccountID: p.ReceiverAccountID,
		SenderIDX:         p.SenderIDX,
		ReceiverIDX:       p.ReceiverIDX,
		SenderSessionID:   p.SenderSessionID,
		ReceiverSessionID: p.ReceiverSessionID,
		Amount:            p.Amount,
		Fee:               fee,
		MinerFee:          minerFee,
		BankFee:           bankFee,
		TransactionType:   p.Type,
		Status:            status,
		Commitment:        commitmentFor(hash, nullifier),
		Nullifier:         nullifier,
		CreatedAt:         now,
	}

	seq, err := e.store.CreateTransactionWithLocks(ctx, t, false, nil, 0)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.DuplicateTransaction, "transaction creation failed", err)
	}
	t.SequenceNumber = seq

	e.publish(eventbus.TransactionPending, t)
	return t, nil
}

// ConfirmReceiver attaches a chosen receiver account to a transaction
// still AWAITING_RECEIVER, moving it to PENDING.
func (e *Engine) ConfirmReceiver(ctx context.Context, hash string, receiverAccountID int64, receiverSessionID string) (*models.Transaction, error) {
	t, err := e.store.FindTransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ledgererr.New(ledgererr.UnknownAccount, "transaction not found")
	}
	if t.Status != models.StatusAwaitingReceiver {
		return nil, ledgererr.New(ledgererr.DuplicateTransaction, "transaction is not awaiting a receiver")
	}

	receiver, err := e.store.FindBankAccount(ctx, receiverAccountID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, ledgererr.New(ledgererr.UnknownAccount, "receiver account not found")
	}
	if receiver.IsFrozen {
		return nil, ledgererr.New(ledgererr.AccountFrozen, "receiver account is frozen")
	}

	t.ReceiverAccountID = &receiverAccountID
	t.ReceiverSessionID = receiverSessionID
	t.Status = models.StatusPending
	if err := e.store.UpdateTransactionStatus(ctx, hash, models.StatusPending); err != nil {
		return nil, err
	}
	e.publish(eventbus.TransactionConfirmed, t)
	return t, nil
}

// Reject transitions a PENDING or AWAITING_RECEIVER transaction to the
// terminal REJECTED state. No balance is held before settlement, so
// none is moved.
func (e *Engine) Reject(ctx context.Context, hash string) error {
	t, err := e.store.FindTransactionByHash(ctx, hash)
	if err != nil {
		return err
	}
	if t == nil {
		return ledgererr.New(ledgererr.UnknownAccount, "transaction not found")
	}
	if t.Status != models.StatusPending && t.Status != models.StatusAwaitingReceiver {
		return ledgererr.New(ledgererr.DuplicateTransaction, "transaction is not in a rejectable state")
	}
	if err := e.store.RejectTransaction(ctx, t); err != nil {
		return err
	}
	e.publish(eventbus.TransactionRejected, t)
	return nil
}

// ListPendingForReceiver returns pending transactions awaiting a bank's
// account-level confirmation or settlement.
func (e *Engine) ListPendingForReceiver(ctx context.Context, limit int) ([]*models.Transaction, error) {
	return e.store.ListPendingTransactions(ctx, limit)
}

// GetByHash returns a transaction by its content hash.
func (e *Engine) GetByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	return e.store.FindTransactionByHash(ctx, hash)
}

// ListFlagged returns transactions the anomaly detector marked for
// investigation.
func (e *Engine) ListFlagged(ctx context.Context, limit int) ([]*models.Transaction, error) {
	return e.store.ListFlaggedTransactions(ctx, limit)
}

// Settle performs final balance movement for a transaction that has
// cleared consensus: bankShares maps bank_code to its slice of
// bank_fee (already apportioned by the caller per the domestic 12-way
// or travel 2-way split). On success the transaction becomes COMPLETED
// and a transaction_completed event fires; if the sender's balance
// recheck fails the caller should mark the transaction FAILED via
// MarkFailed — no balances move in that case.
func (e *Engine) Settle(ctx context.Context, t *models.Transaction, bankShares map[string]float64) (bool, error) {
	if t.ReceiverAccountID == nil {
		return false, ledgererr.New(ledgererr.UnknownAccount, "transaction has no receiver account")
	}
	ok, err := e.store.SettleTransaction(ctx, t.TransactionHash, t.SenderAccountID, *t.ReceiverAccountID, t.Amount, t.Fee, bankShares)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	t.Status = models.StatusCompleted
	e.publish(eventbus.TransactionCompleted, t)
	return true, nil
}

// MarkFailed transitions a transaction that lost the settlement race
// (or failed bank re-validation) to the terminal FAILED state. The
// miner that already mined the batch is never unpaid for this.
func (e *Engine) MarkFailed(ctx context.Context, hash string) error {
	return e.store.UpdateTransactionStatus(ctx, hash, models.StatusFailed)
}

// transactionHash implements the canonical hashing rule:
// sha256("sender_idx:receiver_idx:amount:unix_seconds").
func transactionHash(senderIDX, receiverIDX string, amount float64, at time.Time) string {
	payload := fmt.Sprintf("%s:%s:%v:%d", senderIDX, receiverIDX, amount, at.Unix())
	return cryptoadapter.SHA256HexString(payload)
}

// nullifierFor derives a per-transaction double-spend token from the
// content hash and a caller-unpredictable component (the sender's
// current session id), salted with fresh randomness so concurrent
// creations of an otherwise-identical transfer never collide.
func nullifierFor(hash, senderSessionID string) (string, error) {
	salt, err := cryptoadapter.SecureRandomBytes(16)
	if err != nil {
		return "", err
	}
	return cryptoadapter.SHA256HexString(fmt.Sprintf("%s:%s:%x", hash, senderSessionID, salt)), nil
}

// commitmentFor fixes a transaction's content on the public chain
// without revealing it: a hash over the public hash and the secret
// nullifier, so the commitment is unpredictable without knowing both.
func commitmentFor(hash, nullifier string) string {
	return cryptoadapter.SHA256HexString(hash + ":" + nullifier)
}
