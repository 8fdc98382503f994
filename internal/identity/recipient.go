package identity

import (
	"context"

	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// RecipientStore is the persistence contract for nickname-addressed
// counterparties.
type RecipientStore interface {
	FindRecipientByNickname(ctx context.Context, ownerIDX, nickname string) (*models.Recipient, error)
	UpsertRecipient(ctx context.Context, r *models.Recipient) error
}

// RecipientService lets a sender address a counterparty by a memorable
// nickname instead of exposing the recipient's IDX at the call site.
// Grounded on the Python recipient_service's per-owner nickname
// uniqueness invariant (§3 Recipient).
type RecipientService struct {
	store    RecipientStore
	sessions *SessionService
}

// NewRecipientService builds a RecipientService.
func NewRecipientService(store RecipientStore, sessions *SessionService) *RecipientService {
	return &RecipientService{store: store, sessions: sessions}
}

// AddRecipient binds nickname -> recipientIDX for ownerIDX. Re-adding
// the same nickname updates the binding (nickname is unique per owner,
// not globally).
func (r *RecipientService) AddRecipient(ctx context.Context, ownerIDX, recipientIDX, nickname string) (*models.Recipient, error) {
	rec := &models.Recipient{
		OwnerIDX:     ownerIDX,
		RecipientIDX: recipientIDX,
		Nickname:     nickname,
		IsActive:     true,
	}
	if err := r.store.UpsertRecipient(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ResolveRecipient looks up the IDX bound to a nickname for ownerIDX.
func (r *RecipientService) ResolveRecipient(ctx context.Context, ownerIDX, nickname string) (string, error) {
	rec, err := r.store.FindRecipientByNickname(ctx, ownerIDX, nickname)
	if err != nil {
		return "", err
	}
	if rec == nil || !rec.IsActive {
		return "", ledgererr.New(ledgererr.UnknownRecipient, nickname)
	}
	return rec.RecipientIDX, nil
}

// RefreshRecipientSession rebinds a recipient's current_session_id and
// session_expires_at after the underlying bank-account session rotates,
// so nickname lookups always resolve to a live session.
func (r *RecipientService) RefreshRecipientSession(ctx context.Context, ownerIDX, nickname string, session *models.Session) error {
	rec, err := r.store.FindRecipientByNickname(ctx, ownerIDX, nickname)
	if err != nil {
		return err
	}
	if rec == nil {
		return ledgererr.New(ledgererr.UnknownRecipient, nickname)
	}
	rec.CurrentSessionID = session.SessionID
	rec.SessionExpiresAt = session.ExpiresAt
	return r.store.UpsertRecipient(ctx, rec)
}
