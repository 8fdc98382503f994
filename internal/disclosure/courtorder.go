package disclosure

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// OrderValidity is the hard 24h window a court order remains executable.
const OrderValidity = 24 * time.Hour

// Store is the persistence contract the disclosure service needs.
type Store interface {
	FindJudge(ctx context.Context, judgeID string) (*models.Judge, error)
	CreateCourtOrder(ctx context.Context, o *models.CourtOrder) error
	FindCourtOrder(ctx context.Context, orderID string) (*models.CourtOrder, error)
	ListCourtOrders(ctx context.Context) ([]*models.CourtOrder, error)
	MarkCourtOrderExecuted(ctx context.Context, orderID string, accessGranted bool) error
	ExpireCourtOrder(ctx context.Context, orderID string) error
	FindTransactionsForIDX(ctx context.Context, idx string) ([]*models.Transaction, error)
	FreezeAccountsForIDX(ctx context.Context, idx string) error
}

// Service drives the court-ordered disclosure workflow.
type Service struct {
	store Store
	km    *cryptoadapter.KeyManager
	audit *AuditLog
}

// NewService builds a disclosure Service.
func NewService(store Store, km *cryptoadapter.KeyManager, audit *AuditLog) *Service {
	return &Service{store: store, km: km, audit: audit}
}

// SubmitParams describes a new disclosure request.
type SubmitParams struct {
	JudgeID    string
	TargetIDX  string
	Reason     string
	CaseNumber string
	FreezeNow  bool
}

// Submit verifies the issuing judge is whitelisted and active, files a
// PENDING order with a 24h expiry, and optionally freezes the target's
// accounts immediately.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*models.CourtOrder, error) {
	judge, err := s.store.FindJudge(ctx, p.JudgeID)
	if err != nil {
		return nil, err
	}
	if judge == nil {
		s.audit.Append(ctx, "JUDGE_VERIFICATION_FAILED", map[string]string{"judgeId": p.JudgeID, "reason": "unknown"})
		return nil, ledgererr.New(ledgererr.UnknownJudge, p.JudgeID)
	}
	if !judge.IsActive {
		s.audit.Append(ctx, "JUDGE_VERIFICATION_FAILED", map[string]string{"judgeId": p.JudgeID, "reason": "inactive"})
		return nil, ledgererr.New(ledgererr.JudgeInactive, p.JudgeID)
	}

	now := time.Now()
	order := &models.CourtOrder{
		OrderID:    "ORDER_" + cryptoadapter.SHA256HexString(fmt.Sprintf("%s:%s:%d", p.JudgeID, p.TargetIDX, now.UnixNano())),
		JudgeID:    p.JudgeID,
		TargetIDX:  p.TargetIDX,
		Reason:     p.Reason,
		CaseNumber: p.CaseNumber,
		Status:     models.OrderPending,
		IssuedAt:   now,
		ExpiresAt:  now.Add(OrderValidity),
	}
	if err := s.store.CreateCourtOrder(ctx, order); err != nil {
		return nil, err
	}
	if p.FreezeNow {
		if err := s.store.FreezeAccountsForIDX(ctx, p.TargetIDX); err != nil {
			return nil, err
		}
	}

	s.audit.Append(ctx, "COURT_ORDER_FILED", map[string]string{"orderId": order.OrderID, "judgeId": p.JudgeID, "targetIdx": p.TargetIDX})
	return order, nil
}

// Execute reconstructs the master key, scans every transaction touching
// the order's target IDX, and decrypts each that carries stored
// encrypted_data and encrypted_key; transactions without them are
// skipped. A failing decryption is
// logged and skipped rather than aborting the whole execution — a
// tampered record must not hide the rest of a legitimate disclosure.
func (s *Service) Execute(ctx context.Context, orderID string) ([]models.DecryptedTransactionRecord, error) {
	order, err := s.store.FindCourtOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ledgererr.New(ledgererr.UnknownJudge, "order not found")
	}
	if time.Now().After(order.ExpiresAt) {
		if order.Status == models.OrderPending {
			_ = s.store.ExpireCourtOrder(ctx, orderID)
		}
		s.audit.Append(ctx, "COURT_ORDER_EXPIRED", map[string]string{"orderId": orderID})
		return nil, ledgererr.New(ledgererr.OrderExpired, orderID)
	}

	rotated, err := IssueCompanyKeyForOrder(s.km, order.IssuedAt)
	if err != nil {
		return nil, err
	}
	if rotated {
		s.audit.Append(ctx, "KEY_GENERATION", map[string]string{"orderId": orderID, "keyType": cryptoadapter.CompanyKey})
	}

	masterKey, err := ReconstructMasterKey(s.km)
	if err != nil {
		return nil, err
	}

	txs, err := s.store.FindTransactionsForIDX(ctx, order.TargetIDX)
	if err != nil {
		return nil, err
	}

	var records []models.DecryptedTransactionRecord
	for _, t := range txs {
		if t.EncryptedData == "" || t.EncryptedKey == "" {
			continue
		}
		payload, err := DecryptTransaction(masterKey, t.EncryptedData, t.EncryptedKey)
		if err != nil {
			s.audit.Append(ctx, "DECRYPTION_FAILED", map[string]string{"orderId": orderID, "transactionHash": t.TransactionHash})
			continue
		}
		records = append(records, models.DecryptedTransactionRecord{
			TransactionHash: t.TransactionHash,
			SenderIDX:       payload.SenderIDX,
			ReceiverIDX:     payload.ReceiverIDX,
			Amount:          payload.Amount,
			Timestamp:       time.Unix(payload.Timestamp, 0),
		})
		s.audit.Append(ctx, "COURT_ORDER_ACCESS", map[string]string{"orderId": orderID, "transactionHash": t.TransactionHash})
	}

	if err := s.store.MarkCourtOrderExecuted(ctx, orderID, true); err != nil {
		return nil, err
	}
	return records, nil
}

// List returns every filed order.
func (s *Service) List(ctx context.Context) ([]*models.CourtOrder, error) {
	return s.store.ListCourtOrders(ctx)
}
