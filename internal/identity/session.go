package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// SessionStore is the persistence contract the session service needs.
// Satisfied by internal/store.PostgresStore; kept narrow so the
// identity layer never reaches for a concrete database driver.
type SessionStore interface {
	FindActiveSession(ctx context.Context, userIDX string, bankAccountID int64) (*models.Session, error)
	FindSessionByID(ctx context.Context, sessionID string) (*models.Session, error)
	InsertSession(ctx context.Context, s *models.Session) error
	DeactivateSession(ctx context.Context, sessionID string) error
	ListExpiredActiveSessions(ctx context.Context, now time.Time) ([]*models.Session, error)
}

// SessionRotationHours is the default validity window (24h) per §4.1;
// overridable via SESSION_ROTATION_HOURS at startup.
const SessionRotationHours = 24

// SessionService issues and rotates the 24-hour session tokens bound to
// a (user, bank account) pair.
type SessionService struct {
	store           SessionStore
	rotationPeriod  time.Duration
}

// NewSessionService builds a SessionService. rotationPeriod is normally
// SessionRotationHours*time.Hour; tests may pass a shorter period.
func NewSessionService(store SessionStore, rotationPeriod time.Duration) *SessionService {
	return &SessionService{store: store, rotationPeriod: rotationPeriod}
}

// Issue returns the user's current active, unexpired session for
// (userIDX, bankCode, bankAccountID), reusing it if present, or creates
// a new one. A session is bound to exactly one bank account — it
// never grants cross-bank authority.
func (s *SessionService) Issue(ctx context.Context, userIDX, bankCode string, bankAccountID int64) (*models.Session, error) {
	existing, err := s.store.FindActiveSession(ctx, userIDX, bankAccountID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive && time.Now().Before(existing.ExpiresAt) {
		return existing, nil
	}
	if existing != nil {
		// Expired but still marked active: rotate it out before minting a
		// successor, so at most one active unexpired session ever exists.
		if err := s.store.DeactivateSession(ctx, existing.SessionID); err != nil {
			return nil, err
		}
	}

	sessionID, expiresAt, err := s.mint(userIDX, bankCode, bankAccountID, nil)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		SessionID:     sessionID,
		UserIDX:       userIDX,
		BankCode:      bankCode,
		BankAccountID: bankAccountID,
		ExpiresAt:     expiresAt,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// mint generates session_id = "SESSION_" || hex(sha256("IDX:BANK:ACCOUNT_ID:TIMESTAMP_MS:SALT"))
// with a fresh 32-byte random salt, and computes the expiry.
func (s *SessionService) mint(userIDX, bankCode string, bankAccountID int64, customSalt []byte) (string, time.Time, error) {
	salt := customSalt
	if salt == nil {
		var err error
		salt, err = cryptoadapter.SecureRandomBytes(32)
		if err != nil {
			return "", time.Time{}, err
		}
	}
	timestampMs := time.Now().UnixMilli()
	combined := fmt.Sprintf("%s:%s:%d:%d:%s", userIDX, bankCode, bankAccountID, timestampMs, hex.EncodeToString(salt))
	sessionID := "SESSION_" + cryptoadapter.SHA256HexString(combined)
	expiresAt := time.Now().Add(s.rotationPeriod)
	return sessionID, expiresAt, nil
}

// Validate looks up sessionID and confirms it belongs to userIDX, is
// active, and has not expired. A failing lookup or an expired session
// is refused with no side effects, per §4.1's failure semantics.
func (s *SessionService) Validate(ctx context.Context, sessionID, userIDX string) (*models.Session, error) {
	session, err := s.store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserIDX != userIDX {
		return nil, ledgererr.New(ledgererr.UnknownSession, sessionID)
	}
	if !session.IsActive || IsExpired(session.ExpiresAt) {
		return nil, ledgererr.New(ledgererr.SessionExpired, sessionID)
	}
	return session, nil
}

// RotateExpired scans for active sessions past expiry, deactivates
// each, and mints a successor bound to the same (user, bank account).
// Intended to run on a ticker, decoupling rotation from user activity.
func (s *SessionService) RotateExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredActiveSessions(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	rotated := 0
	for _, old := range expired {
		if err := s.store.DeactivateSession(ctx, old.SessionID); err != nil {
			log.Printf("[SessionRotator] failed to deactivate %s: %v", old.SessionID, err)
			continue
		}
		sessionID, expiresAt, err := s.mint(old.UserIDX, old.BankCode, old.BankAccountID, nil)
		if err != nil {
			log.Printf("[SessionRotator] failed to mint successor for %s: %v", old.UserIDX, err)
			continue
		}
		successor := &models.Session{
			SessionID:     sessionID,
			UserIDX:       old.UserIDX,
			BankCode:      old.BankCode,
			BankAccountID: old.BankAccountID,
			ExpiresAt:     expiresAt,
			IsActive:      true,
			CreatedAt:     time.Now(),
		}
		if err := s.store.InsertSession(ctx, successor); err != nil {
			log.Printf("[SessionRotator] failed to persist successor for %s: %v", old.UserIDX, err)
			continue
		}
		rotated++
	}
	return rotated, nil
}

// RunRotationLoop ticks RotateExpired every interval until ctx is
// cancelled — the session-rotation worker in the concurrency model.
func (s *SessionService) RunRotationLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.RotateExpired(ctx)
			if err != nil {
				log.Printf("[SessionRotator] rotation pass failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[SessionRotator] rotated %d expired sessions", n)
			}
		}
	}
}

// IsExpired reports whether expiresAt is in the past.
func IsExpired(expiresAt time.Time) bool {
	return time.Now().After(expiresAt)
}
