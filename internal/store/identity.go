package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// CreateUser inserts a new anonymous identity. The PAN card is stored
// only so IDX collisions can be investigated under a court order; it is
// never returned by any read path outside internal/disclosure.
func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	sql := `
		INSERT INTO users (idx, pan_card, full_name, balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idx) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, sql, u.IDX, u.PANCard, u.FullName, u.Balance)
	return err
}

// CreateBankAccount opens a new account for a user at a bank.
func (s *PostgresStore) CreateBankAccount(ctx context.Context, a *models.BankAccount) (int64, error) {
	sql := `
		INSERT INTO bank_accounts (user_idx, bank_code, account_number, balance, is_active, is_frozen, is_business)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := s.pool.QueryRow(ctx, sql, a.UserIDX, a.BankCode, a.AccountNumber, a.Balance, a.IsActive, a.IsFrozen, a.IsBusiness).Scan(&id)
	return id, err
}

// FindBankAccount loads an account by id.
func (s *PostgresStore) FindBankAccount(ctx context.Context, id int64) (*models.BankAccount, error) {
	sql := `
		SELECT id, user_idx, bank_code, account_number, balance, is_active, is_frozen, is_business, created_at
		FROM bank_accounts WHERE id = $1
	`
	a := &models.BankAccount{}
	err := s.pool.QueryRow(ctx, sql, id).Scan(
		&a.ID, &a.UserIDX, &a.BankCode, &a.AccountNumber, &a.Balance, &a.IsActive, &a.IsFrozen, &a.IsBusiness, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindActiveSession returns the current active session for (userIDX,
// bankAccountID), or nil if none exists. Satisfies identity.SessionStore.
func (s *PostgresStore) FindActiveSession(ctx context.Context, userIDX string, bankAccountID int64) (*models.Session, error) {
	sql := `
		SELECT session_id, user_idx, bank_code, bank_account_id, expires_at, is_active, created_at
		FROM sessions
		WHERE user_idx = $1 AND bank_account_id = $2 AND is_active = true
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.scanSession(s.pool.QueryRow(ctx, sql, userIDX, bankAccountID))
}

// FindSessionByID looks up a session by its opaque id.
func (s *PostgresStore) FindSessionByID(ctx context.Context, sessionID string) (*models.Session, error) {
	sql := `
		SELECT session_id, user_idx, bank_code, bank_account_id, expires_at, is_active, created_at
		FROM sessions WHERE session_id = $1
	`
	return s.scanSession(s.pool.QueryRow(ctx, sql, sessionID))
}

func (s *PostgresStore) scanSession(row pgx.Row) (*models.Session, error) {
	sess := &models.Session{}
	err := row.Scan(&sess.SessionID, &sess.UserIDX, &sess.BankCode, &sess.BankAccountID, &sess.ExpiresAt, &sess.IsActive, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// InsertSession persists a freshly minted session.
func (s *PostgresStore) InsertSession(ctx context.Context, sess *models.Session) error {
	sql := `
		INSERT INTO sessions (session_id, user_idx, bank_code, bank_account_id, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, sql, sess.SessionID, sess.UserIDX, sess.BankCode, sess.BankAccountID, sess.ExpiresAt, sess.IsActive, sess.CreatedAt)
	return err
}

// DeactivateSession flips is_active off without deleting the row, so the
// session history remains available for disclosure.
func (s *PostgresStore) DeactivateSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET is_active = false WHERE session_id = $1`, sessionID)
	return err
}

// ListExpiredActiveSessions returns every session still marked active
// whose expiry has passed, for the rotation worker to sweep.
func (s *PostgresStore) ListExpiredActiveSessions(ctx context.Context, now time.Time) ([]*models.Session, error) {
	sql := `
		SELECT session_id, user_idx, bank_code, bank_account_id, expires_at, is_active, created_at
		FROM sessions WHERE is_active = true AND expires_at < $1
	`
	rows, err := s.pool.Query(ctx, sql, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess := &models.Session{}
		if err := rows.Scan(&sess.SessionID, &sess.UserIDX, &sess.BankCode, &sess.BankAccountID, &sess.ExpiresAt, &sess.IsActive, &sess.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// FindRecipientByNickname satisfies identity.RecipientStore.
func (s *PostgresStore) FindRecipientByNickname(ctx context.Context, ownerIDX, nickname string) (*models.Recipient, error) {
	sql := `
		SELECT owner_idx, recipient_idx, nickname, COALESCE(current_session_id, ''), session_expires_at, is_active
		FROM recipients WHERE owner_idx = $1 AND nickname = $2
	`
	r := &models.Recipient{}
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, sql, ownerIDX, nickname).Scan(
		&r.OwnerIDX, &r.RecipientIDX, &r.Nickname, &r.CurrentSessionID, &expiresAt, &r.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt != nil {
		r.SessionExpiresAt = *expiresAt
	}
	return r, nil
}

// UpsertRecipient inserts or updates a nickname binding.
func (s *PostgresStore) UpsertRecipient(ctx context.Context, r *models.Recipient) error {
	sql := `
		INSERT INTO recipients (owner_idx, recipient_idx, nickname, current_session_id, session_expires_at, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (owner_idx, nickname) DO UPDATE
		SET recipient_idx = EXCLUDED.recipient_idx,
		    current_session_id = EXCLUDED.current_session_id,
		    session_expires_at = EXCLUDED.session_expires_at,
		    is_active = EXCLUDED.is_active
	`
	var expiresAt *time.Time
	if !r.SessionExpiresAt.IsZero() {
		expiresAt = &r.SessionExpiresAt
	}
	_, err := s.pool.Exec(ctx, sql, r.OwnerIDX, r.RecipientIDX, r.Nickname, r.CurrentSessionID, expiresAt, r.IsActive)
	return err
}
