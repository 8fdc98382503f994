package disclosure

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// AuditStore is the persistence contract for the hash-chained audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, eventType string, data string, prevHash, entryHash string) error
	LatestAuditHash(ctx context.Context) (string, error)
	ListAuditTrail(ctx context.Context) ([]*models.AuditLogEntry, error)
}

// AuditLog appends structured, hash-chained entries for every key
// issuance, every decryption, and every judge verification outcome.
// Tampering with any entry breaks the chain from that point forward.
type AuditLog struct {
	store AuditStore
}

// NewAuditLog builds an AuditLog.
func NewAuditLog(store AuditStore) *AuditLog {
	return &AuditLog{store: store}
}

// Append computes entryHash = sha256(prevHash + ":" + eventType + ":" +
// json(data)) and persists the record. A write failure is logged, not
// propagated — the audit log must never block the operation it is
// recording (which has already succeeded or failed on its own terms by
// the time Append is called).
func (a *AuditLog) Append(ctx context.Context, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[audit] failed to serialize %s entry: %v", eventType, err)
		return
	}
	prevHash, err := a.store.LatestAuditHash(ctx)
	if err != nil {
		log.Printf("[audit] failed to read chain tip: %v", err)
		return
	}
	entryHash := cryptoadapter.SHA256HexString(fmt.Sprintf("%s:%s:%s", prevHash, eventType, raw))
	if err := a.store.AppendAuditLog(ctx, eventType, string(raw), prevHash, entryHash); err != nil {
		log.Printf("[audit] failed to append %s entry: %v", eventType, err)
	}
}

// Verify walks the full chain and reports whether every entry's stored
// hash matches its recomputation — a broken link means the log (or an
// entry's data) was tampered with after the fact.
func (a *AuditLog) Verify(ctx context.Context) (bool, error) {
	entries, err := a.store.ListAuditTrail(ctx)
	if err != nil {
		return false, err
	}
	prevHash := ""
	for _, e := range entries {
		expected := cryptoadapter.SHA256HexString(fmt.Sprintf("%s:%s:%s", prevHash, e.EventType, e.Data))
		if expected != e.EntryHash {
			return false, nil
		}
		prevHash = e.EntryHash
	}
	return true, nil
}

// Trail returns the full audit chain in order.
func (a *AuditLog) Trail(ctx context.Context) ([]*models.AuditLogEntry, error) {
	return a.store.ListAuditTrail(ctx)
}
