package pow

import (
	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// ValidateBlock re-checks a persisted block against the four
// conditions in the component design: difficulty, recomputed hash,
// clock skew, and tip linkage. txInBatch reports whether a transaction
// hash belongs to the batch this block claims to seal, in status
// MINING or PENDING.
func ValidateBlock(b *models.BlockPublic, tipHash string, difficulty int, txInBatch func(hash string) bool) error {
	body := BlockBody{
		Index:        b.BlockIndex,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
		PreviousHash: b.PreviousHash,
		Nonce:        b.Nonce,
	}
	recomputed := body.Hash()

	if !MeetsDifficulty(recomputed, difficulty) {
		return ledgererr.New(ledgererr.BlockInvalid, "hash does not meet difficulty")
	}
	if recomputed != b.BlockHash {
		return ledgererr.New(ledgererr.BlockInvalid, "stored hash does not match recomputation")
	}
	if !withinClockSkew(b.Timestamp) {
		return ledgererr.New(ledgererr.BlockInvalid, "timestamp outside ±2h clock skew")
	}
	if tipHash != "" && b.PreviousHash != tipHash {
		return ledgererr.New(ledgererr.BlockInvalid, "previous_hash does not match chain tip")
	}
	for _, hash := range b.Transactions {
		if !txInBatch(hash) {
			return ledgererr.New(ledgererr.BlockInvalid, "transaction hash not found in claimed batch")
		}
	}
	return nil
}
