package pow

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// MaxBatchSize is the upper bound on transactions per batch (§4.3.1).
const MaxBatchSize = 100

// BatchStore is the persistence contract the batcher needs.
type BatchStore interface {
	ListPendingTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)
	CreateBatch(ctx context.Context, b *models.TransactionBatch) error
	SetBatchMerkleRoot(ctx context.Context, batchID, merkleRoot string, tree [][]string) error
	AssignTransactionsToBatch(ctx context.Context, batchID string, start, end int64) error
}

// Batcher groups pending transactions by contiguous sequence_number
// range into batches of at most MaxBatchSize, sealing each with a
// Merkle root over the transactions' canonical records.
type Batcher struct {
	store BatchStore
}

// NewBatcher builds a Batcher.
func NewBatcher(store BatchStore) *Batcher {
	return &Batcher{store: store}
}

// BuildNext pulls up to MaxBatchSize pending transactions (ordered by
// sequence_number) and seals them into one new batch in READY status.
// Returns nil, nil if there is nothing pending.
func (b *Batcher) BuildNext(ctx context.Context) (*models.TransactionBatch, error) {
	pending, err := b.store.ListPendingTransactions(ctx, MaxBatchSize)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	start := pending[0].SequenceNumber
	end := pending[len(pending)-1].SequenceNumber
	batchID := "BATCH_" + cryptoadapter.SHA256HexString(fmt.Sprintf("%d:%d:%d", start, end, time.Now().UnixNano()))

	batch := &models.TransactionBatch{
		BatchID:          batchID,
		SequenceStart:    start,
		SequenceEnd:      end,
		TransactionCount: len(pending),
		Status:           models.BatchBuilding,
		CreatedAt:        time.Now(),
	}
	if err := b.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	leaves := make([]string, len(pending))
	hashes := make([]string, len(pending))
	for i, t := range pending {
		leaves[i] = canonicalRecord(t)
		hashes[i] = t.TransactionHash
	}
	root, tree := MerkleTree(leaves)
	if err := b.store.SetBatchMerkleRoot(ctx, batchID, root, tree); err != nil {
		return nil, err
	}
	if err := b.store.AssignTransactionsToBatch(ctx, batchID, start, end); err != nil {
		return nil, err
	}

	batch.MerkleRoot = root
	batch.Status = models.BatchReady
	batch.TransactionHashes = hashes
	return batch, nil
}

// canonicalRecord is the transaction's canonical representation for
// Merkle leaf hashing: the same sender:receiver:amount:timestamp tuple
// used for its own content hash, so a forged Merkle leaf would also
// have to forge the transaction's own hash.
func canonicalRecord(t *models.Transaction) string {
	return fmt.Sprintf("%s:%s:%v:%d", t.SenderIDX, t.ReceiverIDX, t.Amount, t.CreatedAt.Unix())
}
