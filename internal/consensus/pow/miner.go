package pow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// DefaultDifficulty is the number of leading hex zeros a block hash
// must have, overridable via POW_DIFFICULTY.
const DefaultDifficulty = 4

// yieldEvery bounds how many nonces a worker tries between cooperative
// checks of the shared tip version — long mining loops must not spin
// past a tip advance indefinitely.
const yieldEvery = 2000

// MinerStats tracks one registered miner's lifetime performance.
type MinerStats struct {
	MinerID    string
	Balance    float64
	BlocksWon  int64
	BlocksLost int64
}

// ChainStore is the persistence contract the coordinator needs for the
// public chain.
type ChainStore interface {
	LatestPublicBlock(ctx context.Context) (*models.BlockPublic, error)
	InsertPublicBlock(ctx context.Context, b *models.BlockPublic) error
	FinalizeBatch(ctx context.Context, batchID string, status models.TransactionBatchStatus, publicIdx, privateIdx *int64) error
}

// Coordinator owns the single-writer lock over the public chain tip. It
// accepts the first valid solution submitted by any registered miner
// worker racing the same candidate batch, rejects late submissions, and
// increments tipVersion on every accepted block so in-flight workers
// notice their candidate is stale without being forcibly cancelled.
type Coordinator struct {
	store      ChainStore
	difficulty int

	mu         sync.Mutex
	miners     map[string]*MinerStats
	tipVersion atomic.Int64
}

// NewCoordinator builds a Coordinator at the given difficulty.
func NewCoordinator(store ChainStore, difficulty int) *Coordinator {
	return &Coordinator{store: store, difficulty: difficulty, miners: make(map[string]*MinerStats)}
}

// RegisterMiner adds minerID to the active pool.
func (c *Coordinator) RegisterMiner(minerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.miners[minerID]; !ok {
		c.miners[minerID] = &MinerStats{MinerID: minerID}
	}
}

// UnregisterMiner removes minerID from the active pool together with
// its accumulated stats.
func (c *Coordinator) UnregisterMiner(minerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.miners, minerID)
}

// Stats returns a snapshot of one miner's stats, or nil if unknown.
func (c *Coordinator) Stats(minerID string) *MinerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.miners[minerID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// TipVersion returns the current tip version; a worker compares this
// against the version it started with to detect a stale candidate.
func (c *Coordinator) TipVersion() int64 {
	return c.tipVersion.Load()
}

// currentTip returns the chain tip's index+1 and previous hash for a
// fresh genesis or successor block.
func (c *Coordinator) currentTip(ctx context.Context) (nextIndex int64, previousHash string, err error) {
	tip, err := c.store.LatestPublicBlock(ctx)
	if err != nil {
		return 0, "", err
	}
	if tip == nil {
		return 0, "GENESIS", nil
	}
	return tip.BlockIndex + 1, tip.BlockHash, nil
}

// MineWorker runs one miner's search loop against the given batch until
// it finds a valid nonce, the context is cancelled, or the coordinator's
// tip advances out from under it (in which case it returns early with
// ok=false so the caller re-reads the tip and restarts against the new
// candidate).
func (c *Coordinator) MineWorker(ctx context.Context, minerID string, batch *models.TransactionBatch) (body BlockBody, ok bool, err error) {
	nextIndex, previousHash, err := c.currentTip(ctx)
	if err != nil {
		return BlockBody{}, false, err
	}
	startVersion := c.tipVersion.Load()
	now := float64(time.Now().Unix())

	body = BlockBody{
		Index:        nextIndex,
		Timestamp:    now,
		Transactions: batch.TransactionHashes,
		PreviousHash: previousHash,
		Nonce:        0,
	}

	for nonce := int64(0); ; nonce++ {
		if nonce%yieldEvery == 0 {
			select {
			case <-ctx.Done():
				return BlockBody{}, false, ctx.Err()
			default:
			}
			if c.tipVersion.Load() != startVersion {
				return BlockBody{}, false, nil
			}
		}
		body.Nonce = nonce
		if MeetsDifficulty(body.Hash(), c.difficulty) {
			return body, true, nil
		}
	}
}

// SubmitSolution is called by the coordinator's goroutine managing a
// worker's result. It validates the solution against the current tip
// under the single-writer lock, persists the block on success, awards
// the full miner_fee of the batch to minerID, and bumps tipVersion so
// every other in-flight worker notices. A stale submission (the tip
// already moved) is rejected and counted as a loss for minerID.
func (c *Coordinator) SubmitSolution(ctx context.Context, minerID string, batch *models.TransactionBatch, body BlockBody, minerFeeTotal float64) (*models.BlockPublic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nextIndex, previousHash, err := c.currentTip(ctx)
	if err != nil {
		return nil, err
	}
	recomputed := body.Hash()
	valid := body.Index == nextIndex &&
		body.PreviousHash == previousHash &&
		MeetsDifficulty(recomputed, c.difficulty) &&
		withinClockSkew(body.Timestamp)

	stats := c.miners[minerID]
	if stats == nil {
		stats = &MinerStats{MinerID: minerID}
		c.miners[minerID] = stats
	}
	if !valid {
		stats.BlocksLost++
		return nil, nil
	}

	block := &models.BlockPublic{
		BlockIndex:   body.Index,
		BlockHash:    recomputed,
		PreviousHash: body.PreviousHash,
		Transactions: body.Transactions,
		Nonce:        body.Nonce,
		Difficulty:   c.difficulty,
		Timestamp:    body.Timestamp,
		MinedBy:      minerID,
	}
	if err := c.store.InsertPublicBlock(ctx, block); err != nil {
		return nil, err
	}
	if err := c.store.FinalizeBatch(ctx, batch.BatchID, models.BatchMining, &block.BlockIndex, nil); err != nil {
		return nil, err
	}

	stats.BlocksWon++
	stats.Balance += minerFeeTotal
	c.tipVersion.Add(1)
	return block, nil
}

// withinClockSkew enforces the ±2 hour wall-clock tolerance on a
// block's timestamp.
func withinClockSkew(ts float64) bool {
	delta := time.Since(time.Unix(int64(ts), 0))
	if delta < 0 {
		delta = -delta
	}
	return delta <= 2*time.Hour
}
