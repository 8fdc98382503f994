package ledgerapi

import (
	"context"
	"fmt"

	"github.com/rawblock/idx-consortium-ledger/internal/consensus/pos"
	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// finalizeConsensus is the post-vote step §4.3.3 requires: on a failed
// vote every transaction in the batch is marked FAILED (the miner that
// already sealed the public block keeps its fee regardless); on success
// it seals the private-chain identity-map block linked to the batch's
// public block, then settles every transaction, splitting each one's
// bank_fee among the banks feeShares names.
func (h *Handler) finalizeConsensus(
	ctx context.Context,
	batch *models.TransactionBatch,
	txs []*models.Transaction,
	achieved bool,
	approvals int,
	feeShares func(t *models.Transaction) map[string]float64,
) (*models.BlockPrivate, error) {
	if !achieved {
		for _, t := range txs {
			if err := h.engine.MarkFailed(ctx, t.TransactionHash); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	if batch.PublicBlockIndex == nil {
		return nil, fmt.Errorf("batch %s has no public block to link the private block to", batch.BatchID)
	}

	payload := pos.BuildPrivatePayload(txs, h.accountLookup(ctx))

	chainKeyHex, err := h.km.GetOrCreate(cryptoadapter.PrivateChainKey)
	if err != nil {
		return nil, err
	}
	block, err := pos.SealPrivateBlock(ctx, h.store, cryptoadapter.NewCipher(chainKeyHex), *batch.PublicBlockIndex, payload, approvals, achieved)
	if err != nil {
		return nil, err
	}

	for _, t := range txs {
		ok, err := h.engine.Settle(ctx, t, feeShares(t))
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := h.engine.MarkFailed(ctx, t.TransactionHash); err != nil {
				return nil, err
			}
		}
	}
	return block, nil
}

// accountLookup adapts store.FindBankAccount into the closure
// pos.BuildPrivatePayload needs: account id -> (bank_code, account_number,
// owner IDX). A lookup failure resolves to an empty bank code, which
// BuildPrivatePayload already treats as "omit this entry".
func (h *Handler) accountLookup(ctx context.Context) func(accountID int64) (bankCode, accountNumber, ownerIDX string) {
	return func(accountID int64) (string, string, string) {
		account, err := h.store.FindBankAccount(ctx, accountID)
		if err != nil || account == nil {
			return "", "", ""
		}
		return account.BankCode, account.AccountNumber, account.UserIDX
	}
}
