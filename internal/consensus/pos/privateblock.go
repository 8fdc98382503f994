package pos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// PrivateChainStore is the persistence contract for the private-chain
// half of consensus.
type PrivateChainStore interface {
	InsertPrivateBlock(ctx context.Context, b *models.BlockPrivate) error
}

// BuildPrivatePayload assembles the §4.7 payload: the session->IDX map
// for every transaction's sender and receiver, the bank-account->IDX
// map keyed "{bank_code}:{account_number}", and per-transaction
// disclosure metadata. accountLookup resolves an account id to its
// (bank_code, account_number, owner IDX) for the bank_to_idx map.
func BuildPrivatePayload(txs []*models.Transaction, accountLookup func(accountID int64) (bankCode, accountNumber, ownerIDX string)) models.PrivateBlockPayload {
	payload := models.PrivateBlockPayload{
		SessionToIDX: make(map[string]string),
		BankToIDX:    make(map[string]string),
		Timestamp:    time.Now(),
	}

	for _, t := range txs {
		if t.SenderSessionID != "" {
			payload.SessionToIDX[t.SenderSessionID] = t.SenderIDX
		}
		if t.ReceiverSessionID != "" {
			payload.SessionToIDX[t.ReceiverSessionID] = t.ReceiverIDX
		}
		if bankCode, acctNum, owner := accountLookup(t.SenderAccountID); bankCode != "" {
			payload.BankToIDX[fmt.Sprintf("%s:%s", bankCode, acctNum)] = owner
		}
		if t.ReceiverAccountID != nil {
			if bankCode, acctNum, owner := accountLookup(*t.ReceiverAccountID); bankCode != "" {
				payload.BankToIDX[fmt.Sprintf("%s:%s", bankCode, acctNum)] = owner
			}
		}
		payload.TransactionMetadata = append(payload.TransactionMetadata, models.DecryptedTransactionRecord{
			TransactionHash: t.TransactionHash,
			SenderIDX:       t.SenderIDX,
			ReceiverIDX:     t.ReceiverIDX,
			Amount:          t.Amount,
			Timestamp:       t.CreatedAt,
		})
	}
	return payload
}

// SealPrivateBlock encrypts the payload under a fresh per-block key and
// wraps that key with the private chain key, mirroring the
// per-transaction isolation pattern: compromising one block's key
// exposes only that block, not the whole private chain. block_hash is
// prefixed "PRIVATE_" over the ciphertext's own hash so it never
// collides with (or reveals anything about) the public chain.
func SealPrivateBlock(ctx context.Context, store PrivateChainStore, privateChainKey *cryptoadapter.Cipher, publicBlockIndex int64, payload models.PrivateBlockPayload, approvals int, achieved bool) (*models.BlockPrivate, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	blockKey, err := cryptoadapter.SecureRandomBytes(32)
	if err != nil {
		return nil, err
	}
	blockKeyHex := fmt.Sprintf("%x", blockKey)
	blockCipher := cryptoadapter.NewCipher(blockKeyHex)

	ciphertext, err := blockCipher.EncryptString(string(raw))
	if err != nil {
		return nil, err
	}
	wrappedKey, err := privateChainKey.EncryptString(blockKeyHex)
	if err != nil {
		return nil, err
	}

	b := &models.BlockPrivate{
		BlockIndex:        publicBlockIndex,
		BlockHash:         "PRIVATE_" + cryptoadapter.SHA256HexString(ciphertext),
		LinkedPublicBlock: publicBlockIndex,
		EncryptedData:     ciphertext,
		EncryptedKey:      wrappedKey,
		ConsensusVotes:    approvals,
		ConsensusAchieved: achieved,
		CreatedAt:         time.Now(),
	}
	if err := store.InsertPrivateBlock(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
