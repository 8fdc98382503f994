// Package models holds the entity contracts of the consortium ledger core
// as described in the data model: users, accounts, sessions, transactions,
// batches, blocks, votes, treasury, judges, and court orders.
package models

import "time"

// User carries the permanent anonymous identity. idx never mutates and
// pan_card never leaves the server except under disclosure.
type User struct {
	IDX      string  `json:"idx"`
	PANCard  string  `json:"-"` // never serialized; secret regulatory id
	FullName string  `json:"fullName"`
	Balance  float64 `json:"balance"` // legacy aggregate; accounts are authoritative
}

// BankAccount is the authoritative balance holder for a user at a bank.
type BankAccount struct {
	ID            int64     `json:"id"`
	UserIDX       string    `json:"userIdx"`
	BankCode      string    `json:"bankCode"`
	AccountNumber string    `json:"accountNumber"`
	Balance       float64   `json:"balance"`
	IsActive      bool      `json:"isActive"`
	IsFrozen      bool      `json:"isFrozen"`
	IsBusiness    bool      `json:"isBusiness"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Session is a 24-hour rotating token bound to (user, bank account).
type Session struct {
	SessionID     string    `json:"sessionId"`
	UserIDX       string    `json:"userIdx"`
	BankCode      string    `json:"bankCode"`
	BankAccountID int64     `json:"bankAccountId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Bank is a consortium member validator.
type Bank struct {
	BankCode                string    `json:"bankCode"`
	BankName                string    `json:"bankName"`
	StakeAmount             float64   `json:"stakeAmount"`
	InitialStake            float64   `json:"initialStake"`
	IsActive                bool      `json:"isActive"`
	TotalValidations        int64     `json:"totalValidations"`
	TotalFeesEarned         float64   `json:"totalFeesEarned"`
	PenaltyCount            int       `json:"penaltyCount"`
	TotalPenalties          float64   `json:"totalPenalties"`
	HonestVerifications     int64     `json:"honestVerifications"`
	MaliciousVerifications  int64     `json:"maliciousVerifications"`
	LastFiscalYearReward    float64   `json:"lastFiscalYearReward"`
	LastFiscalYearRewardFor string    `json:"lastFiscalYearRewardFor,omitempty"`
}

// Recipient lets a sender address a counterparty by nickname instead of IDX.
type Recipient struct {
	OwnerIDX         string    `json:"ownerIdx"`
	RecipientIDX     string    `json:"recipientIdx"`
	Nickname         string    `json:"nickname"`
	CurrentSessionID string    `json:"currentSessionId,omitempty"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt,omitempty"`
	IsActive         bool      `json:"isActive"`
}

// TransactionType enumerates the four flows the fee schedule and consensus
// path distinguish between.
type TransactionType string

const (
	TxDomestic         TransactionType = "DOMESTIC"
	TxTravelDeposit    TransactionType = "TRAVEL_DEPOSIT"
	TxTravelWithdrawal TransactionType = "TRAVEL_WITHDRAWAL"
	TxTravelTransfer   TransactionType = "TRAVEL_TRANSFER"
)

// IsTravel reports whether the type uses the 2-of-2 sender/receiver voting path.
func (t TransactionType) IsTravel() bool {
	return t == TxTravelDeposit || t == TxTravelWithdrawal || t == TxTravelTransfer
}

// TransactionStatus is the transfer lifecycle state.
type TransactionStatus string

const (
	StatusAwaitingReceiver  TransactionStatus = "AWAITING_RECEIVER"
	StatusPending           TransactionStatus = "PENDING"
	StatusRejected          TransactionStatus = "REJECTED"
	StatusMining            TransactionStatus = "MINING"
	StatusPublicConfirmed   TransactionStatus = "PUBLIC_CONFIRMED"
	StatusPrivateConfirmed  TransactionStatus = "PRIVATE_CONFIRMED"
	StatusCompleted         TransactionStatus = "COMPLETED"
	StatusFailed            TransactionStatus = "FAILED"
)

// Transaction is a single transfer moving through the lifecycle state machine.
type Transaction struct {
	SequenceNumber        int64             `json:"sequenceNumber"`
	TransactionHash        string            `json:"transactionHash"`
	SenderAccountID        int64             `json:"senderAccountId"`
	ReceiverAccountID      *int64            `json:"receiverAccountId,omitempty"`
	SenderIDX              string            `json:"senderIdx"`
	ReceiverIDX            string            `json:"receiverIdx"`
	SenderSessionID        string            `json:"senderSessionId"`
	ReceiverSessionID      string            `json:"receiverSessionId,omitempty"`
	Amount                 float64           `json:"amount"`
	Fee                    float64           `json:"fee"`
	MinerFee               float64           `json:"minerFee"`
	BankFee                float64           `json:"bankFee"`
	TransactionType        TransactionType   `json:"transactionType"`
	Status                 TransactionStatus `json:"status"`
	BatchID                string            `json:"batchId,omitempty"`
	PublicBlockIndex       *int64            `json:"publicBlockIndex,omitempty"`
	PrivateBlockIndex      *int64            `json:"privateBlockIndex,omitempty"`
	Commitment             string            `json:"commitment"`
	Nullifier              string            `json:"nullifier"`
	EncryptedData          string            `json:"encryptedData,omitempty"`
	EncryptedKey           string            `json:"encryptedKey,omitempty"`
	AnomalyScore           int               `json:"anomalyScore"`
	AnomalyFlags           []string          `json:"anomalyFlags,omitempty"`
	RequiresInvestigation  bool              `json:"requiresInvestigation"`
	CreatedAt              time.Time         `json:"createdAt"`
	CompletedAt            *time.Time        `json:"completedAt,omitempty"`
	FlaggedAt              *time.Time        `json:"flaggedAt,omitempty"`
}

// TransactionBatchStatus is the batch lifecycle.
type TransactionBatchStatus string

const (
	BatchPending   TransactionBatchStatus = "PENDING"
	BatchBuilding  TransactionBatchStatus = "BUILDING"
	BatchReady     TransactionBatchStatus = "READY"
	BatchMining    TransactionBatchStatus = "MINING"
	BatchCompleted TransactionBatchStatus = "COMPLETED"
	BatchFailed    TransactionBatchStatus = "FAILED"
)

// TransactionBatch groups up to 100 contiguous-sequence transactions for
// PoW mining and BFT voting.
type TransactionBatch struct {
	BatchID            string                 `json:"batchId"`
	SequenceStart      int64                  `json:"sequenceStart"`
	SequenceEnd        int64                  `json:"sequenceEnd"`
	TransactionCount   int                    `json:"transactionCount"`
	TransactionHashes  []string               `json:"transactionHashes"`
	MerkleRoot         string                 `json:"merkleRoot"`
	Status             TransactionBatchStatus `json:"status"`
	PublicBlockIndex   *int64                 `json:"publicBlockIndex,omitempty"`
	PrivateBlockIndex  *int64                 `json:"privateBlockIndex,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
}

// Vote is a single bank's verdict on a batch.
type Vote string

const (
	VoteApprove Vote = "APPROVE"
	VoteReject  Vote = "REJECT"
)

// BankVotingRecord is one bank's vote on one batch.
type BankVotingRecord struct {
	BatchID          string  `json:"batchId"`
	BankCode         string  `json:"bankCode"`
	Vote             Vote    `json:"vote"`
	ValidationTimeMs int64   `json:"validationTimeMs"`
	IsCorrect        *bool   `json:"isCorrect,omitempty"`
	RBIVerified      bool    `json:"rbiVerified"`
	WasSlashed       bool    `json:"wasSlashed"`
	SlashAmount      float64 `json:"slashAmount"`
	ChallengedBy     string  `json:"challengedBy,omitempty"`
	GroupSignature   string  `json:"groupSignature,omitempty"`
}

// BlockPublic is an entry on the public append-only PoW chain.
type BlockPublic struct {
	BlockIndex       int64     `json:"blockIndex"`
	BlockHash        string    `json:"blockHash"`
	PreviousHash     string    `json:"previousHash"`
	Transactions     []string  `json:"transactions"`
	Nonce            int64     `json:"nonce"`
	Difficulty       int       `json:"difficulty"`
	Timestamp        float64   `json:"timestamp"`
	MinedBy          string    `json:"minedBy"`
}

// BlockPrivate carries the encrypted session→identity map for one batch.
type BlockPrivate struct {
	BlockIndex         int64     `json:"blockIndex"`
	BlockHash          string    `json:"blockHash"`
	LinkedPublicBlock  int64     `json:"linkedPublicBlock"`
	EncryptedData      string    `json:"encryptedData"`
	EncryptedKey       string    `json:"encryptedKey"`
	ConsensusVotes     int       `json:"consensusVotes"`
	ConsensusAchieved  bool      `json:"consensusAchieved"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Judge is a whitelist entry authorized to issue disclosure orders.
type Judge struct {
	JudgeID    string `json:"judgeId"`
	FullName   string `json:"fullName"`
	CourtName  string `json:"courtName"`
	Jurisdiction string `json:"jurisdiction"`
	IsActive   bool   `json:"isActive"`
	PublicKey  string `json:"publicKey,omitempty"`
}

// CourtOrderStatus is the disclosure-order lifecycle.
type CourtOrderStatus string

const (
	OrderPending  CourtOrderStatus = "PENDING"
	OrderExecuted CourtOrderStatus = "EXECUTED"
	OrderExpired  CourtOrderStatus = "EXPIRED"
	OrderDenied   CourtOrderStatus = "DENIED"
)

// CourtOrder authorizes selective decryption of one IDX's transactions.
type CourtOrder struct {
	OrderID           string           `json:"orderId"`
	JudgeID           string           `json:"judgeId"`
	TargetIDX         string           `json:"targetIdx"`
	Reason            string           `json:"reason"`
	CaseNumber        string           `json:"caseNumber"`
	Status            CourtOrderStatus `json:"status"`
	IssuedAt          time.Time        `json:"issuedAt"`
	ExpiresAt         time.Time        `json:"expiresAt"`
	ExecutedAt        *time.Time       `json:"executedAt,omitempty"`
	AccessGranted     bool             `json:"accessGranted"`
	CompanyKeyIssued  bool             `json:"companyKeyIssued"`
}

// TreasuryEntryType distinguishes slash debits from reward credits.
type TreasuryEntryType string

const (
	TreasurySlash  TreasuryEntryType = "SLASH"
	TreasuryReward TreasuryEntryType = "REWARD"
)

// TreasuryEntry is an insert-only ledger row.
type TreasuryEntry struct {
	ID                       int64             `json:"id"`
	EntryType                TreasuryEntryType `json:"entryType"`
	Amount                   float64           `json:"amount"`
	BankCode                 string            `json:"bankCode"`
	FiscalYear               string            `json:"fiscalYear"`
	Reason                   string            `json:"reason"`
	OffenseCount             int               `json:"offenseCount,omitempty"`
	HonestVerificationCount  int64             `json:"honestVerificationCount,omitempty"`
	CreatedAt                time.Time         `json:"createdAt"`
}

// AuditLogEntry is one append-only, hash-chained disclosure-audit record.
type AuditLogEntry struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Data      string    `json:"data"` // JSON payload
	PrevHash  string    `json:"prevHash"`
	EntryHash string    `json:"entryHash"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecryptedTransactionRecord is what a court order discloses for one
// transaction touching the target IDX.
type DecryptedTransactionRecord struct {
	TransactionHash string    `json:"transactionHash"`
	SenderIDX       string    `json:"senderIdx"`
	ReceiverIDX     string    `json:"receiverIdx"`
	Amount          float64   `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
}

// PrivateBlockPayload is the minimum information needed to answer any
// future lawful disclosure for a batch: the session→identity map, the
// bank-account→identity map, and per-transaction metadata.
type PrivateBlockPayload struct {
	SessionToIDX        map[string]string            `json:"sessionToIdx"`
	BankToIDX            map[string]string            `json:"bankToIdx"`
	TransactionMetadata []DecryptedTransactionRecord `json:"transactionMetadata"`
	Timestamp           time.Time                    `json:"timestamp"`
}
