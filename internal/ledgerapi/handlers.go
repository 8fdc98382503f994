package ledgerapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/idx-consortium-ledger/internal/anomaly"
	"github.com/rawblock/idx-consortium-ledger/internal/consensus/pos"
	"github.com/rawblock/idx-consortium-ledger/internal/disclosure"
	"github.com/rawblock/idx-consortium-ledger/internal/ledger"
	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

// ── Identity ────────────────────────────────────────────────────────

type generateIDXRequest struct {
	PANCard   string `json:"panCard" binding:"required"`
	RBINumber string `json:"rbiNumber" binding:"required"`
}

func (h *Handler) handleGenerateIDX(c *gin.Context) {
	var req generateIDXRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	idx, err := h.idxGen.Generate(req.PANCard, req.RBINumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"idx": idx})
}

type verifyIDXRequest struct {
	PANCard   string `json:"panCard" binding:"required"`
	RBINumber string `json:"rbiNumber" binding:"required"`
	IDX       string `json:"idx" binding:"required"`
}

func (h *Handler) handleVerifyIDX(c *gin.Context) {
	var req verifyIDXRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": h.idxGen.Verify(req.PANCard, req.RBINumber, req.IDX)})
}

// ── Sessions & recipients ───────────────────────────────────────────

type issueSessionRequest struct {
	UserIDX       string `json:"userIdx" binding:"required"`
	BankCode      string `json:"bankCode" binding:"required"`
	BankAccountID int64  `json:"bankAccountId" binding:"required"`
}

func (h *Handler) handleIssueSession(c *gin.Context) {
	var req issueSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := h.sessions.Issue(c.Request.Context(), req.UserIDX, req.BankCode, req.BankAccountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type addRecipientRequest struct {
	OwnerIDX     string `json:"ownerIdx" binding:"required"`
	RecipientIDX string `json:"recipientIdx" binding:"required"`
	Nickname     string `json:"nickname" binding:"required"`
}

func (h *Handler) handleAddRecipient(c *gin.Context) {
	var req addRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.recipients.AddRecipient(c.Request.Context(), req.OwnerIDX, req.RecipientIDX, req.Nickname)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) handleResolveRecipient(c *gin.Context) {
	ownerIDX := c.Query("ownerIdx")
	if ownerIDX == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ownerIdx query parameter is required"})
		return
	}
	idx, err := h.recipients.ResolveRecipient(c.Request.Context(), ownerIDX, c.Param("nickname"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipientIdx": idx})
}

// ── Transactions ─────────────────────────────────────────────────────

type createTransactionRequest struct {
	SenderSessionID   string                 `json:"senderSessionId" binding:"required"`
	SenderIDX         string                 `json:"senderIdx" binding:"required"`
	SenderAccountID   int64                  `json:"senderAccountId" binding:"required"`
	ReceiverIDX       string                 `json:"receiverIdx" binding:"required"`
	ReceiverAccountID *int64                 `json:"receiverAccountId"`
	ReceiverSessionID string                 `json:"receiverSessionId"`
	Amount            float64                `json:"amount" binding:"required"`
	Type              models.TransactionType `json:"transactionType" binding:"required"`
}

func (h *Handler) handleCreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.engine.Create(c.Request.Context(), ledger.CreateParams{
		SenderSessionID:   req.SenderSessionID,
		SenderIDX:         req.SenderIDX,
		SenderAccountID:   req.SenderAccountID,
		ReceiverIDX:       req.ReceiverIDX,
		ReceiverAccountID: req.ReceiverAccountID,
		ReceiverSessionID: req.ReceiverSessionID,
		Amount:            req.Amount,
		Type:              req.Type,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	// Score before mining, per §4.2: the anomaly detector never blocks a
	// transfer, it only writes anomaly_score/anomaly_flags for every
	// transaction and raises requires_investigation for human review.
	assessment, err := anomaly.Score(c.Request.Context(), t, h.anomalyHist)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.store.FlagTransaction(c.Request.Context(), t.TransactionHash, assessment.Score, assessment.Flags, assessment.RequiresInvestigation); err != nil {
		writeError(c, err)
		return
	}
	t.AnomalyScore = assessment.Score
	t.AnomalyFlags = assessment.Flags
	t.RequiresInvestigation = assessment.RequiresInvestigation

	c.JSON(http.StatusCreated, t)
}

func (h *Handler) handleConfirmReceiver(c *gin.Context) {
	var req struct {
		ReceiverAccountID int64  `json:"receiverAccountId" binding:"required"`
		ReceiverSessionID string `json:"receiverSessionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.engine.ConfirmReceiver(c.Request.Context(), c.Param("hash"), req.ReceiverAccountID, req.ReceiverSessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) handleRejectTransaction(c *gin.Context) {
	if err := h.engine.Reject(c.Request.Context(), c.Param("hash")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (h *Handler) handleGetTransaction(c *gin.Context) {
	t, err := h.engine.GetByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) handleListPending(c *gin.Context) {
	txs, err := h.engine.ListPendingForReceiver(c.Request.Context(), parseLimit(c, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (h *Handler) handleListFlagged(c *gin.Context) {
	txs, err := h.engine.ListFlagged(c.Request.Context(), parseLimit(c, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

// handleAnomalyStatistics aggregates the currently flagged population —
// count, average score, and flag-reason frequency — for dashboard display.
func (h *Handler) handleAnomalyStatistics(c *gin.Context) {
	txs, err := h.engine.ListFlagged(c.Request.Context(), parseLimit(c, 1000))
	if err != nil {
		writeError(c, err)
		return
	}
	stats := gin.H{"flaggedCount": len(txs)}
	if len(txs) > 0 {
		var totalScore int
		flagCounts := map[string]int{}
		for _, t := range txs {
			totalScore += t.AnomalyScore
			for _, f := range t.AnomalyFlags {
				flagCounts[f]++
			}
		}
		stats["averageScore"] = float64(totalScore) / float64(len(txs))
		stats["flagReasonCounts"] = flagCounts
	}
	c.JSON(http.StatusOK, stats)
}

// ── Consensus ────────────────────────────────────────────────────────

func (h *Handler) handleBuildNextBatch(c *gin.Context) {
	batch, err := h.batcher.BuildNext(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if batch == nil {
		c.JSON(http.StatusOK, gin.H{"status": "nothing pending"})
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (h *Handler) handleRegisterMiner(c *gin.Context) {
	h.coordinator.RegisterMiner(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func (h *Handler) handleUnregisterMiner(c *gin.Context) {
	h.coordinator.UnregisterMiner(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}

func (h *Handler) handleMinerStats(c *gin.Context) {
	stats := h.coordinator.Stats(c.Param("id"))
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown miner"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type runVoteRequest struct {
	ActiveBanks []string `json:"activeBanks" binding:"required"`
}

func (h *Handler) handleRunDomesticVote(c *gin.Context) {
	var req runVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batchID := c.Param("id")

	batch, err := h.store.FindBatch(c.Request.Context(), batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	if batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown batch"})
		return
	}
	txs, err := h.store.ListTransactionsForBatch(c.Request.Context(), batchID)
	if err != nil {
		writeError(c, err)
		return
	}

	results, achieved, err := h.votingDriver.RunDomestic(c.Request.Context(), batch, txs, req.ActiveBanks)
	if err != nil {
		writeError(c, err)
		return
	}

	approvals := 0
	for _, r := range results {
		if r.Vote == models.VoteApprove {
			approvals++
		}
	}
	block, err := h.finalizeConsensus(c.Request.Context(), batch, txs, achieved, approvals, func(t *models.Transaction) map[string]float64 {
		return pos.SplitDomesticFee(t.BankFee, req.ActiveBanks)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": results, "consensusAchieved": achieved, "privateBlock": block})
}

type runTravelVoteRequest struct {
	TransactionHash string `json:"transactionHash" binding:"required"`
	SenderBank      string `json:"senderBank" binding:"required"`
	ReceiverBank    string `json:"receiverBank" binding:"required"`
}

func (h *Handler) handleRunTravelVote(c *gin.Context) {
	var req runTravelVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batchID := c.Param("id")

	batch, err := h.store.FindBatch(c.Request.Context(), batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	if batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown batch"})
		return
	}
	t, err := h.engine.GetByHash(c.Request.Context(), req.TransactionHash)
	if err != nil {
		writeError(c, err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown transaction"})
		return
	}

	achieved, err := h.votingDriver.RunTravel(c.Request.Context(), batch, t, req.SenderBank, req.ReceiverBank)
	if err != nil {
		writeError(c, err)
		return
	}

	approvals := 0
	if achieved {
		approvals = 2
	}
	block, err := h.finalizeConsensus(c.Request.Context(), batch, []*models.Transaction{t}, achieved, approvals, func(tx *models.Transaction) map[string]float64 {
		return pos.SplitTravelFee(tx.BankFee, req.SenderBank, req.ReceiverBank)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consensusAchieved": achieved, "privateBlock": block})
}

func (h *Handler) handleRunRBIPass(c *gin.Context) {
	results, err := h.auditor.RunPass(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audited": results})
}

func (h *Handler) handleListBanks(c *gin.Context) {
	banks, err := h.store.ListBanks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, banks)
}

// ── Treasury ─────────────────────────────────────────────────────────

func (h *Handler) handleTreasuryBalance(c *gin.Context) {
	balance, err := h.store.TreasuryBalance(c.Request.Context(), c.Param("fiscalYear"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fiscalYear": c.Param("fiscalYear"), "balance": balance})
}

func (h *Handler) handleDistributeRewards(c *gin.Context) {
	result, err := h.distributor.Distribute(c.Request.Context(), c.Param("fiscalYear"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ── Disclosure ───────────────────────────────────────────────────────

type submitOrderRequest struct {
	JudgeID    string `json:"judgeId" binding:"required"`
	TargetIDX  string `json:"targetIdx" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
	CaseNumber string `json:"caseNumber" binding:"required"`
	FreezeNow  bool   `json:"freezeNow"`
}

func (h *Handler) handleSubmitOrder(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := h.disclosure.Submit(c.Request.Context(), disclosure.SubmitParams{
		JudgeID: req.JudgeID, TargetIDX: req.TargetIDX, Reason: req.Reason,
		CaseNumber: req.CaseNumber, FreezeNow: req.FreezeNow,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) handleExecuteOrder(c *gin.Context) {
	records, err := h.disclosure.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) handleListOrders(c *gin.Context) {
	orders, err := h.disclosure.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) handleAuditTrail(c *gin.Context) {
	entries, err := h.auditLog.Trail(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
