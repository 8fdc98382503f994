// Package ledgerapi exposes the consortium ledger core over HTTP: identity
// issuance, the transaction lifecycle, consensus operations, disclosure,
// and the RBI/treasury administrative surface.
package ledgerapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/idx-consortium-ledger/internal/anomaly"
	"github.com/rawblock/idx-consortium-ledger/internal/consensus/pos"
	"github.com/rawblock/idx-consortium-ledger/internal/consensus/pow"
	"github.com/rawblock/idx-consortium-ledger/internal/consensus/rbi"
	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/internal/disclosure"
	"github.com/rawblock/idx-consortium-ledger/internal/identity"
	"github.com/rawblock/idx-consortium-ledger/internal/ledger"
	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
	"github.com/rawblock/idx-consortium-ledger/internal/store"
	"github.com/rawblock/idx-consortium-ledger/internal/treasury"
)

// Handler wires every core component into Gin handlers. Every field is a
// narrow, already-constructed collaborator — the router itself makes no
// domain decisions, it only translates HTTP to calls on them.
type Handler struct {
	store        *store.PostgresStore
	idxGen       *identity.IDXGenerator
	sessions     *identity.SessionService
	recipients   *identity.RecipientService
	engine       *ledger.Engine
	anomalyHist  anomaly.History
	batcher      *pow.Batcher
	coordinator  *pow.Coordinator
	votingDriver *pos.Driver
	auditor      *rbi.Auditor
	distributor  *treasury.Distributor
	disclosure   *disclosure.Service
	auditLog     *disclosure.AuditLog
	km           *cryptoadapter.KeyManager
	hub          *Hub
}

// New builds a Handler from already-wired collaborators.
func New(
	st *store.PostgresStore,
	idxGen *identity.IDXGenerator,
	sessions *identity.SessionService,
	recipients *identity.RecipientService,
	engine *ledger.Engine,
	anomalyHist anomaly.History,
	batcher *pow.Batcher,
	coordinator *pow.Coordinator,
	votingDriver *pos.Driver,
	auditor *rbi.Auditor,
	distributor *treasury.Distributor,
	disclosureSvc *disclosure.Service,
	auditLog *disclosure.AuditLog,
	km *cryptoadapter.KeyManager,
	hub *Hub,
) *Handler {
	return &Handler{
		store: st, idxGen: idxGen, sessions: sessions, recipients: recipients,
		engine: engine, anomalyHist: anomalyHist, batcher: batcher, coordinator: coordinator,
		votingDriver: votingDriver, auditor: auditor, distributor: distributor,
		disclosure: disclosureSvc, auditLog: auditLog, km: km, hub: hub,
	}
}

// SetupRouter builds the full Gin engine: CORS, public health/stream
// endpoints, and the bearer-token+rate-limited API surface.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", h.hub.Subscribe)
	}

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware())
	api.Use(NewRateLimiter(60, 10).Middleware())
	{
		idx := api.Group("/identity")
		idx.POST("/generate", h.handleGenerateIDX)
		idx.POST("/verify", h.handleVerifyIDX)

		sess := api.Group("/sessions")
		sess.POST("", h.handleIssueSession)

		rec := api.Group("/recipients")
		rec.POST("", h.handleAddRecipient)
		rec.GET("/:nickname", h.handleResolveRecipient)

		tx := api.Group("/transactions")
		tx.POST("", h.handleCreateTransaction)
		tx.GET("/pending", h.handleListPending)
		tx.GET("/:hash", h.handleGetTransaction)
		tx.POST("/:hash/confirm", h.handleConfirmReceiver)
		tx.POST("/:hash/reject", h.handleRejectTransaction)

		anomalyGroup := api.Group("/anomaly")
		anomalyGroup.GET("/flagged", h.handleListFlagged)
		anomalyGroup.GET("/statistics", h.handleAnomalyStatistics)

		consensus := api.Group("/consensus")
		consensus.POST("/batches/next", h.handleBuildNextBatch)
		consensus.POST("/miners/:id/register", h.handleRegisterMiner)
		consensus.POST("/miners/:id/unregister", h.handleUnregisterMiner)
		consensus.GET("/miners/:id/stats", h.handleMinerStats)
		consensus.POST("/batches/:id/vote", h.handleRunDomesticVote)
		consensus.POST("/batches/:id/vote-travel", h.handleRunTravelVote)
		consensus.POST("/rbi/audit", h.handleRunRBIPass)

		banks := api.Group("/banks")
		banks.GET("", h.handleListBanks)

		treasuryGroup := api.Group("/treasury")
		treasuryGroup.GET("/:fiscalYear/balance", h.handleTreasuryBalance)
		treasuryGroup.POST("/:fiscalYear/distribute", h.handleDistributeRewards)

		disc := api.Group("/disclosure")
		disc.POST("/orders", h.handleSubmitOrder)
		disc.POST("/orders/:id/execute", h.handleExecuteOrder)
		disc.GET("/orders", h.handleListOrders)
		disc.GET("/audit-trail", h.handleAuditTrail)
	}

	return r
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError translates a ledgererr.Kind into the right HTTP status; an
// error that never touched ledgererr is an internal fault (500).
func writeError(c *gin.Context, err error) {
	var kind ledgererr.Kind
	status := http.StatusInternalServerError
	if le, ok := asLedgerErr(err); ok {
		kind = le.Kind
		status = statusForKind(kind)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func asLedgerErr(err error) (*ledgererr.Error, bool) {
	le, ok := err.(*ledgererr.Error)
	return le, ok
}

func statusForKind(kind ledgererr.Kind) int {
	switch kind {
	case ledgererr.InvalidIdentityFormat, ledgererr.InsufficientBalance, ledgererr.DuplicateTransaction:
		return http.StatusBadRequest
	case ledgererr.UnknownUser, ledgererr.UnknownAccount, ledgererr.UnknownSession,
		ledgererr.UnknownRecipient, ledgererr.UnknownJudge:
		return http.StatusNotFound
	case ledgererr.SessionExpired, ledgererr.AccountFrozen, ledgererr.JudgeInactive, ledgererr.OrderExpired:
		return http.StatusForbidden
	case ledgererr.ConsensusFailed, ledgererr.BlockInvalid, ledgererr.MacMismatch, ledgererr.KeyMissing:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
