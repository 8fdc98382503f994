package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/idx-consortium-ledger/internal/consensus/pos"
	"github.com/rawblock/idx-consortium-ledger/internal/consensus/pow"
	"github.com/rawblock/idx-consortium-ledger/internal/consensus/rbi"
	"github.com/rawblock/idx-consortium-ledger/internal/consensus/validation"
	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
	"github.com/rawblock/idx-consortium-ledger/internal/disclosure"
	"github.com/rawblock/idx-consortium-ledger/internal/eventbus"
	"github.com/rawblock/idx-consortium-ledger/internal/identity"
	"github.com/rawblock/idx-consortium-ledger/internal/ledger"
	"github.com/rawblock/idx-consortium-ledger/internal/ledgerapi"
	"github.com/rawblock/idx-consortium-ledger/internal/store"
	"github.com/rawblock/idx-consortium-ledger/internal/treasury"
)

func main() {
	log.Println("Starting IDX Consortium Ledger core...")

	pepper := requireEnv("APPLICATION_PEPPER")
	dbURL := requireEnv("DATABASE_URL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to PostgreSQL: %v", err)
	}
	defer st.Close()
	if err := st.InitSchema(ctx); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	km := cryptoadapter.NewKeyManager(func(name string) (string, bool) {
		v := os.Getenv(name)
		return v, v != ""
	})

	bus := eventbus.New()

	idxGen := identity.NewIDXGenerator(pepper)
	sessionRotation := time.Duration(getEnvInt("SESSION_ROTATION_HOURS", 24)) * time.Hour
	sessions := identity.NewSessionService(st, sessionRotation)
	recipients := identity.NewRecipientService(st, sessions)

	fees := ledger.FeeRates{
		MinerFeeRate: getEnvFloat("POW_MINER_FEE_RATE", ledger.DefaultFeeRates.MinerFeeRate),
		BankFeeRate:  getEnvFloat("BANK_CONSENSUS_FEE_RATE", ledger.DefaultFeeRates.BankFeeRate),
	}
	engine := ledger.New(st, sessions, fees, bus)

	difficulty := getEnvInt("POW_DIFFICULTY", pow.DefaultDifficulty)
	coordinator := pow.NewCoordinator(st, difficulty)
	batcher := pow.NewBatcher(st)

	revalidator := validation.New(st)
	banks, err := st.ListBanks(ctx)
	if err != nil {
		log.Fatalf("FATAL: failed to load consortium banks: %v", err)
	}
	validators := make(map[string]pos.Validator, len(banks))
	for _, b := range banks {
		validators[b.BankCode] = revalidator
	}
	votingDriver := pos.NewDriver(st, validators)

	auditor := rbi.New(st, revalidator, treasury.FiscalYearFor)
	distributor := treasury.New(st)

	auditLog := disclosure.NewAuditLog(st)
	disclosureSvc := disclosure.NewService(st, km, auditLog)

	hub := ledgerapi.NewHub(bus)
	handler := ledgerapi.New(st, idxGen, sessions, recipients, engine, st, batcher, coordinator,
		votingDriver, auditor, distributor, disclosureSvc, auditLog, km, hub)

	go sessions.RunRotationLoop(ctx, time.Hour)
	go runMiningLoop(ctx, st, batcher, coordinator)

	r := ledgerapi.SetupRouter(handler)
	port := getEnvOrDefault("PORT", "8080")
	log.Printf("Ledger core listening on :%s (difficulty=%d)", port, difficulty)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}

// runMiningLoop polls for a pending batch every 10s (§5's scheduling
// model) and drives one miner worker to seal it — a single in-process
// miner is enough to keep the public chain advancing; production
// deployments register additional MineWorker goroutines against the
// same Coordinator.
func runMiningLoop(ctx context.Context, st *store.PostgresStore, batcher *pow.Batcher, coordinator *pow.Coordinator) {
	const minerID = "local-miner-0"
	coordinator.RegisterMiner(minerID)
	defer coordinator.UnregisterMiner(minerID)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := batcher.BuildNext(ctx)
			if err != nil {
				log.Printf("[miner] batch build failed: %v", err)
				continue
			}
			if batch == nil {
				continue
			}
			body, ok, err := coordinator.MineWorker(ctx, minerID, batch)
			if err != nil {
				log.Printf("[miner] mining failed: %v", err)
				continue
			}
			if !ok {
				continue
			}
			sealed, err := st.ListTransactionsForBatch(ctx, batch.BatchID)
			if err != nil {
				log.Printf("[miner] failed to load sealed batch: %v", err)
				continue
			}
			var minerFeeTotal float64
			for _, t := range sealed {
				minerFeeTotal += t.MinerFee
			}
			block, err := coordinator.SubmitSolution(ctx, minerID, batch, body, minerFeeTotal)
			if err != nil {
				log.Printf("[miner] submission failed: %v", err)
				continue
			}
			if block != nil {
				log.Printf("[miner] mined block %d (%s)", block.BlockIndex, block.BlockHash[:12])
			}
		}
	}
}

func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}
