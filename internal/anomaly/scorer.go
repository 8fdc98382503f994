// Package anomaly is a rule-based PMLA-style scorer. It annotates a
// transaction with a 0-100 risk score and a flag set; it never blocks
// a transfer, it only raises requires_investigation for human review.
package anomaly

import (
	"context"
	"math"
	"time"

	"github.com/rawblock/idx-consortium-ledger/pkg/models"
)

const (
	investigationThreshold = 65

	// Amount tiers, in rupees.
	tierCrore    = 10_000_000
	tierFiftyLak = 5_000_000
	tierTenLak   = 1_000_000

	structuringThreshold = tierTenLak
)

// History is the narrow read access the scorer needs into prior
// transactions and account/recipient context.
type History interface {
	// RecentBySender returns the sender's transactions within the given
	// lookback window, most recent first.
	RecentBySender(ctx context.Context, senderIDX string, window time.Duration) ([]*models.Transaction, error)
	// CompletedCountBetween returns how many COMPLETED transactions have
	// ever moved from senderIDX to receiverIDX, for recipient trust.
	CompletedCountBetween(ctx context.Context, senderIDX, receiverIDX string) (int, error)
	// IsBusinessAccount reports whether senderIDX is flagged as a
	// business account (lower scrutiny multiplier applies).
	IsBusinessAccount(ctx context.Context, senderIDX string) (bool, error)
	// Max90Day returns the sender's largest single transaction amount in
	// the trailing 90 days.
	Max90Day(ctx context.Context, senderIDX string) (float64, error)
}

// Assessment is the scorer's verdict for one transaction.
type Assessment struct {
	Score                 int
	Flags                 []string
	RequiresInvestigation bool
}

// Score produces a deterministic anomaly assessment for t given the
// ledger state visible through hist. Base score is capped per factor,
// then reduced by context multipliers, then floored at 10% of its
// pre-multiplier value so true positives are never fully suppressed.
func Score(ctx context.Context, t *models.Transaction, hist History) (Assessment, error) {
	base := 0
	var flags []string

	tier, tierFlagged := amountTierScore(t.Amount)
	base += tier
	if tierFlagged {
		flags = append(flags, "pmla_threshold")
	}

	recent1h, err := hist.RecentBySender(ctx, t.SenderIDX, time.Hour)
	if err != nil {
		return Assessment{}, err
	}
	recent24h, err := hist.RecentBySender(ctx, t.SenderIDX, 24*time.Hour)
	if err != nil {
		return Assessment{}, err
	}
	recent7d, err := hist.RecentBySender(ctx, t.SenderIDX, 7*24*time.Hour)
	if err != nil {
		return Assessment{}, err
	}
	velocity, velocityFlag := velocityScore(len(recent1h), len(recent24h), len(recent7d))
	base += velocity
	if velocityFlag != "" {
		flags = append(flags, velocityFlag)
	}

	structuring := structuringScore(t.Amount, t.TransactionHash, recent24h)
	base += structuring
	if structuring > 0 {
		flags = append(flags, "structuring_suspect")
	}

	if base > 100 {
		base = 100
	}

	multiplier := 1.0
	if isBiz, err := hist.IsBusinessAccount(ctx, t.SenderIDX); err != nil {
		return Assessment{}, err
	} else if isBiz {
		multiplier *= 0.6
	}
	if n, err := hist.CompletedCountBetween(ctx, t.SenderIDX, t.ReceiverIDX); err != nil {
		return Assessment{}, err
	} else if n >= 10 {
		multiplier *= 0.5
	}
	if max90, err := hist.Max90Day(ctx, t.SenderIDX); err != nil {
		return Assessment{}, err
	} else if max90 > 0 && t.Amount <= 2*max90 {
		multiplier *= 0.7
	}

	final := float64(base) * multiplier
	floor := 0.10 * float64(base)
	if final < floor {
		final = floor
	}
	score := int(math.Round(final))
	if score > 100 {
		score = 100
	}

	return Assessment{
		Score:                 score,
		Flags:                 flags,
		RequiresInvestigation: score >= investigationThreshold,
	}, nil
}

func amountTierScore(amount float64) (score int, flagged bool) {
	switch {
	case amount >= tierCrore:
		return 40, true
	case amount >= tierFiftyLak:
		return 25, true
	case amount >= tierTenLak:
		return 10, true
	default:
		return 0, false
	}
}

// velocityScore applies disjoint windows: only the highest-priority
// window (tightest, highest score) fires.
func velocityScore(count1h, count24h, count7d int) (score int, flag string) {
	switch {
	case count1h > 5:
		return 30, "velocity_1h"
	case count24h > 10:
		return 15, "velocity_24h"
	case count7d > 50:
		return 10, "velocity_7d"
	default:
		return 0, ""
	}
}

// structuringScore flags an amount sitting just under the PMLA
// reporting threshold when another similar-range transaction from the
// same sender occurred in the last 24h — the classic structuring pattern.
// The scored transaction itself (matched by hash) is not counted.
func structuringScore(amount float64, hash string, recent24h []*models.Transaction) int {
	low := 0.95 * structuringThreshold
	if amount < low || amount >= structuringThreshold {
		return 0
	}
	for _, other := range recent24h {
		if other.TransactionHash == hash {
			continue
		}
		if other.Amount >= low && other.Amount < structuringThreshold {
			return 30
		}
	}
	return 0
}
