// Package claims coordinates exclusive per-source processing leases across
// the account fleet.
package claims

import (
	"context"
	"fmt"
	"log/slog"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/ports"
)

// DefaultMinMessages is the minimum number of text-bearing messages a pass
// must observe before a source may be marked complete. Near-empty passes are
// treated as transient fetch failures and retried.
const DefaultMinMessages = 2

// Decision is the coordinator's verdict on a claim attempt.
type Decision string

const (
	DecisionAcquired        Decision = "acquired"
	DecisionHeldByOther     Decision = "held_by_other"
	DecisionAlreadyComplete Decision = "already_complete"
)

// Coordinator enforces the Unclaimed -> ClaimedBy(account) -> Completed state
// machine. Exclusivity is enforced by the repository's conflict-aware insert,
// not in-process locks, since several processes may race on one source.
type Coordinator struct {
	repo        ports.ClaimRepository
	minMessages int
	logger      *slog.Logger
}

// NewCoordinator wires the claim repository. minMessages <= 0 selects the
// default completion threshold.
func NewCoordinator(repo ports.ClaimRepository, minMessages int, logger *slog.Logger) *Coordinator {
	if minMessages <= 0 {
		minMessages = DefaultMinMessages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{repo: repo, minMessages: minMessages, logger: logger}
}

// Acquire attempts to claim the source for the account. Claiming an unclaimed
// source succeeds; re-claiming by the holder is a no-op success; a source held
// by another account is rejected so its history is processed exactly once.
func (c *Coordinator) Acquire(ctx context.Context, sourceID int64, account string) (Decision, error) {
	record, err := c.repo.Claim(ctx, sourceID, account)
	if err != nil {
		return "", fmt.Errorf("claim source %d: %w", sourceID, err)
	}

	if record.Account != account {
		c.logger.Debug("source held by another account",
			"source_id", sourceID, "holder", record.Account, "account", account)
		return DecisionHeldByOther, nil
	}
	if record.State() == domain.ClaimCompleted {
		return DecisionAlreadyComplete, nil
	}
	return DecisionAcquired, nil
}

// Finish transitions the claim to Completed when the pass observed enough
// text messages. Short passes leave the claim held so a later pass retries;
// Finish reports whether completion happened.
func (c *Coordinator) Finish(ctx context.Context, sourceID int64, account string, textMessages int) (bool, error) {
	if textMessages < c.minMessages {
		c.logger.Debug("pass too small to complete source",
			"source_id", sourceID, "messages", textMessages, "min", c.minMessages)
		return false, nil
	}

	if err := c.repo.Complete(ctx, sourceID, account); err != nil {
		return false, fmt.Errorf("complete source %d: %w", sourceID, err)
	}
	return true, nil
}
