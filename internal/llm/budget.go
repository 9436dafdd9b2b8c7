package llm

import (
	"context"
	"errors"
	"fmt"
)

var ErrBudgetExceeded = errors.New("llm budget exceeded")

// SpendLimiter is the authoritative daily spend store.
type SpendLimiter interface {
	CheckUserSpendLimit(ctx context.Context, userID string, estimatedCost float64) (*CostControlResult, error)
	RecordLLMRequest(ctx context.Context, userID string, cost float64) error
}

// Budget combines the hourly soft quota with the daily spend limit.
type Budget struct {
	Quota *QuotaTracker
	Spend SpendLimiter
	Model string
}

// Check returns ErrBudgetExceeded when either limit would block a request of
// the estimated size. Spend store failures are returned as-is.
func (b *Budget) Check(ctx context.Context, userID string, estimatedInput, estimatedOutput int) error {
	if b.Quota != nil {
		if status := b.Quota.Check(userID); !status.Allowed {
			return fmt.Errorf("%w: %s", ErrBudgetExceeded, status.Reason)
		}
	}
	if b.Spend == nil {
		return nil
	}

	res, err := b.Spend.CheckUserSpendLimit(ctx, userID, EstimateLLMCost(estimatedInput, estimatedOutput, b.Model))
	if err != nil {
		return fmt.Errorf("failed to check cost limits: %w", err)
	}
	if !res.Allowed {
		return fmt.Errorf("%w: %s", ErrBudgetExceeded, res.Reason)
	}
	return nil
}

// Record books actual usage against both limits.
func (b *Budget) Record(ctx context.Context, userID string, inputTokens, outputTokens int) error {
	cost := EstimateLLMCost(inputTokens, outputTokens, b.Model)
	if b.Quota != nil {
		cost = b.Quota.TrackUsage(userID, b.Model, inputTokens, outputTokens).Cost
	}
	if b.Spend == nil {
		return nil
	}
	if err := b.Spend.RecordLLMRequest(ctx, userID, cost); err != nil {
		return fmt.Errorf("failed to record LLM cost: %w", err)
	}
	return nil
}
