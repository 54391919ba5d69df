package models

import (
	"context"
	"time"
)

// RateBudget is an explicit posting allowance for one scheduling
// window. It replaces ambient mutable counters: the value travels
// through context and callers receive a decremented copy rather than
// sharing state.
type RateBudget struct {
	Limit   int       `json:"limit"`
	Used    int       `json:"used"`
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many posts the budget still allows. A budget
// past its reset time counts as fresh.
func (b RateBudget) Remaining(now time.Time) int {
	if !b.ResetAt.IsZero() && now.After(b.ResetAt) {
		return b.Limit
	}
	remaining := b.Limit - b.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Consume returns a copy of the budget with one use recorded. If the
// reset time has passed the usage counter restarts first.
func (b RateBudget) Consume(now time.Time) RateBudget {
	if !b.ResetAt.IsZero() && now.After(b.ResetAt) {
		b.Used = 0
		b.ResetAt = now.Add(24 * time.Hour)
	}
	b.Used++
	return b
}

type rateBudgetKey struct{}

// WithRateBudget attaches a budget to the context.
func WithRateBudget(ctx context.Context, b RateBudget) context.Context {
	return context.WithValue(ctx, rateBudgetKey{}, b)
}

// RateBudgetFrom extracts the budget from the context, reporting
// whether one was set.
func RateBudgetFrom(ctx context.Context) (RateBudget, bool) {
	b, ok := ctx.Value(rateBudgetKey{}).(RateBudget)
	return b, ok
}
