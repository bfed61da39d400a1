// Package matcher implements the bank feed matching engine: a scored
// heuristic matcher that reconciles imported bank statement lines against
// internal financial records (receipts and expenses).
//
// Matching proceeds in three stages:
//  1. Scoring: each (line, record) pair is scored 0-100 from weighted
//     independent signals (amount, date, reference, counterparty, keywords).
//  2. Rule evaluation: user-configured structured rules add a signed delta
//     on top of the heuristic score.
//  3. Ranking: candidates are ordered deterministically and classified as
//     auto-matchable, suggest-only or no-candidate.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultMatchingPolicy())
//	result := m.Rank(line, records, nil, rules)
//	if result.Classification == matcher.ClassAutoMatch {
//		best := result.Suggestions[0]
//		// persist best through the data store
//	}
package matcher

import (
	"fmt"
)

// SignalWeights defines the points each heuristic signal contributes to the
// confidence score. Signals are independent and additive; the sum is capped
// at 100.
type SignalWeights struct {
	ExactAmount  int `json:"exact_amount"`
	CloseAmount  int `json:"close_amount"`
	Reference    int `json:"reference"`
	SameDate     int `json:"same_date"`
	CloseDate    int `json:"close_date"`
	Counterparty int `json:"counterparty"`
	Keyword      int `json:"keyword"`
}

// Validate checks that all weights are non-negative
func (w *SignalWeights) Validate() error {
	weights := map[string]int{
		"exact_amount": w.ExactAmount,
		"close_amount": w.CloseAmount,
		"reference":    w.Reference,
		"same_date":    w.SameDate,
		"close_date":   w.CloseDate,
		"counterparty": w.Counterparty,
		"keyword":      w.Keyword,
	}

	for name, weight := range weights {
		if weight < 0 {
			return fmt.Errorf("%s weight cannot be negative: %d", name, weight)
		}
		if weight > 100 {
			return fmt.Errorf("%s weight cannot exceed 100: %d", name, weight)
		}
	}

	return nil
}

// MatchingPolicy holds the tunable parameters of the matching engine.
// The signal weights and the auto-match threshold are operational policy,
// not fixed law; different deployments may tighten or relax them.
type MatchingPolicy struct {
	// AutoMatchThreshold is the minimum score for a match to be applied
	// without human confirmation
	AutoMatchThreshold int `json:"auto_match_threshold"`

	// MaxSuggestions caps the number of ranked suggestions kept per line
	MaxSuggestions int `json:"max_suggestions"`

	// CloseAmountPercent is the tolerance, in percent, for the close-amount signal
	CloseAmountPercent float64 `json:"close_amount_percent"`

	// CloseDateDays is the calendar-day window for the close-date signal
	CloseDateDays int `json:"close_date_days"`

	// MinTokenLength is the minimum length of a description token considered
	// significant for the keyword signal
	MinTokenLength int `json:"min_token_length"`

	// Weights holds the per-signal point values
	Weights SignalWeights `json:"weights"`
}

// DefaultMatchingPolicy returns the policy observed in production: the
// weights sum well past 100 so several strong signals saturate the score.
func DefaultMatchingPolicy() *MatchingPolicy {
	return &MatchingPolicy{
		AutoMatchThreshold: 85,
		MaxSuggestions:     5,
		CloseAmountPercent: 1.0,
		CloseDateDays:      3,
		MinTokenLength:     4,
		Weights: SignalWeights{
			ExactAmount:  40,
			CloseAmount:  20,
			Reference:    30,
			SameDate:     20,
			CloseDate:    10,
			Counterparty: 15,
			Keyword:      15,
		},
	}
}

// StrictMatchingPolicy returns a policy that only auto-matches near-perfect pairs
func StrictMatchingPolicy() *MatchingPolicy {
	policy := DefaultMatchingPolicy()
	policy.AutoMatchThreshold = 95
	policy.CloseAmountPercent = 0.0
	policy.CloseDateDays = 1
	return policy
}

// RelaxedMatchingPolicy returns a policy suited to exploratory matching runs
func RelaxedMatchingPolicy() *MatchingPolicy {
	policy := DefaultMatchingPolicy()
	policy.AutoMatchThreshold = 70
	policy.MaxSuggestions = 10
	policy.CloseAmountPercent = 2.0
	policy.CloseDateDays = 7
	return policy
}

// Validate checks if the matching policy is valid
func (p *MatchingPolicy) Validate() error {
	if p.AutoMatchThreshold < 1 || p.AutoMatchThreshold > 100 {
		return fmt.Errorf("auto-match threshold must be between 1 and 100: %d", p.AutoMatchThreshold)
	}

	if p.MaxSuggestions <= 0 {
		return fmt.Errorf("max suggestions must be positive: %d", p.MaxSuggestions)
	}

	if p.CloseAmountPercent < 0.0 || p.CloseAmountPercent > 100.0 {
		return fmt.Errorf("close amount percent must be between 0.0 and 100.0: %f", p.CloseAmountPercent)
	}

	if p.CloseDateDays < 0 {
		return fmt.Errorf("close date days cannot be negative: %d", p.CloseDateDays)
	}

	if p.MinTokenLength < 1 {
		return fmt.Errorf("min token length must be positive: %d", p.MinTokenLength)
	}

	if err := p.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Clone creates a deep copy of the matching policy
func (p *MatchingPolicy) Clone() *MatchingPolicy {
	if p == nil {
		return nil
	}

	clone := *p
	return &clone
}

// String returns a human-readable description of the policy
func (p *MatchingPolicy) String() string {
	return fmt.Sprintf("MatchingPolicy{Threshold: %d, MaxSuggestions: %d, CloseAmount: %.1f%%, CloseDate: %d days}",
		p.AutoMatchThreshold, p.MaxSuggestions, p.CloseAmountPercent, p.CloseDateDays)
}
