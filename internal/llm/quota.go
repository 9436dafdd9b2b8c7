package llm

import (
	"fmt"
	"sync"
	"time"
)

// Limits are the per-user ceilings inside one rolling window.
type Limits struct {
	Requests  int
	Tokens    int
	Cost      float64
	Window    time.Duration
	Retention time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		Requests:  30,
		Tokens:    50000,
		Cost:      0.50,
		Window:    time.Hour,
		Retention: 7 * 24 * time.Hour,
	}
}

type UsageRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
}

func (r UsageRecord) Tokens() int {
	return r.InputTokens + r.OutputTokens
}

// UsageStats aggregates records over a period.
type UsageStats struct {
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

type QuotaStatus struct {
	Allowed bool       `json:"allowed"`
	Window  UsageStats `json:"window"`
	Limits  UsageStats `json:"limits"`
	Reason  string     `json:"reason,omitempty"`
}

// QuotaTracker is a client-side soft limit on request volume and cost.
// Authoritative enforcement is the daily spend limit in CostControlService.
type QuotaTracker struct {
	mu        sync.Mutex
	records   map[string][]UsageRecord
	limits    Limits
	now       func() time.Time
	lastPrune time.Time
}

func NewQuotaTracker(limits Limits) *QuotaTracker {
	def := DefaultLimits()
	if limits.Window <= 0 {
		limits.Window = def.Window
	}
	if limits.Retention <= 0 {
		limits.Retention = def.Retention
	}
	return &QuotaTracker{
		records: make(map[string][]UsageRecord),
		limits:  limits,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (q *QuotaTracker) SetClock(now func() time.Time) {
	q.mu.Lock()
	q.now = now
	q.mu.Unlock()
}

// CanMakeRequest reports whether userID is under every ceiling in the trailing
// window. It does not reserve anything.
func (q *QuotaTracker) CanMakeRequest(userID string) bool {
	return q.Check(userID).Allowed
}

// Check is CanMakeRequest with the numbers behind the decision.
func (q *QuotaTracker) Check(userID string) QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	window := q.windowLocked(userID)
	status := QuotaStatus{
		Allowed: true,
		Window:  window,
		Limits:  UsageStats{Requests: q.limits.Requests, Tokens: q.limits.Tokens, Cost: q.limits.Cost},
	}

	switch {
	case q.limits.Requests > 0 && window.Requests >= q.limits.Requests:
		status.Reason = fmt.Sprintf("hourly request limit reached (%d/%d)", window.Requests, q.limits.Requests)
	case q.limits.Tokens > 0 && window.Tokens >= q.limits.Tokens:
		status.Reason = fmt.Sprintf("hourly token limit reached (%d/%d)", window.Tokens, q.limits.Tokens)
	case q.limits.Cost > 0 && window.Cost >= q.limits.Cost:
		status.Reason = fmt.Sprintf("hourly cost limit reached ($%.4f/$%.4f)", window.Cost, q.limits.Cost)
	default:
		return status
	}
	status.Allowed = false
	return status
}

// TrackUsage appends a record priced with the model's rate table.
func (q *QuotaTracker) TrackUsage(userID, model string, inputTokens, outputTokens int) UsageRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	record := UsageRecord{
		Timestamp:    now,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         EstimateLLMCost(inputTokens, outputTokens, model),
	}
	q.records[userID] = append(q.records[userID], record)

	if now.Sub(q.lastPrune) >= q.limits.Window {
		q.pruneLocked(now)
		q.lastPrune = now
	}
	return record
}

// Usage returns the user's stats inside the trailing window.
func (q *QuotaTracker) Usage(userID string) UsageStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.windowLocked(userID)
}

func (q *QuotaTracker) windowLocked(userID string) UsageStats {
	return aggregate(q.records[userID], q.now().Add(-q.limits.Window))
}

func (q *QuotaTracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-q.limits.Retention)
	for userID, records := range q.records {
		kept := records[:0]
		for _, r := range records {
			if r.Timestamp.After(cutoff) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(q.records, userID)
			continue
		}
		q.records[userID] = kept
	}
}

func aggregate(records []UsageRecord, since time.Time) UsageStats {
	var s UsageStats
	for _, r := range records {
		if !r.Timestamp.After(since) {
			continue
		}
		s.Requests++
		s.Tokens += r.Tokens()
		s.Cost += r.Cost
	}
	return s
}
