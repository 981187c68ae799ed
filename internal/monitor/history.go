package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobName identifies a scheduled job.
type JobName string

// Job names.
const (
	JobPing     JobName = "ping"
	JobGetStats JobName = "get_stats"
	JobReboot   JobName = "reboot"
)

// FailureThreshold is the number of bounded failures that triggers a reboot.
const FailureThreshold = 3

// JobRunSummary records the outcome of one job run.
type JobRunSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        JobName   `json:"name"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Succeeded   bool      `json:"succeeded"`
}

func newSummary(name JobName, now time.Time) JobRunSummary {
	return JobRunSummary{ID: uuid.New(), Name: name, StartedAt: now, Succeeded: true}
}

func (s JobRunSummary) String() string {
	return fmt.Sprintf("%s(%s succeeded=%t)", s.Name, s.ID, s.Succeeded)
}

// Verdict is the result of scanning a history.
type Verdict struct {
	Succeeded   int  `json:"succeeded"`
	Failed      int  `json:"failed"`
	Recommended bool `json:"recommended"`
}

// Evaluate scans history from newest to oldest. It stops at a reboot entry,
// or once two successes enclose at least one failure. Failures count only
// after a newer success has been seen, and each counted failure collapses
// the success run before it to one. A reboot is recommended when at least
// FailureThreshold failures are enclosed by successes on both sides.
func Evaluate(history []JobRunSummary) Verdict {
	var v Verdict
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Name == JobReboot {
			break
		}
		if e.Succeeded {
			v.Succeeded++
			if v.Succeeded == 2 && v.Failed > 0 {
				break
			}
		} else if v.Succeeded > 0 {
			v.Failed++
			v.Succeeded = 1
		}
	}
	v.Recommended = v.Succeeded >= 2 && v.Failed >= FailureThreshold
	return v
}

// IsRebootRecommended reports whether history warrants a reboot. It does
// not modify history.
func IsRebootRecommended(history []JobRunSummary) bool {
	return Evaluate(history).Recommended
}

// History is the rolling job run history. It is bounded and reset by every
// reboot attempt.
type History struct {
	mu      sync.RWMutex
	entries []JobRunSummary
	limit   int
}

// NewHistory creates a history keeping at most limit entries; limit <= 0
// means unbounded.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Append adds s, dropping the oldest entry when the bound is reached.
func (h *History) Append(s JobRunSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, s)
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = append(h.entries[:0:0], h.entries[len(h.entries)-h.limit:]...)
	}
}

// Reset replaces the whole history with s.
func (h *History) Reset(s JobRunSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = []JobRunSummary{s}
}

// Snapshot returns a copy of the entries, oldest first.
func (h *History) Snapshot() []JobRunSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]JobRunSummary, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
