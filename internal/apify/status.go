package apify

import (
	"errors"
	"fmt"
	"time"
)

// Load status graph:
//
//	queued ──► running ──► processing ──► completed
//	   │          │             │
//	   └──────────┴─────────────┴──► failed
//
// completed and failed are terminal.

// Status is the lifecycle state of a background load.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrInvalidTransition is returned when a load would skip or leave a
// terminal state.
var ErrInvalidTransition = errors.New("invalid load status transition")

var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusRunning, StatusFailed},
	StatusRunning:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusQueued, StatusRunning, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown load status %q", s)
}

// IsTransitionAllowed reports whether from → to is an edge of the graph.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}

// LoadStatus is the pollable progress report of one background load.
type LoadStatus struct {
	RunID         string     `json:"runId"`
	ActorName     string     `json:"actorName"`
	Status        Status     `json:"status"`
	Progress      int        `json:"progress"`
	JobsFetched   int        `json:"jobsFetched"`
	JobsSynced    int        `json:"jobsSynced"`
	Errors        []string   `json:"errors"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	EstimatedCost float64    `json:"estimatedCost"`
}

// advance moves the load to the next state and raises progress to at least
// progress.
func (s *LoadStatus) advance(to Status, progress int) error {
	if !IsTransitionAllowed(s.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.setProgress(progress)
	return nil
}

func (s *LoadStatus) setProgress(p int) {
	p = max(0, min(100, p))
	if p > s.Progress {
		s.Progress = p
	}
}
