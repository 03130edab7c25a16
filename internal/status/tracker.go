// Package status tracks per-owner indexing progress in memory.
//
// State is lost on restart; an owner never seen reports PhaseNotStarted.
package status

import (
	"sync"
	"time"
)

// Phase is the indexing state of one owner.
type Phase string

const (
	// PhaseNotStarted is reported for owners with no crawl in this process.
	PhaseNotStarted Phase = "not_started"
	// PhaseStarting is set when a crawl is accepted but not yet walking.
	PhaseStarting Phase = "starting"
	// PhaseInProgress is set while the crawler walks.
	PhaseInProgress Phase = "in_progress"
	// PhaseCompleted is set when the crawl ends, successfully or not.
	PhaseCompleted Phase = "completed"
)

// State is an immutable snapshot of one owner's indexing progress.
type State struct {
	OwnerID    string    `json:"owner_id"`
	Phase      Phase     `json:"status"`
	Scanned    int       `json:"scanned"`
	Added      int       `json:"added"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// Running reports whether a crawl is accepted or walking.
func (s State) Running() bool {
	return s.Phase == PhaseStarting || s.Phase == PhaseInProgress
}

// Elapsed returns the crawl duration so far, or the total once finished.
func (s State) Elapsed() time.Duration {
	switch {
	case s.StartedAt.IsZero():
		return 0
	case s.FinishedAt.IsZero():
		return time.Since(s.StartedAt)
	default:
		return s.FinishedAt.Sub(s.StartedAt)
	}
}

// Tracker provides thread-safe per-owner indexing state.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// Get returns the owner's state, PhaseNotStarted if unknown.
func (t *Tracker) Get(ownerID string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.states[ownerID]
	if !ok {
		return State{OwnerID: ownerID, Phase: PhaseNotStarted}
	}
	return s
}

// Set moves the owner to phase. A run begins at PhaseStarting, or at
// PhaseInProgress when no start was announced; either resets the start
// time, counters and error of the previous run.
func (t *Tracker) Set(ownerID string, phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.states[ownerID]
	s.OwnerID = ownerID
	now := time.Now()

	switch phase {
	case PhaseStarting:
		s = State{OwnerID: ownerID, StartedAt: now}
	case PhaseInProgress:
		if s.Phase != PhaseStarting {
			s = State{OwnerID: ownerID, StartedAt: now}
		}
		s.FinishedAt = time.Time{}
	case PhaseCompleted:
		s.FinishedAt = now
	}
	s.Phase = phase
	t.states[ownerID] = s
}

// UpdateProgress records the running totals of the current crawl.
func (t *Tracker) UpdateProgress(ownerID string, scanned, added int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.states[ownerID]
	s.OwnerID = ownerID
	if s.Phase == "" {
		s.Phase = PhaseInProgress
	}
	s.Scanned = scanned
	s.Added = added
	t.states[ownerID] = s
}

// SetError records the last error of the current crawl. The phase is not
// changed; a failed crawl still ends in PhaseCompleted.
func (t *Tracker) SetError(ownerID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.states[ownerID]
	s.OwnerID = ownerID
	if s.Phase == "" {
		s.Phase = PhaseNotStarted
	}
	s.LastError = message
	t.states[ownerID] = s
}

// Snapshot returns a copy of all known states.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]State, len(t.states))
	for k, v := range t.states {
		out[k] = v
	}
	return out
}
