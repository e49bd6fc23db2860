// Package admission implements the per-client concurrency limiter in front
// of job submission. It is advisory, best-effort control: losing a race
// costs a wasted generation call, never a correctness violation, so no
// distributed lock is used.
package admission

import (
	"sync"
	"time"

	"mangagen/internal/domain"
)

// ActiveJob records the in-flight job blocking further submissions from the
// same client.
type ActiveJob struct {
	JobID     string
	URL       string
	StartedAt time.Time
}

// Usage is a read-only snapshot of one client's state.
type Usage struct {
	Date   string     `json:"date"`
	Count  int        `json:"count"`
	Active *ActiveJob `json:"-"`
}

type clientState struct {
	date   string
	count  int
	active *ActiveJob
}

// Gate tracks daily usage and at most one active job per client. The
// reservation expires after timeout so a crashed runner cannot block a
// client forever.
type Gate struct {
	mu      sync.Mutex
	clients map[string]*clientState
	timeout time.Duration

	now func() time.Time
}

// NewGate creates a gate whose reservations expire after timeout.
func NewGate(timeout time.Duration) *Gate {
	return &Gate{
		clients: make(map[string]*clientState),
		timeout: timeout,
		now:     time.Now,
	}
}

// CheckAndReserve admits a submission or returns domain.ErrConcurrent.
//
// A client with an unexpired active job is blocked only when the requested
// url differs from the active one; resubmitting the same url is admitted so
// a client can retry a page it is already waiting on.
func (g *Gate) CheckAndReserve(clientID, url, jobID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	state := g.stateLocked(clientID, now)

	if state.active != nil {
		if now.Sub(state.active.StartedAt) >= g.timeout {
			state.active = nil
		} else if state.active.URL != url {
			return domain.ErrConcurrent
		}
	}

	state.count++
	state.active = &ActiveJob{JobID: jobID, URL: url, StartedAt: now}
	return nil
}

// Release clears the client's reservation. It is idempotent and ignores
// stale job ids so a slow completion cannot clear a newer reservation.
func (g *Gate) Release(clientID, jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.clients[clientID]
	if !ok || state.active == nil {
		return
	}
	if state.active.JobID != jobID {
		return
	}
	state.active = nil
}

// Usage returns the client's current daily snapshot.
func (g *Gate) Usage(clientID string) Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	state := g.stateLocked(clientID, now)
	active := state.active
	if active != nil && now.Sub(active.StartedAt) >= g.timeout {
		active = nil
	}
	var cp *ActiveJob
	if active != nil {
		c := *active
		cp = &c
	}
	return Usage{Date: state.date, Count: state.count, Active: cp}
}

// stateLocked fetches the client state, resetting the daily count on date
// rollover. Caller holds g.mu.
func (g *Gate) stateLocked(clientID string, now time.Time) *clientState {
	day := now.Format("2006-01-02")
	state, ok := g.clients[clientID]
	if !ok {
		state = &clientState{date: day}
		g.clients[clientID] = state
	}
	if state.date != day {
		state.date = day
		state.count = 0
	}
	return state
}
