package dispatcher

import (
	"context"

	"hlsfarm/internal/state"
)

// Candidate is a live worker considered for an assignment, scored by its
// latest heartbeat.
type Candidate struct {
	Hostname string
	WorkerID string
	Status   string
	Score    float64
}

// Selector picks the least loaded live worker.
type Selector struct {
	state *state.Store
}

// NewSelector builds a selector over the given shared state.
func NewSelector(st *state.Store) *Selector {
	return &Selector{state: st}
}

// Best returns the live worker with the lowest load score, or nil when no
// heartbeat is live. Score is the mean of CPU and memory usage; ties keep
// the first candidate seen.
func (s *Selector) Best(ctx context.Context) (*Candidate, error) {
	heartbeats, err := s.state.LiveHeartbeats(ctx)
	if err != nil {
		return nil, err
	}

	var best *Candidate
	for _, hb := range heartbeats {
		candidate := &Candidate{
			Hostname: hb.Hostname,
			WorkerID: hb.WorkerID,
			Status:   hb.Status,
			Score:    (hb.CPU + hb.Memory) / 2,
		}
		if best == nil || candidate.Score < best.Score {
			best = candidate
		}
	}
	return best, nil
}
