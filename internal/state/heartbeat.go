package state

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const heartbeatKeyPrefix = "status:"

// Heartbeat is a worker's self-expiring load report.
type Heartbeat struct {
	Hostname string
	WorkerID string
	Status   string
	CPU      float64
	Memory   float64
}

// PublishHeartbeat stores the heartbeat hash under the worker's key with the
// given TTL. A worker that stops publishing disappears from selection once
// the TTL lapses; that is the sole liveness mechanism.
func (s *Store) PublishHeartbeat(ctx context.Context, hb Heartbeat, ttl time.Duration) error {
	key := heartbeatKeyPrefix + hb.Hostname
	fields := map[string]string{
		"cpu":    strconv.FormatFloat(hb.CPU, 'f', -1, 64),
		"memory": strconv.FormatFloat(hb.Memory, 'f', -1, 64),
		"id":     hb.WorkerID,
		"status": hb.Status,
	}
	if err := s.HSet(ctx, key, fields); err != nil {
		return err
	}
	return s.Expire(ctx, key, ttl)
}

// LiveHeartbeats returns every heartbeat whose key has not yet expired.
// Iteration order is whatever the key scan yields; callers must not rely
// on it being stable.
func (s *Store) LiveHeartbeats(ctx context.Context) ([]Heartbeat, error) {
	keys, err := s.ScanKeys(ctx, heartbeatKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	beats := make([]Heartbeat, 0, len(keys))
	for _, key := range keys {
		fields, err := s.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// Expired between scan and fetch.
			continue
		}
		cpu, _ := strconv.ParseFloat(fields["cpu"], 64)
		memory, _ := strconv.ParseFloat(fields["memory"], 64)
		beats = append(beats, Heartbeat{
			Hostname: strings.TrimPrefix(key, heartbeatKeyPrefix),
			WorkerID: fields["id"],
			Status:   fields["status"],
			CPU:      cpu,
			Memory:   memory,
		})
	}
	return beats, nil
}
