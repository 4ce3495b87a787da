package state

import "context"

// Key of the global in-flight-encode counter. The counter is a completion
// barrier: the decrement that observes zero performs the shared side effect
// (catalog manifest regeneration) exactly once.
const inflightCounterKey = "count:master:"

// InflightIncr marks the start of one video's contribution to the barrier.
func (s *Store) InflightIncr(ctx context.Context) (int64, error) {
	return s.Incr(ctx, inflightCounterKey)
}

// InflightDecr marks one video finished and returns the post-decrement
// value. Callers compare the returned value to zero instead of re-reading
// the key, so two finishers can never both observe the zero transition.
func (s *Store) InflightDecr(ctx context.Context) (int64, error) {
	return s.Decr(ctx, inflightCounterKey)
}

// InflightReset deletes the counter key. Used after the zero transition and
// when a crash/restart miscount has driven the counter negative.
func (s *Store) InflightReset(ctx context.Context) error {
	return s.Del(ctx, inflightCounterKey)
}
