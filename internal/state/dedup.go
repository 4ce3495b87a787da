package state

import "context"

const dedupKeyPrefix = "s3_file:"

// LastSeenETag returns the fingerprint recorded for an object key, or
// ("", false) when the object has never been dispatched.
func (s *Store) LastSeenETag(ctx context.Context, objectKey string) (string, bool, error) {
	return s.Get(ctx, dedupKeyPrefix+objectKey)
}

// RememberETag records an object's fingerprint after a successful dispatch.
// No TTL: the entry persists until the object changes again.
func (s *Store) RememberETag(ctx context.Context, objectKey, etag string) error {
	return s.Set(ctx, dedupKeyPrefix+objectKey, etag)
}
