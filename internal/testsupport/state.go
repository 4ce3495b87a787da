package testsupport

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hlsfarm/internal/state"
)

// NewState starts an in-process Redis and returns a state store bound to it.
// The miniredis handle is returned so tests can advance time to expire keys.
func NewState(t *testing.T) (*state.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return state.NewWithClient(client), mr
}
