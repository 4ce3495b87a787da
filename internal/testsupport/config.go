package testsupport

import (
	"path/filepath"
	"testing"

	"hlsfarm/internal/config"
)

// NewConfig returns a validated config rooted in a per-test temp directory,
// with intervals shrunk so polling loops terminate quickly under test.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Worker.Name = "worker_test"
	cfg.Worker.HeartbeatIntervalSeconds = 1
	cfg.Worker.HeartbeatTTLSeconds = 2
	cfg.Dispatcher.PollIntervalSeconds = 1
	cfg.Dispatcher.ErrorCooldownSeconds = 1
	cfg.Dispatcher.AssignBackoffSeconds = 1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}
