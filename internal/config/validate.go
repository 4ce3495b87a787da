package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that cannot be repaired by
// normalization. It returns all problems at once so operators can fix a
// config file in a single pass.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Redis.URL) == "" {
		problems = append(problems, "redis.url must be set")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn must be set")
	}
	if strings.TrimSpace(c.S3.UploadBucket) == "" {
		problems = append(problems, "s3.upload_bucket must be set")
	}
	if strings.TrimSpace(c.S3.HLSBucket) == "" {
		problems = append(problems, "s3.hls_bucket must be set")
	}
	if strings.ContainsAny(c.Worker.Name, " \t") {
		problems = append(problems, "worker.name must not contain whitespace (it is used as a queue name and key scope)")
	}
	if c.Worker.HeartbeatTTLSeconds <= c.Worker.HeartbeatIntervalSeconds {
		problems = append(problems, "worker.heartbeat_ttl_seconds must exceed worker.heartbeat_interval_seconds or heartbeats expire between samples")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
