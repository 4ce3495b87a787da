package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeS3()
	c.normalizeRedis()
	c.normalizeDatabase()
	c.normalizeWorker()
	c.normalizeDispatcher()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeS3() {
	if value, ok := os.LookupEnv("S3_ENDPOINT"); ok {
		c.S3.Endpoint = strings.TrimSpace(value)
	}
	if c.S3.AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY"); ok {
			c.S3.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.S3.SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_KEY"); ok {
			c.S3.SecretKey = strings.TrimSpace(value)
		}
	}
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	if c.S3.Region == "" {
		c.S3.Region = defaultS3Region
	}
	if c.S3.UploadBucket == "" {
		c.S3.UploadBucket = defaultUploadBucket
	}
	if c.S3.HLSBucket == "" {
		c.S3.HLSBucket = defaultHLSBucket
	}
}

func (c *Config) normalizeRedis() {
	if value, ok := os.LookupEnv("REDIS_URL"); ok {
		c.Redis.URL = strings.TrimSpace(value)
	}
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	if c.Redis.URL == "" {
		c.Redis.URL = defaultRedisURL
	}
}

func (c *Config) normalizeDatabase() {
	if value, ok := os.LookupEnv("DATABASE_URL"); ok {
		c.Database.DSN = strings.TrimSpace(value)
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaultDBMaxOpenConns
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaultDBMaxIdleConns
	}
}

func (c *Config) normalizeWorker() {
	if value, ok := os.LookupEnv("WORKER_NAME"); ok {
		c.Worker.Name = strings.TrimSpace(value)
	}
	c.Worker.Name = strings.TrimSpace(c.Worker.Name)
	if c.Worker.Name == "" {
		c.Worker.Name = defaultWorkerName
	}
	if c.Worker.HeartbeatIntervalSeconds <= 0 {
		c.Worker.HeartbeatIntervalSeconds = defaultHeartbeatInterval
	}
	if c.Worker.HeartbeatTTLSeconds <= 0 {
		c.Worker.HeartbeatTTLSeconds = defaultHeartbeatTTL
	}
	if c.Worker.LockTTLSeconds <= 0 {
		c.Worker.LockTTLSeconds = defaultLockTTL
	}
}

func (c *Config) normalizeDispatcher() {
	if c.Dispatcher.PollIntervalSeconds <= 0 {
		c.Dispatcher.PollIntervalSeconds = defaultPollInterval
	}
	if c.Dispatcher.ErrorCooldownSeconds <= 0 {
		c.Dispatcher.ErrorCooldownSeconds = defaultErrorCooldown
	}
	if c.Dispatcher.AssignRetries <= 0 {
		c.Dispatcher.AssignRetries = defaultAssignRetries
	}
	if c.Dispatcher.AssignBackoffSeconds <= 0 {
		c.Dispatcher.AssignBackoffSeconds = defaultAssignBackoff
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = defaultQueueMaxRetries
	}
	if c.Queue.RetryDelaySeconds <= 0 {
		c.Queue.RetryDelaySeconds = defaultQueueRetryDelay
	}
	if c.API.Bind = strings.TrimSpace(c.API.Bind); c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.PageSize <= 0 {
		c.API.PageSize = defaultAPIPageSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
