package catalog

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus represents the lifecycle of an uploaded source asset.
type VideoStatus string

const (
	VideoUploaded         VideoStatus = "uploaded"
	VideoEncoding         VideoStatus = "encoding"
	VideoReady            VideoStatus = "ready"
	VideoValidationFailed VideoStatus = "validation_failed"
	VideoEncodingFailed   VideoStatus = "encoding_failed"
	VideoFailed           VideoStatus = "failed"
)

// JobStatus represents the lifecycle of one encoding attempt.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobEncoding JobStatus = "encoding"
	JobSuccess  JobStatus = "success"
	JobFailed   JobStatus = "failed"
)

// Terminal reports whether the status may never be overwritten.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed
}

// WorkerStatus is the derived load category of a worker process.
type WorkerStatus string

const (
	WorkerIdle     WorkerStatus = "idle"
	WorkerNormal   WorkerStatus = "normal"
	WorkerBusy     WorkerStatus = "busy"
	WorkerOverload WorkerStatus = "overload"
)

// Video is one uploaded source asset. The (OriginalPath, S3ETag) pair is the
// dedup key: at most one row exists per observed combination.
type Video struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	S3ETag       string      `gorm:"column:s3_etag;size:255;not null;index:idx_videos_dedup" json:"s3_etag"`
	Filename     string      `gorm:"size:255;not null" json:"filename"`
	OriginalPath string      `gorm:"size:512;not null;index:idx_videos_dedup" json:"original_path"`
	HLSPath      string      `gorm:"column:hls_path;size:512" json:"hls_path,omitempty"`
	Status       VideoStatus `gorm:"size:20;index" json:"status"`
	EncodingJSON string      `gorm:"column:encoding_json" json:"encoding_json,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// EncodingJob is one attempt to transcode a Video. WorkerID is a loose string
// reference: the worker's catalog row may not exist yet at assignment time.
type EncodingJob struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID     uuid.UUID `gorm:"type:uuid;index" json:"video_id"`
	WorkerID    string    `gorm:"size:100" json:"worker_id,omitempty"`
	Status      JobStatus `gorm:"size:15;index" json:"status"`
	Progress    int       `json:"progress"`
	ErrorLog    string    `gorm:"column:error_log" json:"error_log,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Worker is a transcoding process's self-reported identity and load,
// upserted by hostname.
type Worker struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Hostname      string       `gorm:"size:255;uniqueIndex" json:"hostname"`
	CPUUsage      float64      `gorm:"column:cpu_usage" json:"cpu_usage"`
	MemoryUsage   float64      `gorm:"column:memory_usage" json:"memory_usage"`
	Status        WorkerStatus `gorm:"size:15;index" json:"status"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}
