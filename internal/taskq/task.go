package taskq

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeEncodeHLS is the task type carried by every encode message.
const TypeEncodeHLS = "encode:hls"

// EncodePayload identifies the catalog records an encode task operates on.
type EncodePayload struct {
	VideoID string `json:"video_id"`
	JobID   string `json:"job_id"`
}

// NewEncodeTask builds an encode task for the given catalog records.
func NewEncodeTask(videoID, jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(EncodePayload{VideoID: videoID, JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal encode payload: %w", err)
	}
	return asynq.NewTask(TypeEncodeHLS, payload), nil
}

// ParseEncodePayload decodes a task's payload back into its identifiers.
func ParseEncodePayload(task *asynq.Task) (EncodePayload, error) {
	var payload EncodePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EncodePayload{}, fmt.Errorf("unmarshal encode payload: %w", err)
	}
	if payload.VideoID == "" || payload.JobID == "" {
		return EncodePayload{}, fmt.Errorf("encode payload missing identifiers")
	}
	return payload, nil
}
