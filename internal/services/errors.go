package services

import (
	"errors"
	"fmt"
	"strings"

	"hlsfarm/internal/catalog"
)

var (
	// ErrInput marks unusable source material (unreadable or zero duration).
	ErrInput = errors.New("input error")
	// ErrPipeline marks a media engine failure (non-zero exit).
	ErrPipeline = errors.New("pipeline error")
	// ErrValidation marks produced output that failed manifest verification.
	ErrValidation = errors.New("validation error")
	// ErrWorkerBusy marks lock contention: the task must be resubmitted
	// through the queue, it is not a job failure.
	ErrWorkerBusy = errors.New("worker busy")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above; nil leaves the error
// unclassified.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// VideoFailureStatus maps a pipeline error to the Video status the executor
// persists after the job fails.
func VideoFailureStatus(err error) catalog.VideoStatus {
	switch {
	case errors.Is(err, ErrInput), errors.Is(err, ErrPipeline):
		return catalog.VideoEncodingFailed
	case errors.Is(err, ErrValidation):
		return catalog.VideoValidationFailed
	default:
		return catalog.VideoFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
