package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/config"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/services"
	"hlsfarm/internal/state"
	"hlsfarm/internal/taskq"
)

// Executor consumes encode tasks for one worker process. It holds the
// per-worker lock for the duration of each encode so the queue resubmits
// tasks that arrive while an encode is running.
type Executor struct {
	cfg      *config.Config
	log      *slog.Logger
	catalog  *catalog.Store
	state    *state.Store
	pipeline *Pipeline
}

// NewExecutor wires an executor from its collaborators.
func NewExecutor(cfg *config.Config, log *slog.Logger, store *catalog.Store, st *state.Store, pipeline *Pipeline) *Executor {
	return &Executor{
		cfg:      cfg,
		log:      log.With(logging.String(logging.FieldComponent, "executor")),
		catalog:  store,
		state:    st,
		pipeline: pipeline,
	}
}

// Register installs the executor's handlers on a task mux.
func (e *Executor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(taskq.TypeEncodeHLS, e.HandleEncode)
}

// HandleEncode processes one encode task. Lock contention returns a plain
// retryable error; every other failure is recorded in the catalog and not
// retried.
func (e *Executor) HandleEncode(ctx context.Context, task *asynq.Task) error {
	payload, err := taskq.ParseEncodePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	lockTTL := time.Duration(e.cfg.Worker.LockTTLSeconds) * time.Second
	acquired, err := e.state.AcquireWorkerLock(ctx, e.cfg.Worker.Name, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		e.log.Info("encode deferred, worker busy",
			logging.String(logging.FieldVideoID, payload.VideoID),
			logging.String(logging.FieldJobID, payload.JobID))
		return services.ErrWorkerBusy
	}
	defer func() {
		if err := e.state.ReleaseWorkerLock(context.WithoutCancel(ctx), e.cfg.Worker.Name); err != nil {
			e.log.Error("release lock failed", logging.Error(err))
		}
	}()

	video, job, err := e.loadRecords(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	e.log.Info("encode started",
		logging.String(logging.FieldVideoID, payload.VideoID),
		logging.String(logging.FieldJobID, payload.JobID),
		logging.String(logging.FieldObjectKey, video.OriginalPath))

	if err := e.pipeline.Run(ctx, video, job); err != nil {
		// The failure is already recorded against the job; retrying
		// the task would only repeat it.
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return nil
}

func (e *Executor) loadRecords(ctx context.Context, payload taskq.EncodePayload) (*catalog.Video, *catalog.EncodingJob, error) {
	videoID, err := uuid.Parse(payload.VideoID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse video id %q: %w", payload.VideoID, err)
	}
	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse job id %q: %w", payload.JobID, err)
	}

	video, err := e.catalog.GetVideo(ctx, videoID)
	if err != nil {
		return nil, nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	job, err := e.catalog.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return video, job, nil
}
