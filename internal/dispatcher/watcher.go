package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/config"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/objectstore"
)

// ObjectLister enumerates uploaded source videos.
type ObjectLister interface {
	ListVideos(ctx context.Context, bucket, prefix string) ([]objectstore.Object, error)
}

// Enqueuer hands an encode task to a worker's queue.
type Enqueuer interface {
	EnqueueEncode(ctx context.Context, hostname, videoID, jobID string) error
}

// Picker chooses the target worker for the next assignment.
type Picker interface {
	Best(ctx context.Context) (*Candidate, error)
}

// Catalog persists the records created during an assignment.
type Catalog interface {
	SaveVideo(ctx context.Context, v *catalog.Video) error
	SaveJob(ctx context.Context, job *catalog.EncodingJob) error
}

// Dedup remembers which object versions were already assigned.
type Dedup interface {
	LastSeenETag(ctx context.Context, objectKey string) (string, bool, error)
	RememberETag(ctx context.Context, objectKey, etag string) error
}

// Watcher polls the upload bucket and assigns each new video version to the
// least loaded worker.
type Watcher struct {
	cfg     *config.Config
	log     *slog.Logger
	objects ObjectLister
	picker  Picker
	catalog Catalog
	queue   Enqueuer
	dedup   Dedup
}

// NewWatcher wires a watcher from its collaborators.
func NewWatcher(cfg *config.Config, log *slog.Logger, objects ObjectLister, picker Picker, store Catalog, queue Enqueuer, dedup Dedup) *Watcher {
	return &Watcher{
		cfg:     cfg,
		log:     log.With(logging.String(logging.FieldComponent, "dispatcher")),
		objects: objects,
		picker:  picker,
		catalog: store,
		queue:   queue,
		dedup:   dedup,
	}
}

// Run polls until ctx is canceled. A failed cycle is logged and followed by
// a cooldown so a broken bucket or broker does not spin the loop.
func (w *Watcher) Run(ctx context.Context) error {
	poll := time.Duration(w.cfg.Dispatcher.PollIntervalSeconds) * time.Second
	cooldown := time.Duration(w.cfg.Dispatcher.ErrorCooldownSeconds) * time.Second

	w.log.Info("upload watcher started",
		logging.String("bucket", w.cfg.S3.UploadBucket),
		logging.String("prefix", w.cfg.Dispatcher.UploadPrefix))

	for {
		delay := poll
		if err := w.Cycle(ctx); err != nil {
			w.log.Error("watch cycle failed", logging.Error(err))
			delay = cooldown
		}
		select {
		case <-ctx.Done():
			w.log.Info("upload watcher stopping")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Cycle lists the upload prefix once and assigns every object whose content
// version has not been assigned before.
func (w *Watcher) Cycle(ctx context.Context) error {
	objects, err := w.objects.ListVideos(ctx, w.cfg.S3.UploadBucket, w.cfg.Dispatcher.UploadPrefix)
	if err != nil {
		return fmt.Errorf("list uploads: %w", err)
	}

	for _, obj := range objects {
		seen, found, err := w.dedup.LastSeenETag(ctx, obj.Key)
		if err != nil {
			return fmt.Errorf("dedup lookup %s: %w", obj.Key, err)
		}
		if found && seen == obj.ETag {
			continue
		}
		if err := w.assign(ctx, obj); err != nil {
			w.log.Error("assignment failed",
				logging.String(logging.FieldObjectKey, obj.Key),
				logging.Error(err))
			continue
		}
		// Remembered only after a successful assignment, so a failed
		// one is retried on the next poll.
		if err := w.dedup.RememberETag(ctx, obj.Key, obj.ETag); err != nil {
			return fmt.Errorf("dedup store %s: %w", obj.Key, err)
		}
	}
	return nil
}

func (w *Watcher) assign(ctx context.Context, obj objectstore.Object) error {
	backoff := time.Duration(w.cfg.Dispatcher.AssignBackoffSeconds) * time.Second
	attempts := w.cfg.Dispatcher.AssignRetries
	if attempts < 1 {
		attempts = 1
	}

	// One job id for the whole budget: a retried attempt updates the row
	// the failed one created instead of leaving an orphan behind.
	jobID := uuid.New()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if lastErr = w.assignOnce(ctx, obj, jobID); lastErr == nil {
			return nil
		}
		w.log.Warn("assignment attempt failed",
			logging.String(logging.FieldObjectKey, obj.Key),
			logging.Int("attempt", attempt),
			logging.Error(lastErr))
	}
	return lastErr
}

func (w *Watcher) assignOnce(ctx context.Context, obj objectstore.Object, jobID uuid.UUID) error {
	target, err := w.picker.Best(ctx)
	if err != nil {
		return fmt.Errorf("select worker: %w", err)
	}
	if target == nil {
		return fmt.Errorf("no live workers")
	}
	if target.Status == string(catalog.WorkerOverload) {
		return fmt.Errorf("least loaded worker %s is overloaded", target.Hostname)
	}

	video := &catalog.Video{
		S3ETag:       obj.ETag,
		Filename:     path.Base(obj.Key),
		OriginalPath: obj.Key,
		Status:       catalog.VideoEncoding,
	}
	if err := w.catalog.SaveVideo(ctx, video); err != nil {
		return fmt.Errorf("save video: %w", err)
	}

	job := &catalog.EncodingJob{
		ID:       jobID,
		VideoID:  video.ID,
		WorkerID: target.WorkerID,
		Status:   catalog.JobPending,
	}
	if err := w.catalog.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	if err := w.queue.EnqueueEncode(ctx, target.Hostname, video.ID.String(), job.ID.String()); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	w.log.Info("video assigned",
		logging.String(logging.FieldObjectKey, obj.Key),
		logging.String(logging.FieldVideoID, video.ID.String()),
		logging.String(logging.FieldJobID, job.ID.String()),
		logging.String(logging.FieldWorker, target.Hostname))
	return nil
}
