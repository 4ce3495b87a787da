package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/config"
	"hlsfarm/internal/hls"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/media"
	"hlsfarm/internal/services"
	"hlsfarm/internal/state"
)

// Engine is the media tooling the pipeline drives.
type Engine interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	HasAudio(ctx context.Context, path string) bool
	Transcode(ctx context.Context, args []string, onProgress media.ProgressFunc) error
}

type ffmpegEngine struct{}

func (ffmpegEngine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return media.ProbeDuration(ctx, path)
}

func (ffmpegEngine) HasAudio(ctx context.Context, path string) bool {
	return media.HasAudio(ctx, path)
}

func (ffmpegEngine) Transcode(ctx context.Context, args []string, onProgress media.ProgressFunc) error {
	return media.Transcode(ctx, args, onProgress)
}

// NewFFmpegEngine returns the production engine backed by the ffmpeg and
// ffprobe binaries.
func NewFFmpegEngine() Engine { return ffmpegEngine{} }

// ObjectStore is the bucket access the pipeline needs.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key, localPath string) error
	UploadFolder(ctx context.Context, localDir, bucket, prefix string) error
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType, cacheControl string) error
	ListCommonPrefixes(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Pipeline turns one uploaded source video into a published HLS stream and
// records the outcome in the catalog.
type Pipeline struct {
	cfg     *config.Config
	log     *slog.Logger
	catalog *catalog.Store
	state   *state.Store
	objects ObjectStore
	engine  Engine
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(cfg *config.Config, log *slog.Logger, store *catalog.Store, st *state.Store, objects ObjectStore, engine Engine) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		log:     log.With(logging.String(logging.FieldComponent, "pipeline")),
		catalog: store,
		state:   st,
		objects: objects,
		engine:  engine,
	}
}

// Run executes the full encode for the given records. The outcome, success
// or failure, is persisted before returning; the returned error reflects
// what went wrong for the caller's retry decision.
func (p *Pipeline) Run(ctx context.Context, video *catalog.Video, job *catalog.EncodingJob) error {
	workDir := filepath.Join(p.cfg.Paths.StagingDir, video.ID.String())
	sourcePath := workDir + "_source" + strings.ToLower(filepath.Ext(video.Filename))

	runErr := p.encode(ctx, video, job, workDir, sourcePath)
	if runErr != nil {
		video.Status = services.VideoFailureStatus(runErr)
		job.Status = catalog.JobFailed
		job.ErrorLog = runErr.Error()
		p.log.Error("encode failed",
			logging.String(logging.FieldVideoID, video.ID.String()),
			logging.String(logging.FieldJobID, job.ID.String()),
			logging.Error(runErr))
	}

	// Outcomes are persisted even when the task context was canceled.
	persistCtx := context.WithoutCancel(ctx)
	if err := p.catalog.SaveVideo(persistCtx, video); err != nil {
		p.log.Error("persist video outcome failed",
			logging.String(logging.FieldVideoID, video.ID.String()),
			logging.Error(err))
	}
	if err := p.catalog.SaveJob(persistCtx, job); err != nil {
		p.log.Error("persist job outcome failed",
			logging.String(logging.FieldJobID, job.ID.String()),
			logging.Error(err))
	}

	if err := os.Remove(sourcePath); err != nil && !os.IsNotExist(err) {
		p.log.Warn("source cleanup failed", logging.Error(err))
	}
	if err := os.RemoveAll(workDir); err != nil {
		p.log.Warn("workdir cleanup failed", logging.Error(err))
	}
	return runErr
}

func (p *Pipeline) encode(ctx context.Context, video *catalog.Video, job *catalog.EncodingJob, workDir, sourcePath string) error {
	for i := range hls.Ladder() {
		tierDir := filepath.Join(workDir, strconv.Itoa(i))
		if err := os.MkdirAll(tierDir, 0o755); err != nil {
			return services.Wrap(nil, "setup", "mkdir", tierDir, err)
		}
	}

	if err := p.objects.Download(ctx, p.cfg.S3.UploadBucket, video.OriginalPath, sourcePath); err != nil {
		return services.Wrap(nil, "download", "get_object", video.OriginalPath, err)
	}

	if _, err := p.state.InflightIncr(ctx); err != nil {
		return services.Wrap(nil, "setup", "inflight_incr", "", err)
	}

	duration, err := p.engine.ProbeDuration(ctx, sourcePath)
	if err != nil {
		return err
	}

	job.Status = catalog.JobEncoding
	if err := p.catalog.SaveJob(ctx, job); err != nil {
		return services.Wrap(nil, "encode", "save_job", "", err)
	}

	hasAudio := p.engine.HasAudio(ctx, sourcePath)
	args := hls.TranscodeArgs(sourcePath, workDir, hasAudio)

	lastPersisted := 0
	onProgress := func(elapsed float64) {
		pct := media.ProgressPercent(elapsed, duration)
		if pct <= lastPersisted {
			return
		}
		lastPersisted = pct
		if err := p.catalog.UpdateJobProgress(ctx, job.ID, pct); err != nil {
			p.log.Warn("progress update failed",
				logging.String(logging.FieldJobID, job.ID.String()),
				logging.Error(err))
		}
	}
	if err := p.engine.Transcode(ctx, args, onProgress); err != nil {
		return err
	}

	report := hls.VerifyOutput(filepath.Join(workDir, hls.MasterPlaylistName))
	video.EncodingJSON = report.JSON()
	if !report.IsValid {
		return services.Wrap(services.ErrValidation, "verify", "verify_output", report.Error, nil)
	}

	streamPrefix := hls.EncodeRootPrefix + strings.TrimSuffix(video.Filename, filepath.Ext(video.Filename))
	if err := p.objects.UploadFolder(ctx, workDir, p.cfg.S3.HLSBucket, streamPrefix); err != nil {
		return services.Wrap(nil, "publish", "upload_folder", streamPrefix, err)
	}

	if err := p.settleInflight(ctx); err != nil {
		return err
	}

	video.HLSPath = streamPrefix + "/" + hls.MasterPlaylistName
	video.Status = catalog.VideoReady
	job.Status = catalog.JobSuccess
	job.Progress = 100

	p.log.Info("encode published",
		logging.String(logging.FieldVideoID, video.ID.String()),
		logging.String(logging.FieldJobID, job.ID.String()),
		logging.String(logging.FieldObjectKey, streamPrefix))
	return nil
}

// settleInflight decrements the shared counter after a publish. The worker
// that observes the counter reach exactly zero rebuilds the aggregate
// catalog manifest; an underflowed counter is discarded without rebuilding.
func (p *Pipeline) settleInflight(ctx context.Context) error {
	remaining, err := p.state.InflightDecr(ctx)
	if err != nil {
		return services.Wrap(nil, "publish", "inflight_decr", "", err)
	}
	switch {
	case remaining == 0:
		if err := p.rebuildCatalogManifest(ctx); err != nil {
			return err
		}
		return p.state.InflightReset(ctx)
	case remaining < 0:
		return p.state.InflightReset(ctx)
	default:
		return nil
	}
}

func (p *Pipeline) rebuildCatalogManifest(ctx context.Context) error {
	prefixes, err := p.objects.ListCommonPrefixes(ctx, p.cfg.S3.HLSBucket, hls.EncodeRootPrefix)
	if err != nil {
		return services.Wrap(nil, "publish", "list_streams", "", err)
	}
	manifest := hls.BuildCatalogManifest(prefixes)
	err = p.objects.PutObject(ctx, p.cfg.S3.HLSBucket, hls.CatalogManifestKey,
		[]byte(manifest), hls.CatalogManifestContentType, hls.CatalogManifestCacheControl)
	if err != nil {
		return services.Wrap(nil, "publish", "put_catalog_manifest", "", err)
	}
	p.log.Info("catalog manifest rebuilt", logging.Int("streams", len(prefixes)))
	return nil
}
