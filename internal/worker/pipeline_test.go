package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/config"
	"hlsfarm/internal/hls"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/media"
	"hlsfarm/internal/services"
	"hlsfarm/internal/state"
	"hlsfarm/internal/testsupport"
)

const validMaster = "#EXTM3U\n" +
	"#EXT-X-VERSION:6\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=896000,RESOLUTION=640x360\n" +
	"0/index.m3u8\n"

const validRendition = "#EXTM3U\n" +
	"#EXT-X-VERSION:6\n" +
	"#EXT-X-TARGETDURATION:2\n" +
	"#EXT-X-MEDIA-SEQUENCE:0\n" +
	"#EXTINF:2.000,\n" +
	"0.ts\n" +
	"#EXT-X-ENDLIST\n"

const openEndedRendition = "#EXTM3U\n" +
	"#EXT-X-VERSION:6\n" +
	"#EXT-X-TARGETDURATION:2\n" +
	"#EXT-X-MEDIA-SEQUENCE:0\n" +
	"#EXTINF:2.000,\n" +
	"0.ts\n"

type fakeEngine struct {
	duration     float64
	probeErr     error
	transcodeErr error
	elapsed      []float64
	output       map[string]string
	outDir       string
}

func (f *fakeEngine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.duration, nil
}

func (f *fakeEngine) HasAudio(ctx context.Context, path string) bool { return true }

func (f *fakeEngine) Transcode(ctx context.Context, args []string, onProgress media.ProgressFunc) error {
	for _, elapsed := range f.elapsed {
		onProgress(elapsed)
	}
	if f.transcodeErr != nil {
		return f.transcodeErr
	}
	for rel, content := range f.output {
		path := filepath.Join(f.outDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type putCall struct {
	key          string
	contentType  string
	cacheControl string
	body         string
}

type fakeObjects struct {
	prefixes    []string
	uploads     []string
	puts        []putCall
	downloadErr error
}

func (f *fakeObjects) Download(ctx context.Context, bucket, key, localPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte("source bytes"), 0o644)
}

func (f *fakeObjects) UploadFolder(ctx context.Context, localDir, bucket, prefix string) error {
	f.uploads = append(f.uploads, prefix)
	return nil
}

func (f *fakeObjects) PutObject(ctx context.Context, bucket, key string, body []byte, contentType, cacheControl string) error {
	f.puts = append(f.puts, putCall{key: key, contentType: contentType, cacheControl: cacheControl, body: string(body)})
	return nil
}

func (f *fakeObjects) ListCommonPrefixes(ctx context.Context, bucket, prefix string) ([]string, error) {
	return f.prefixes, nil
}

type pipelineFixture struct {
	cfg     *config.Config
	catalog *catalog.Store
	state   *state.Store
	objects *fakeObjects
	video   *catalog.Video
	job     *catalog.EncodingJob
}

func newPipelineFixture(t *testing.T, engine *fakeEngine) (*Pipeline, *pipelineFixture) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t)
	st, _ := testsupport.NewState(t)
	objects := &fakeObjects{prefixes: []string{"encode/movie/"}}

	video := &catalog.Video{
		S3ETag:       "etag-1",
		Filename:     "movie.mp4",
		OriginalPath: "upload/movie.mp4",
		Status:       catalog.VideoEncoding,
	}
	if err := store.SaveVideo(context.Background(), video); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	job := &catalog.EncodingJob{VideoID: video.ID, WorkerID: "id-a", Status: catalog.JobPending}
	if err := store.SaveJob(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	engine.outDir = filepath.Join(cfg.Paths.StagingDir, video.ID.String())

	p := NewPipeline(cfg, logging.NewNop(), store, st, objects, engine)
	return p, &pipelineFixture{cfg: cfg, catalog: store, state: st, objects: objects, video: video, job: job}
}

func TestPipelinePublishesValidEncode(t *testing.T) {
	engine := &fakeEngine{
		duration: 100,
		elapsed:  []float64{10, 30, 30, 60},
		output: map[string]string{
			"master.m3u8":  validMaster,
			"0/index.m3u8": validRendition,
		},
	}
	p, fx := newPipelineFixture(t, engine)

	if err := p.Run(context.Background(), fx.video, fx.job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	video, err := fx.catalog.GetVideo(context.Background(), fx.video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.Status != catalog.VideoReady {
		t.Errorf("video status = %q, want %q", video.Status, catalog.VideoReady)
	}
	if want := "encode/movie/" + hls.MasterPlaylistName; video.HLSPath != want {
		t.Errorf("hls path = %q, want %q", video.HLSPath, want)
	}
	if !strings.Contains(video.EncodingJSON, `"is_valid":true`) {
		t.Errorf("diagnostic payload = %q", video.EncodingJSON)
	}

	job, err := fx.catalog.GetJob(context.Background(), fx.job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != catalog.JobSuccess || job.Progress != 100 {
		t.Errorf("job = %q/%d, want success/100", job.Status, job.Progress)
	}

	if len(fx.objects.uploads) != 1 || fx.objects.uploads[0] != "encode/movie" {
		t.Errorf("uploads = %v, want [encode/movie]", fx.objects.uploads)
	}

	// The workspace is gone once the outcome is recorded.
	if _, err := os.Stat(engine.outDir); !os.IsNotExist(err) {
		t.Errorf("workdir still present: %v", err)
	}
}

func TestPipelineRebuildsCatalogManifestAtZero(t *testing.T) {
	engine := &fakeEngine{
		duration: 100,
		output:   map[string]string{"master.m3u8": validMaster, "0/index.m3u8": validRendition},
	}
	p, fx := newPipelineFixture(t, engine)

	if err := p.Run(context.Background(), fx.video, fx.job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fx.objects.puts) != 1 {
		t.Fatalf("puts = %d, want 1 catalog manifest write", len(fx.objects.puts))
	}
	put := fx.objects.puts[0]
	if put.key != hls.CatalogManifestKey {
		t.Errorf("manifest key = %q, want %q", put.key, hls.CatalogManifestKey)
	}
	if put.cacheControl != hls.CatalogManifestCacheControl {
		t.Errorf("cache control = %q", put.cacheControl)
	}
	if !strings.Contains(put.body, "movie/master.m3u8") {
		t.Errorf("manifest body = %q", put.body)
	}

	// The barrier consumed the counter key.
	if _, found, _ := fx.state.Get(context.Background(), "count:master:"); found {
		t.Error("inflight counter key must be deleted after the rebuild")
	}
}

func TestPipelineSkipsManifestWhileOthersInflight(t *testing.T) {
	engine := &fakeEngine{
		duration: 100,
		output:   map[string]string{"master.m3u8": validMaster, "0/index.m3u8": validRendition},
	}
	p, fx := newPipelineFixture(t, engine)

	// Another worker's encode is still running.
	if _, err := fx.state.InflightIncr(context.Background()); err != nil {
		t.Fatalf("InflightIncr: %v", err)
	}

	if err := p.Run(context.Background(), fx.video, fx.job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fx.objects.puts) != 0 {
		t.Errorf("puts = %d, want 0 while another encode is in flight", len(fx.objects.puts))
	}
	if value, found, _ := fx.state.Get(context.Background(), "count:master:"); !found || value != "1" {
		t.Errorf("counter = (%q, %v), want (1, true)", value, found)
	}
}

func TestPipelineRecordsProbeFailure(t *testing.T) {
	engine := &fakeEngine{
		probeErr: services.Wrap(services.ErrInput, "probe", "ffprobe", "unreadable duration", nil),
	}
	p, fx := newPipelineFixture(t, engine)

	err := p.Run(context.Background(), fx.video, fx.job)
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("Run error = %v, want input error", err)
	}

	video, _ := fx.catalog.GetVideo(context.Background(), fx.video.ID)
	if video.Status != catalog.VideoEncodingFailed {
		t.Errorf("video status = %q, want %q", video.Status, catalog.VideoEncodingFailed)
	}
	job, _ := fx.catalog.GetJob(context.Background(), fx.job.ID)
	if job.Status != catalog.JobFailed || job.ErrorLog == "" {
		t.Errorf("job = %q/%q, want failed with error log", job.Status, job.ErrorLog)
	}
	if len(fx.objects.uploads) != 0 {
		t.Errorf("uploads = %v, want none", fx.objects.uploads)
	}
}

func TestPipelineDownloadFailureIsUnclassified(t *testing.T) {
	engine := &fakeEngine{duration: 100}
	p, fx := newPipelineFixture(t, engine)
	fx.objects.downloadErr = errors.New("connection reset")

	err := p.Run(context.Background(), fx.video, fx.job)
	if err == nil {
		t.Fatal("expected download failure")
	}
	if errors.Is(err, services.ErrInput) || errors.Is(err, services.ErrPipeline) || errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want no classification marker", err)
	}

	video, _ := fx.catalog.GetVideo(context.Background(), fx.video.ID)
	if video.Status != catalog.VideoFailed {
		t.Errorf("video status = %q, want %q", video.Status, catalog.VideoFailed)
	}
	job, _ := fx.catalog.GetJob(context.Background(), fx.job.ID)
	if job.Status != catalog.JobFailed || job.ErrorLog == "" {
		t.Errorf("job = %q/%q, want failed with error log", job.Status, job.ErrorLog)
	}
	if len(fx.objects.uploads) != 0 {
		t.Errorf("uploads = %v, want none", fx.objects.uploads)
	}
}

func TestPipelineRecordsValidationFailure(t *testing.T) {
	engine := &fakeEngine{
		duration: 100,
		output:   map[string]string{"master.m3u8": validMaster, "0/index.m3u8": openEndedRendition},
	}
	p, fx := newPipelineFixture(t, engine)

	err := p.Run(context.Background(), fx.video, fx.job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Run error = %v, want validation error", err)
	}

	video, _ := fx.catalog.GetVideo(context.Background(), fx.video.ID)
	if video.Status != catalog.VideoValidationFailed {
		t.Errorf("video status = %q, want %q", video.Status, catalog.VideoValidationFailed)
	}
	if !strings.Contains(video.EncodingJSON, `"is_valid":false`) {
		t.Errorf("diagnostic payload = %q", video.EncodingJSON)
	}
	if len(fx.objects.uploads) != 0 {
		t.Errorf("uploads = %v, want none", fx.objects.uploads)
	}
}

func TestPipelineRecordsTranscodeFailure(t *testing.T) {
	engine := &fakeEngine{
		duration:     100,
		transcodeErr: services.Wrap(services.ErrPipeline, "encode", "ffmpeg", "exit status 1", nil),
	}
	p, fx := newPipelineFixture(t, engine)

	err := p.Run(context.Background(), fx.video, fx.job)
	if !errors.Is(err, services.ErrPipeline) {
		t.Fatalf("Run error = %v, want pipeline error", err)
	}

	video, _ := fx.catalog.GetVideo(context.Background(), fx.video.ID)
	if video.Status != catalog.VideoEncodingFailed {
		t.Errorf("video status = %q, want %q", video.Status, catalog.VideoEncodingFailed)
	}
}

func TestPipelinePersistsMonotonicProgress(t *testing.T) {
	breakAfterProgress := services.Wrap(services.ErrPipeline, "encode", "ffmpeg", "killed", nil)
	engine := &fakeEngine{
		duration:     100,
		elapsed:      []float64{40, 20, 40, 75},
		transcodeErr: breakAfterProgress,
	}
	p, fx := newPipelineFixture(t, engine)

	if err := p.Run(context.Background(), fx.video, fx.job); err == nil {
		t.Fatal("expected transcode failure")
	}

	job, _ := fx.catalog.GetJob(context.Background(), fx.job.ID)
	// 40 then 75 persisted; 20 and the repeated 40 are regressions and skipped.
	if job.Progress != 75 {
		t.Errorf("progress = %d, want 75", job.Progress)
	}
}

func TestPipelinePersistsClampedFinalProgress(t *testing.T) {
	engine := &fakeEngine{
		duration: 100,
		// The last position overshoots the probed duration; the clamped
		// 100 must still reach the catalog before the engine dies.
		elapsed:      []float64{50, 120},
		transcodeErr: services.Wrap(services.ErrPipeline, "encode", "ffmpeg", "killed", nil),
	}
	p, fx := newPipelineFixture(t, engine)

	if err := p.Run(context.Background(), fx.video, fx.job); err == nil {
		t.Fatal("expected transcode failure")
	}

	job, _ := fx.catalog.GetJob(context.Background(), fx.job.ID)
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	if job.Status != catalog.JobFailed {
		t.Errorf("status = %q, want %q", job.Status, catalog.JobFailed)
	}
}
