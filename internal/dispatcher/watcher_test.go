package dispatcher

import (
	"context"
	"errors"
	"testing"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/objectstore"
	"hlsfarm/internal/state"
	"hlsfarm/internal/testsupport"
)

type fakeLister struct {
	objects []objectstore.Object
}

func (f *fakeLister) ListVideos(ctx context.Context, bucket, prefix string) ([]objectstore.Object, error) {
	return f.objects, nil
}

type fakePicker struct {
	candidate *Candidate
}

func (f *fakePicker) Best(ctx context.Context) (*Candidate, error) {
	return f.candidate, nil
}

type enqueueCall struct {
	hostname string
	videoID  string
	jobID    string
}

type fakeEnqueuer struct {
	calls     []enqueueCall
	fail      error
	failTimes int
}

func (f *fakeEnqueuer) EnqueueEncode(ctx context.Context, hostname, videoID, jobID string) error {
	if f.failTimes > 0 {
		f.failTimes--
		return errors.New("broker unavailable")
	}
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, enqueueCall{hostname: hostname, videoID: videoID, jobID: jobID})
	return nil
}

func newTestWatcher(t *testing.T, lister *fakeLister, picker *fakePicker, queue *fakeEnqueuer) (*Watcher, *watcherFixture) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Dispatcher.AssignRetries = 1
	cfg.Dispatcher.AssignBackoffSeconds = 0
	store := testsupport.MustOpenCatalog(t)
	st, _ := testsupport.NewState(t)
	w := NewWatcher(cfg, logging.NewNop(), lister, picker, store, queue, st)
	return w, &watcherFixture{catalog: store, state: st}
}

type watcherFixture struct {
	catalog *catalog.Store
	state   *state.Store
}

func TestCycleAssignsNewUpload(t *testing.T) {
	lister := &fakeLister{objects: []objectstore.Object{{Key: "upload/movie.mp4", ETag: "etag-1"}}}
	picker := &fakePicker{candidate: &Candidate{Hostname: "worker-a", WorkerID: "id-a", Status: "idle", Score: 10}}
	queue := &fakeEnqueuer{}
	w, fx := newTestWatcher(t, lister, picker, queue)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if len(queue.calls) != 1 {
		t.Fatalf("enqueue calls = %d, want 1", len(queue.calls))
	}
	if queue.calls[0].hostname != "worker-a" {
		t.Errorf("enqueued to %q, want worker-a", queue.calls[0].hostname)
	}

	seen, found, err := fx.state.LastSeenETag(context.Background(), "upload/movie.mp4")
	if err != nil || !found || seen != "etag-1" {
		t.Errorf("dedup entry = (%q, %v, %v), want (etag-1, true, nil)", seen, found, err)
	}

	videos, total, err := fx.catalog.ListVideos(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if total != 1 {
		t.Fatalf("video rows = %d, want 1", total)
	}
	if videos[0].Status != catalog.VideoEncoding {
		t.Errorf("video status = %q, want %q", videos[0].Status, catalog.VideoEncoding)
	}

	jobs, _, err := fx.catalog.ListJobs(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != catalog.JobPending || jobs[0].WorkerID != "id-a" {
		t.Errorf("job = %+v, want pending job for id-a", jobs)
	}
}

func TestCycleSkipsSeenETag(t *testing.T) {
	lister := &fakeLister{objects: []objectstore.Object{{Key: "upload/movie.mp4", ETag: "etag-1"}}}
	picker := &fakePicker{candidate: &Candidate{Hostname: "worker-a", WorkerID: "id-a", Status: "idle"}}
	queue := &fakeEnqueuer{}
	w, _ := newTestWatcher(t, lister, picker, queue)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}
	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("second Cycle: %v", err)
	}

	if len(queue.calls) != 1 {
		t.Errorf("enqueue calls = %d, want 1 (second listing must be deduplicated)", len(queue.calls))
	}
}

func TestCycleReassignsChangedETag(t *testing.T) {
	lister := &fakeLister{objects: []objectstore.Object{{Key: "upload/movie.mp4", ETag: "etag-1"}}}
	picker := &fakePicker{candidate: &Candidate{Hostname: "worker-a", WorkerID: "id-a", Status: "idle"}}
	queue := &fakeEnqueuer{}
	w, _ := newTestWatcher(t, lister, picker, queue)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}
	lister.objects[0].ETag = "etag-2"
	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("second Cycle: %v", err)
	}

	if len(queue.calls) != 2 {
		t.Errorf("enqueue calls = %d, want 2 (replaced object is a new version)", len(queue.calls))
	}
}

func TestCycleLeavesUploadWhenNoWorkers(t *testing.T) {
	lister := &fakeLister{objects: []objectstore.Object{{Key: "upload/movie.mp4", ETag: "etag-1"}}}
	picker := &fakePicker{candidate: nil}
	queue := &fakeEnqueuer{}
	w, fx := newTestWatcher(t, lister, picker, queue)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if len(queue.calls) != 0 {
		t.Errorf("enqueue calls = %d, want 0", len(queue.calls))
	}
	if _, found, _ := fx.state.LastSeenETag(context.Background(), "upload/movie.mp4"); found {
		t.Error("etag must not be remembered when assignment fails")
	}
}

func TestCycleSkipsOverloadedWorker(t *testing.T) {
	lister := &fakeLister{objects: []objectstore.Object{{Key: "upload/movie.mp4", ETag: "etag-1"}}}
	picker := &fakePicker{candidate: &Candidate{Hostname: "worker-a", WorkerID: "id-a", Status: "overload", Score: 95}}
	queue := &fakeEnqueuer{}
	w, _ := newTestWatcher(t, lister, picker, queue)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(queue.calls) != 0 {
		t.Errorf("enqueue calls = %d, want 0", len(queue.calls))
	}
}

func TestAssignReusesJobRowAcrossAttempts(t *testing.T) {
	lister := &fakeLister{objects: []objectstore.Object{{Key: "upload/movie.mp4", ETag: "etag-1"}}}
	picker := &fakePicker{candidate: &Candidate{Hostname: "worker-a", WorkerID: "id-a", Status: "idle"}}
	queue := &fakeEnqueuer{failTimes: 2}
	w, fx := newTestWatcher(t, lister, picker, queue)
	w.cfg.Dispatcher.AssignRetries = 3

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if len(queue.calls) != 1 {
		t.Fatalf("enqueue calls = %d, want 1 after two transient failures", len(queue.calls))
	}
	jobs, total, err := fx.catalog.ListJobs(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if total != 1 {
		t.Fatalf("job rows = %d, want 1 (failed attempts must not orphan rows)", total)
	}
	if jobs[0].ID.String() != queue.calls[0].jobID {
		t.Errorf("enqueued job id %s does not match the stored row %s", queue.calls[0].jobID, jobs[0].ID)
	}
}

func TestCycleRetriesAfterEnqueueFailure(t *testing.T) {
	lister := &fakeLister{objects: []objectstore.Object{{Key: "upload/movie.mp4", ETag: "etag-1"}}}
	picker := &fakePicker{candidate: &Candidate{Hostname: "worker-a", WorkerID: "id-a", Status: "idle"}}
	queue := &fakeEnqueuer{fail: errors.New("broker down")}
	w, fx := newTestWatcher(t, lister, picker, queue)

	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if _, found, _ := fx.state.LastSeenETag(context.Background(), "upload/movie.mp4"); found {
		t.Fatal("etag must not be remembered after enqueue failure")
	}

	queue.fail = nil
	if err := w.Cycle(context.Background()); err != nil {
		t.Fatalf("retry Cycle: %v", err)
	}
	if len(queue.calls) != 1 {
		t.Errorf("enqueue calls = %d, want 1 after retry", len(queue.calls))
	}
}
