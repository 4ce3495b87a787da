package worker

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/config"
	"hlsfarm/internal/logging"
	"hlsfarm/internal/state"
)

// DeriveStatus maps sampled load to the worker's advertised category. The
// dispatcher refuses to assign to an overloaded worker.
func DeriveStatus(cpuPct, memPct float64) catalog.WorkerStatus {
	switch {
	case cpuPct > 90 || memPct > 90:
		return catalog.WorkerOverload
	case cpuPct > 70:
		return catalog.WorkerBusy
	case cpuPct > 50:
		return catalog.WorkerNormal
	default:
		return catalog.WorkerIdle
	}
}

// Reporter periodically samples this process tree's load and publishes it
// as the worker's heartbeat and catalog row.
type Reporter struct {
	cfg      *config.Config
	log      *slog.Logger
	catalog  *catalog.Store
	state    *state.Store
	workerID uuid.UUID
}

// NewReporter wires a reporter. The worker identity is minted per process;
// the catalog row is still keyed by hostname across restarts.
func NewReporter(cfg *config.Config, log *slog.Logger, store *catalog.Store, st *state.Store) *Reporter {
	return &Reporter{
		cfg:      cfg,
		log:      log.With(logging.String(logging.FieldComponent, "health")),
		catalog:  store,
		state:    st,
		workerID: uuid.New(),
	}
}

// Run publishes load reports until ctx is canceled. A failed sample or
// publish is logged and skipped; the previous heartbeat simply expires.
func (r *Reporter) Run(ctx context.Context) error {
	interval := time.Duration(r.cfg.Worker.HeartbeatIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("health reporter started",
		logging.String(logging.FieldWorker, r.cfg.Worker.Name),
		logging.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("health reporter stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.publish(ctx); err != nil {
				r.log.Warn("heartbeat publish failed", logging.Error(err))
			}
		}
	}
}

func (r *Reporter) publish(ctx context.Context) error {
	cpuPct, memPct, err := sampleProcessTree()
	if err != nil {
		return err
	}
	status := DeriveStatus(cpuPct, memPct)

	// The upsert refreshes the id to the existing row's on a hostname
	// match; the heartbeat must carry that catalog id, not the one this
	// process minted, or jobs get attributed to a row that no longer
	// exists after a restart.
	row := &catalog.Worker{
		ID:          r.workerID,
		Hostname:    r.cfg.Worker.Name,
		CPUUsage:    cpuPct,
		MemoryUsage: memPct,
		Status:      status,
	}
	if err := r.catalog.SaveWorker(ctx, row); err != nil {
		return err
	}
	r.workerID = row.ID

	ttl := time.Duration(r.cfg.Worker.HeartbeatTTLSeconds) * time.Second
	return r.state.PublishHeartbeat(ctx, state.Heartbeat{
		Hostname: r.cfg.Worker.Name,
		WorkerID: row.ID.String(),
		Status:   string(status),
		CPU:      cpuPct,
		Memory:   memPct,
	}, ttl)
}

// sampleProcessTree sums CPU and memory usage over this process and its
// descendants, which is where ffmpeg's load shows up. CPU is normalized by
// the logical core count so a saturated machine reads near 100.
func sampleProcessTree() (cpuPct, memPct float64, err error) {
	root, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0, err
	}

	var walk func(p *process.Process)
	walk = func(p *process.Process) {
		if pct, err := p.CPUPercent(); err == nil {
			cpuPct += pct
		}
		if pct, err := p.MemoryPercent(); err == nil {
			memPct += float64(pct)
		}
		children, err := p.Children()
		if err != nil {
			return
		}
		for _, child := range children {
			walk(child)
		}
	}
	walk(root)

	if cores := runtime.NumCPU(); cores > 0 {
		cpuPct /= float64(cores)
	}
	return cpuPct, memPct, nil
}
