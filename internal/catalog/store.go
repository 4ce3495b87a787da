package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hlsfarm/internal/config"
)

// Store manages the durable catalog: Video, EncodingJob, and Worker rows.
// Every mutating operation runs in a single transaction that commits once
// and rolls back entirely on error.
type Store struct {
	db *gorm.DB
}

// Open connects to the catalog database and applies schema migrations.
func Open(cfg *config.Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("catalog db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return NewWithDB(db)
}

// NewWithDB wraps an existing gorm handle and applies migrations. Tests use
// this with a SQLite-backed handle.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Video{}, &EncodingJob{}, &Worker{}); err != nil {
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveVideo inserts or updates a Video by its (original_path, s3_etag) dedup
// key. On update, only populated fields of v overwrite the stored row. v is
// refreshed with the persisted identifier and creation timestamp.
func (s *Store) SaveVideo(ctx context.Context, v *Video) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Video
		err := tx.Where("original_path = ? AND s3_etag = ?", v.OriginalPath, v.S3ETag).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if v.ID == uuid.Nil {
				v.ID = uuid.New()
			}
			if v.Status == "" {
				v.Status = VideoUploaded
			}
			return tx.Create(v).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]any{"updated_at": time.Now().UTC()}
		if v.Filename != "" {
			updates["filename"] = v.Filename
		}
		if v.HLSPath != "" {
			updates["hls_path"] = v.HLSPath
		}
		if v.Status != "" {
			updates["status"] = v.Status
		}
		if v.EncodingJSON != "" {
			updates["encoding_json"] = v.EncodingJSON
		}
		if err := tx.Model(&Video{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
		return nil
	})
}

// SaveJob inserts or updates an EncodingJob by identifier. The completion
// time is stamped only when the job reaches a terminal status. A job already
// in a terminal status keeps its status, progress, and error fields:
// terminal outcomes are immutable.
func (s *Store) SaveJob(ctx context.Context, job *EncodingJob) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		var existing EncodingJob
		err := tx.Where("id = ?", job.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if job.Status == "" {
				job.Status = JobPending
			}
			if job.StartedAt.IsZero() {
				job.StartedAt = time.Now().UTC()
			}
			return tx.Create(job).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if job.WorkerID != "" {
			updates["worker_id"] = job.WorkerID
		}
		if !existing.Status.Terminal() {
			if job.Status != "" {
				updates["status"] = job.Status
			}
			if job.Status.Terminal() {
				updates["completed_at"] = time.Now().UTC()
			}
			if job.Progress > 0 {
				updates["progress"] = job.Progress
			}
			if job.ErrorLog != "" {
				updates["error_log"] = job.ErrorLog
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&EncodingJob{}).Where("id = ?", job.ID).Updates(updates).Error
	})
}

// SaveWorker inserts or updates a Worker by hostname and stamps the
// heartbeat time. worker is refreshed with the persisted identifier.
func (s *Store) SaveWorker(ctx context.Context, worker *Worker) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var existing Worker
		err := tx.Where("hostname = ?", worker.Hostname).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if worker.ID == uuid.Nil {
				worker.ID = uuid.New()
			}
			if worker.Status == "" {
				worker.Status = WorkerIdle
			}
			worker.LastHeartbeat = now
			return tx.Create(worker).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]any{
			"cpu_usage":      worker.CPUUsage,
			"memory_usage":   worker.MemoryUsage,
			"last_heartbeat": now,
		}
		if worker.Status != "" {
			updates["status"] = worker.Status
		}
		if err := tx.Model(&Worker{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}
		worker.ID = existing.ID
		worker.LastHeartbeat = now
		return nil
	})
}

// GetVideo returns the Video with the given identifier.
func (s *Store) GetVideo(ctx context.Context, id uuid.UUID) (*Video, error) {
	var video Video
	if err := s.db.WithContext(ctx).First(&video, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// GetJob returns the EncodingJob with the given identifier.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*EncodingJob, error) {
	var job EncodingJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobProgress persists a progress percentage for an active job. Rows
// already in a terminal status are left untouched.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return s.db.WithContext(ctx).
		Model(&EncodingJob{}).
		Where("id = ? AND status NOT IN ?", id, []JobStatus{JobSuccess, JobFailed}).
		Update("progress", progress).Error
}

// ListVideos returns one page of videos ordered by creation time, newest
// first, plus the total row count.
func (s *Store) ListVideos(ctx context.Context, page, pageSize int) ([]Video, int64, error) {
	var items []Video
	var total int64
	query := s.db.WithContext(ctx).Model(&Video{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").Offset(pageOffset(page, pageSize)).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// ListJobs returns one page of encoding jobs ordered by start time, newest first.
func (s *Store) ListJobs(ctx context.Context, page, pageSize int) ([]EncodingJob, int64, error) {
	var items []EncodingJob
	var total int64
	query := s.db.WithContext(ctx).Model(&EncodingJob{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("started_at DESC").Offset(pageOffset(page, pageSize)).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// ListWorkers returns one page of worker rows ordered by hostname.
func (s *Store) ListWorkers(ctx context.Context, page, pageSize int) ([]Worker, int64, error) {
	var items []Worker
	var total int64
	query := s.db.WithContext(ctx).Model(&Worker{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("hostname ASC").Offset(pageOffset(page, pageSize)).Limit(pageSize).Find(&items).Error
	return items, total, err
}

func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
