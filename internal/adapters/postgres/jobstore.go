package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"clarivid/internal/core/domain"
)

// Store persists jobs and video records in Postgres. Scene outcomes and
// captions are stored as JSONB: they are read back whole, never queried
// field by field.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS concept_jobs (
			id                  TEXT PRIMARY KEY,
			paper_id            TEXT NOT NULL,
			concept_id          TEXT NOT NULL,
			concept_name        TEXT NOT NULL,
			concept_description TEXT NOT NULL,
			user_id             TEXT NOT NULL,
			quality_tier        TEXT NOT NULL,
			status              TEXT NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL,
			completed_at        TIMESTAMPTZ,
			video_url           TEXT NOT NULL DEFAULT '',
			outcomes            JSONB NOT NULL DEFAULT '[]',
			error               TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS video_records (
			job_id     TEXT PRIMARY KEY REFERENCES concept_jobs(id),
			paper_id   TEXT NOT NULL,
			concept_id TEXT NOT NULL,
			video_url  TEXT NOT NULL,
			captions   JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_concept_jobs_user ON concept_jobs(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveJob inserts a newly created job.
func (s *Store) SaveJob(ctx context.Context, job *domain.ConceptJob) error {
	outcomes, err := json.Marshal(job.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO concept_jobs
			(id, paper_id, concept_id, concept_name, concept_description,
			 user_id, quality_tier, status, created_at, completed_at,
			 video_url, outcomes, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		job.ID, job.PaperID, job.ConceptID, job.ConceptName, job.ConceptDescription,
		job.UserID, string(job.Tier), string(job.Status), job.CreatedAt, job.CompletedAt,
		job.VideoURL, outcomes, job.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob overwrites the mutable fields of a job's row.
func (s *Store) UpdateJob(ctx context.Context, job *domain.ConceptJob) error {
	outcomes, err := json.Marshal(job.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE concept_jobs
		SET status = $2, completed_at = $3, video_url = $4, outcomes = $5, error = $6
		WHERE id = $1`,
		job.ID, string(job.Status), job.CompletedAt, job.VideoURL, outcomes, job.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s not found", job.ID)
	}
	return nil
}

// GetJob loads a job row.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.ConceptJob, error) {
	var (
		job         domain.ConceptJob
		tier        string
		status      string
		completedAt sql.NullTime
		outcomes    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, paper_id, concept_id, concept_name, concept_description,
		       user_id, quality_tier, status, created_at, completed_at,
		       video_url, outcomes, error
		FROM concept_jobs WHERE id = $1`, jobID,
	).Scan(
		&job.ID, &job.PaperID, &job.ConceptID, &job.ConceptName, &job.ConceptDescription,
		&job.UserID, &tier, &status, &job.CreatedAt, &completedAt,
		&job.VideoURL, &outcomes, &job.Error,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	job.Tier = domain.QualityTier(tier)
	job.Status = domain.JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if err := json.Unmarshal(outcomes, &job.Outcomes); err != nil {
		return nil, fmt.Errorf("corrupt outcomes for job %s: %w", jobID, err)
	}
	return &job, nil
}

// SaveVideoRecord upserts the final video reference for a job.
func (s *Store) SaveVideoRecord(ctx context.Context, rec *domain.VideoRecord) error {
	captions, err := json.Marshal(rec.Captions)
	if err != nil {
		return fmt.Errorf("failed to marshal captions: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO video_records (job_id, paper_id, concept_id, video_url, captions, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (job_id) DO UPDATE
		SET video_url = EXCLUDED.video_url, captions = EXCLUDED.captions`,
		rec.JobID, rec.PaperID, rec.ConceptID, rec.VideoURL, captions, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save video record for job %s: %w", rec.JobID, err)
	}
	return nil
}
