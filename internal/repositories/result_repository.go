package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"renderworker/internal/models"
	apperrors "renderworker/internal/pkg/errors"
)

type ResultRepository struct {
	db DB
}

func NewResultRepository(db DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Create inserts r, assigning an ID when it has none.
func (repo *ResultRepository) Create(ctx context.Context, r *models.JobResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := repo.db.QueryRow(ctx, `
		INSERT INTO job_results (id, job_id, worker, shader, status, log, image_key, image2_key,
			compile_us, link_us, render_us, pass_sanity_check)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at
	`, r.ID, r.JobID, r.Worker, r.Shader, r.Status, r.Log, r.ImageKey, r.Image2Key,
		r.CompileMicros, r.LinkMicros, r.RenderMicros, r.PassSanityCheck).Scan(&r.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Newf(apperrors.CodeValidation, "result %s already recorded", r.ID)
		}
		return apperrors.Wrap(err, "results.create", "insert job result")
	}
	return nil
}

// ListByWorker returns the newest results of worker first.
func (repo *ResultRepository) ListByWorker(ctx context.Context, worker string, limit int) ([]models.JobResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := repo.db.Query(ctx, `
		SELECT id, job_id, worker, shader, status, log, image_key, image2_key,
			compile_us, link_us, render_us, pass_sanity_check, created_at
		FROM job_results
		WHERE worker=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, worker, limit)
	if err != nil {
		if IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "results.list", "query job results")
	}
	defer rows.Close()

	var out []models.JobResult
	for rows.Next() {
		var r models.JobResult
		if err := rows.Scan(&r.ID, &r.JobID, &r.Worker, &r.Shader, &r.Status, &r.Log, &r.ImageKey, &r.Image2Key,
			&r.CompileMicros, &r.LinkMicros, &r.RenderMicros, &r.PassSanityCheck, &r.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "results.list", "scan job result")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (repo *ResultRepository) Get(ctx context.Context, id string) (*models.JobResult, error) {
	var r models.JobResult
	err := repo.db.QueryRow(ctx, `
		SELECT id, job_id, worker, shader, status, log, image_key, image2_key,
			compile_us, link_us, render_us, pass_sanity_check, created_at
		FROM job_results
		WHERE id=$1
	`, id).Scan(&r.ID, &r.JobID, &r.Worker, &r.Shader, &r.Status, &r.Log, &r.ImageKey, &r.Image2Key,
		&r.CompileMicros, &r.LinkMicros, &r.RenderMicros, &r.PassSanityCheck, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("job result", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "results.get", "query job result")
	}
	return &r, nil
}
