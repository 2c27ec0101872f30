package repositories

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"renderworker/internal/models"
	apperrors "renderworker/internal/pkg/errors"
)

type IdentityRepository struct {
	db DB
}

func NewIdentityRepository(db DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) Get(ctx context.Context, slot int) (*models.WorkerIdentity, error) {
	var id models.WorkerIdentity
	err := r.db.QueryRow(ctx, `
		SELECT slot, name, updated_at
		FROM worker_identities
		WHERE slot=$1
	`, slot).Scan(&id.Slot, &id.Name, &id.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("worker identity", strconv.Itoa(slot))
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "identity.get", "query worker identity")
	}
	return &id, nil
}

func (r *IdentityRepository) Upsert(ctx context.Context, slot int, name string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO worker_identities (slot, name, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (slot) DO UPDATE SET name=EXCLUDED.name, updated_at=now()
	`, slot, name)
	if err != nil {
		return apperrors.Wrap(err, "identity.upsert", "save worker identity")
	}
	return nil
}

func (r *IdentityRepository) Delete(ctx context.Context, slot int) error {
	cmd, err := r.db.Exec(ctx, `
		DELETE FROM worker_identities
		WHERE slot=$1
	`, slot)
	if err != nil {
		return apperrors.Wrap(err, "identity.delete", "delete worker identity")
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NotFound("worker identity", strconv.Itoa(slot))
	}
	return nil
}
