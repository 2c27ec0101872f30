package repositories

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"renderworker/internal/models"
	apperrors "renderworker/internal/pkg/errors"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *int:
			*d = r.values[i].(int)
		case *string:
			*d = r.values[i].(string)
		case *time.Time:
			*d = r.values[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}

// fakeDB records statements and answers from canned values.
type fakeDB struct {
	execs   []string
	args    [][]any
	tag     string
	execErr error
	row     fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag(f.tag), f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, &pgconn.PgError{Code: "42P01"}
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.args = append(f.args, args)
	return f.row
}

func TestIdentityRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		now := time.Now()
		db := &fakeDB{row: fakeRow{values: []any{2, "w-two", now}}}
		id, err := NewIdentityRepository(db).Get(ctx, 2)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if id.Slot != 2 || id.Name != "w-two" || !id.UpdatedAt.Equal(now) {
			t.Errorf("unexpected identity %+v", id)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
		_, err := NewIdentityRepository(db).Get(ctx, 1)
		if !apperrors.IsCode(err, apperrors.CodeNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("upsert", func(t *testing.T) {
		db := &fakeDB{tag: "INSERT 0 1"}
		if err := NewIdentityRepository(db).Upsert(ctx, 3, "w-three"); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if !strings.Contains(db.execs[0], "ON CONFLICT (slot)") {
			t.Errorf("expected an upsert, got %s", db.execs[0])
		}
		if db.args[0][0] != 3 || db.args[0][1] != "w-three" {
			t.Errorf("unexpected args %v", db.args[0])
		}
	})

	t.Run("delete missing", func(t *testing.T) {
		db := &fakeDB{tag: "DELETE 0"}
		err := NewIdentityRepository(db).Delete(ctx, 4)
		if !apperrors.IsCode(err, apperrors.CodeNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})
}

func TestResultRepositoryCreate(t *testing.T) {
	ctx := context.Background()
	created := time.Now()

	db := &fakeDB{row: fakeRow{values: []any{created}}}
	r := &models.JobResult{JobID: 1, Worker: "w", Shader: "s", Status: "SUCCESS"}
	if err := NewResultRepository(db).Create(ctx, r); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(r.ID) != 36 || !r.CreatedAt.Equal(created) {
		t.Errorf("expected generated id and created_at, got %+v", r)
	}

	db = &fakeDB{row: fakeRow{err: &pgconn.PgError{Code: "23505"}}}
	err := NewResultRepository(db).Create(ctx, &models.JobResult{ID: "fixed"})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for duplicate, got %v", err)
	}
}

func TestResultRepositoryListWithoutTable(t *testing.T) {
	out, err := NewResultRepository(&fakeDB{}).ListByWorker(context.Background(), "w", 10)
	if err != nil || out != nil {
		t.Errorf("missing table should read as empty, got %v, %v", out, err)
	}
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(db.execs) != len(schema) {
		t.Errorf("expected %d statements, got %d", len(schema), len(db.execs))
	}

	db = &fakeDB{execErr: fmt.Errorf("permission denied")}
	if err := Migrate(context.Background(), db); err == nil {
		t.Error("expected migration error")
	}
}

func TestPgErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(wrapped) || IsUndefinedTable(wrapped) {
		t.Error("23505 misclassified")
	}
	if !IsUndefinedTable(&pgconn.PgError{Code: "42P01"}) {
		t.Error("42P01 misclassified")
	}
	if IsUniqueViolation(fmt.Errorf("plain")) {
		t.Error("plain errors are not pg errors")
	}
}
