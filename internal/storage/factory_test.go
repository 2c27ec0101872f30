package storage

import (
	"context"
	"testing"

	"renderworker/internal/config"
	"renderworker/internal/pkg/errors"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.Storage{Provider: config.StorageNone})
	if err != nil || p != nil {
		t.Errorf("none: got %v, %v", p, err)
	}

	p, err = NewProvider(ctx, config.Storage{Provider: config.StorageLocalFS, LocalRoot: t.TempDir()})
	if err != nil || p == nil || p.Provider() != "localfs" {
		t.Errorf("localfs: got %v, %v", p, err)
	}

	_, err = NewProvider(ctx, config.Storage{Provider: "s3"})
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("unknown: expected VALIDATION_ERROR, got %v", err)
	}
}
