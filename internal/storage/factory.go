package storage

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"renderworker/internal/adapters/storage/gdrive"
	"renderworker/internal/adapters/storage/localfs"
	"renderworker/internal/config"
	"renderworker/internal/pkg/errors"
)

// NewProvider builds the provider cfg selects. It returns nil, nil for
// config.StorageNone.
func NewProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	switch cfg.Provider {
	case config.StorageNone, "":
		return nil, nil

	case config.StorageLocalFS:
		return localfs.New(cfg.LocalRoot), nil

	case config.StorageGDrive:
		return newGDriveProvider(ctx, cfg.GDrive)

	default:
		return nil, errors.Validationf("unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg config.GDrive) (Provider, error) {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "storage.gdrive", "create drive service")
	}

	return gdrive.NewClient(srv, cfg.FolderID), nil
}
