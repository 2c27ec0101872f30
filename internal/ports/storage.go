package ports

import (
	"context"
	"io"

	"renderworker/internal/pkg/errors"
)

// ErrObjectNotFound is returned (possibly wrapped) when a key has no object.
var ErrObjectNotFound = errors.New(errors.CodeNotFound, "object not found")

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// For localfs this is the object key itself.
	// For gdrive it is the Drive fileId, which later reads must use.
	ObjectKey string
	Size      int64
}

// StorageProvider is implemented by object stores (localfs, gdrive).
// Worker identities and archived result frames are kept behind it.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
