//go:build !linux

package native

import (
	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
)

// New reports the device as unavailable outside Linux.
func New(Options) (gles.Device, error) {
	return nil, errors.New(errors.CodeUnavailable, "native graphics device needs EGL, which is only loaded on linux").WithOp("native.New")
}
