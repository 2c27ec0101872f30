package worker

import (
	"context"
	"time"

	"renderworker/internal/config"
	"renderworker/internal/dispatch"
	"renderworker/internal/gles"
	"renderworker/internal/identity"
	"renderworker/internal/pkg/logger"
	"renderworker/internal/worker/archive"
)

// DeviceOpener creates the graphics device of a slot.
type DeviceOpener func(slot int) (gles.Device, error)

type Deps struct {
	Log        *logger.Logger
	Config     config.Config
	Client     dispatch.Client
	Identities identity.Store
	OpenDevice DeviceOpener
	// Archive is optional.
	Archive *archive.Archive
	// JournalSize bounds each slot journal. Zero means 128.
	JournalSize int
	// Sleep waits d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
