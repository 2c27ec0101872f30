// Package handlers serves the worker status API.
package handlers

import (
	"context"

	"renderworker/internal/dispatch"
	"renderworker/internal/models"
	"renderworker/internal/pkg/logger"
	"renderworker/internal/ports"
	"renderworker/internal/worker"
)

// Slots is the set of running worker slots. *worker.Pool implements it.
type Slots interface {
	Slots() []*worker.Slot
	Slot(i int) (*worker.Slot, error)
}

// Pinger checks a backing service. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Results lists archived job results. *repositories.ResultRepository
// implements it.
type Results interface {
	ListByWorker(ctx context.Context, worker string, limit int) ([]models.JobResult, error)
}

type Deps struct {
	Log   *logger.Logger
	Slots Slots
	// The rest are optional.
	DB       Pinger
	Dispatch dispatch.Pinger
	SP       ports.StorageProvider
	Results  Results
}

type Handler struct {
	log      *logger.Logger
	slots    Slots
	db       Pinger
	dispatch dispatch.Pinger
	sp       ports.StorageProvider
	results  Results
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		log:      log.WithComponent("httpapi"),
		slots:    d.Slots,
		db:       d.DB,
		dispatch: d.Dispatch,
		sp:       d.SP,
		results:  d.Results,
	}
}

// Log is the logger handlers report errors to.
func (h *Handler) Log() *logger.Logger { return h.log }
