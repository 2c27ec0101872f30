package worker

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
)

// Pool runs the configured number of slots side by side.
type Pool struct {
	slots []*Slot
	log   *logger.Logger
}

func NewPool(d Deps) *Pool {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	d.Log = log

	n := d.Config.Worker.Slots
	if n < 1 {
		n = 1
	}
	p := &Pool{log: log.WithComponent("worker")}
	for i := 0; i < n; i++ {
		p.slots = append(p.slots, NewSlot(i, d))
	}
	return p
}

// Slots returns every slot, by index.
func (p *Pool) Slots() []*Slot { return p.slots }

// Slot returns slot i.
func (p *Pool) Slot(i int) (*Slot, error) {
	if i < 0 || i >= len(p.slots) {
		return nil, errors.NotFound("slot", strconv.Itoa(i))
	}
	return p.slots[i], nil
}

// Stop asks every slot to finish at its next iteration boundary.
func (p *Pool) Stop() {
	for _, s := range p.slots {
		s.Stop()
	}
}

// Run starts every slot and waits for all of them to stop.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("starting worker slots", "slots", len(p.slots))

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range p.slots {
		g.Go(func() error {
			return s.Run(ctx)
		})
	}
	err := g.Wait()

	p.log.Info("worker slots stopped")
	return err
}

// Run builds a pool from d and runs it until ctx is done.
func Run(ctx context.Context, d Deps) error {
	return NewPool(d).Run(ctx)
}
