package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"renderworker/internal/dispatch"
	"renderworker/internal/gles"
	"renderworker/internal/identity"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
	"renderworker/internal/worker/processor"
)

// State is where a slot is in its lifecycle.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateIdentifying   State = "IDENTIFYING"
	StatePolling       State = "POLLING"
	StateExecuting     State = "EXECUTING"
	StateReporting     State = "REPORTING"
	StateFatal         State = "FATAL"
	StateStopped       State = "STOPPED"
)

// Status is a snapshot of a slot for the status API.
type Status struct {
	Slot       int       `json:"slot"`
	State      State     `json:"state"`
	Worker     string    `json:"worker,omitempty"`
	Completed  int64     `json:"completed"`
	Restarts   int       `json:"restarts"`
	BackoffMs  int64     `json:"backoff_ms"`
	LastJobID  int64     `json:"last_job_id,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Slot is one independent worker: its own device, context, identity and
// backoff. Only the status snapshot and journal are shared with readers.
type Slot struct {
	index int
	d     Deps
	base  *logger.Logger
	log   *logger.Logger
	proc  *processor.Processor
	neg   *identity.Negotiator
	sleep func(ctx context.Context, d time.Duration) error

	backoff *Backoff
	journal *Journal
	running atomic.Bool

	// Owned by the slot goroutine.
	gl *gles.Context
	id identity.Identity

	mu     sync.RWMutex
	status Status
}

func NewSlot(index int, d Deps) *Slot {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker").WithSlot(index)

	size := d.JournalSize
	if size == 0 {
		size = 128
	}
	sl := &Slot{
		index: index,
		d:     d,
		base:  log,
		log:   log,
		proc: processor.New(processor.Deps{
			Log:           log,
			ShaderFlavour: d.Config.Worker.ShaderFlavour,
			Width:         d.Config.Surface.Width,
			Height:        d.Config.Surface.Height,
		}),
		neg:     identity.NewNegotiator(d.Client, d.Identities, log),
		sleep:   d.Sleep,
		backoff: NewBackoff(d.Config.Worker.BackoffMin, d.Config.Worker.BackoffMax),
		journal: NewJournal(size),
		status:  Status{Slot: index, State: StateUninitialized},
	}
	if sl.sleep == nil {
		sl.sleep = sleep
	}
	if d.Identities == nil {
		sl.neg = identity.NewNegotiator(d.Client, identity.NewMemoryStore(), log)
	}
	sl.running.Store(true)
	return sl
}

func (s *Slot) Index() int { return s.index }

// Status returns a snapshot of the slot.
func (s *Slot) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Journal returns the recent state transitions and job outcomes.
func (s *Slot) Journal() []Entry { return s.journal.Entries() }

// Stop asks the slot to finish at its next iteration boundary.
func (s *Slot) Stop() { s.running.Store(false) }

func (s *Slot) active(ctx context.Context) bool {
	return s.running.Load() && ctx.Err() == nil
}

// Run drives the slot until ctx is done or Stop is called. Fatal errors tear
// the slot down; it restarts from scratch after the reload delay.
func (s *Slot) Run(ctx context.Context) error {
	defer s.teardown()

	for s.active(ctx) {
		recovering, err := s.session(ctx)
		s.teardown()
		if !s.active(ctx) {
			break
		}

		if recovering {
			s.event(StateUninitialized, "reinitializing after context loss", 0, "", "")
			continue
		}

		delay := s.d.Config.Worker.ReloadDelay
		if errors.IsCode(err, errors.CodeIdentityRejected) {
			delay = s.d.Config.Worker.RejectedReloadDelay
		}
		s.fail(err)
		s.log.LogError(ctx, "slot failed, restarting", err, "delay", delay.String())
		if s.sleep(ctx, delay) != nil {
			break
		}
		s.update(func(st *Status) { st.Restarts++ })
	}

	s.setState(StateStopped)
	return nil
}

// session initializes the slot and polls until something goes wrong.
// recovering is true when the graphics context was lost during a job that
// has already been reported.
func (s *Slot) session(ctx context.Context) (recovering bool, err error) {
	s.setState(StateUninitialized)
	s.backoff.Reset()

	if err := s.init(ctx); err != nil {
		return false, err
	}

	for s.active(ctx) {
		s.update(func(st *Status) { st.BackoffMs = s.backoff.Current().Milliseconds() })
		if err := s.sleep(ctx, s.backoff.Current()); err != nil {
			return false, err
		}
		if !s.active(ctx) {
			break
		}

		s.setState(StatePolling)
		job, err := s.d.Client.GetJob(ctx, s.id.Name)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			s.log.Warn("job poll failed", "error", err)
			s.backoff.Double()
			continue
		}
		if job.Kind() == dispatch.KindNoJob {
			s.backoff.Double()
			continue
		}
		s.backoff.Reset()

		lost, err := s.execute(ctx, job)
		if err != nil {
			return false, err
		}
		if lost {
			return true, nil
		}
	}
	return false, ctx.Err()
}

// init opens the device and context and negotiates a name.
func (s *Slot) init(ctx context.Context) error {
	if s.d.OpenDevice == nil {
		return errors.Internalf("no graphics device configured").WithOp("worker.init")
	}
	dev, err := s.d.OpenDevice(s.index)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "worker.init", "cannot create graphics context")
	}
	cfg := s.d.Config.Surface
	s.gl = gles.NewContext(dev, cfg.Width, cfg.Height, s.log, gles.WithLimits(gles.Limits{
		MaxSurfaceSize: cfg.MaxSize,
		MaxTextureSize: cfg.MaxTextureSize,
	}))
	if err := s.gl.CheckError("worker.init"); errors.IsContextLost(err) {
		return err
	}

	s.setState(StateIdentifying)
	id, err := s.neg.Negotiate(ctx, s.index, s.d.Config.RequestedName(s.index), identity.PlatformInfo(s.gl.Info()))
	if err != nil {
		return err
	}
	s.id = id
	s.log = s.base.WithWorker(id.Name)
	s.update(func(st *Status) { st.Worker = id.Name })
	s.event(StateIdentifying, "identity accepted", 0, "", id.Name)
	return nil
}

// execute runs a job and reports it. The job is reported even when the
// context was lost while running it.
func (s *Slot) execute(ctx context.Context, job dispatch.Job) (lost bool, err error) {
	s.setState(StateExecuting)
	out := s.proc.ProcessJob(ctx, s.gl, job)

	status := string(out.Status)
	if out.Kind == dispatch.KindSkipJob {
		status = "SKIPPED"
	}

	if out.Report {
		s.setState(StateReporting)
		if err := s.d.Client.JobDone(ctx, s.id.Name, out.Job); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			s.log.Warn("job report failed", "job_id", job.JobID, "error", err)
			s.backoff.Double()
			s.event(StateReporting, "report failed", job.JobID, status, err.Error())
		} else {
			s.update(func(st *Status) { st.Completed++ })
		}
		if _, err := s.d.Archive.Record(ctx, s.id.Name, out.Job); err != nil {
			s.log.Warn("job archive failed", "job_id", job.JobID, "error", err)
		}
	}

	detail := ""
	if out.Err != nil {
		detail = out.Err.Error()
	}
	s.update(func(st *Status) {
		st.LastJobID = job.JobID
		st.LastStatus = status
	})
	s.event(StateExecuting, "job "+out.Kind.String(), job.JobID, status, detail)

	return out.ContextLost, nil
}

func (s *Slot) teardown() {
	if s.gl != nil {
		s.gl.Release()
		s.gl = nil
	}
	s.log = s.base
}

func (s *Slot) setState(state State) {
	s.mu.Lock()
	prev := s.status.State
	s.status.State = state
	s.status.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	if prev != state {
		s.log.Debug("slot state", "from", string(prev), "to", string(state))
	}
}

func (s *Slot) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.status.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Slot) fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.setState(StateFatal)
	s.update(func(st *Status) { st.LastError = msg })
	s.event(StateFatal, "slot failed", 0, "", msg)
}

func (s *Slot) event(state State, event string, jobID int64, status, detail string) {
	s.journal.Add(Entry{State: state, Event: event, JobID: jobID, Status: status, Detail: detail})
}
