package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"renderworker/internal/config"
	"renderworker/internal/dispatch"
	"renderworker/internal/gles"
	"renderworker/internal/gles/glestest"
	"renderworker/internal/identity"
	"renderworker/internal/models"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
	"renderworker/internal/worker/archive"
	"renderworker/internal/worker/processor"
)

type step struct {
	job dispatch.Job
	err error
}

// fakeClient serves scripted jobs and cancels the run once they are used up.
type fakeClient struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	names   []dispatch.WorkerNameResult
	asked   []string
	steps   []step
	polls   int
	done    []dispatch.Job
	doneErr error
	// stopWhen decides when an exhausted script cancels the run. Nil means
	// straight away.
	stopWhen func(f *fakeClient) bool
}

func (f *fakeClient) GetWorkerName(_ context.Context, _ json.RawMessage, requested string) (dispatch.WorkerNameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, requested)
	if len(f.names) > 0 {
		res := f.names[0]
		f.names = f.names[1:]
		return res, nil
	}
	if requested == "" {
		requested = fmt.Sprintf("generated-%d", len(f.asked))
	}
	return dispatch.WorkerNameResult{WorkerName: requested}, nil
}

func (f *fakeClient) GetJob(_ context.Context, _ string) (dispatch.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.steps) == 0 {
		if f.stopWhen == nil || f.stopWhen(f) {
			f.cancel()
		}
		return dispatch.Job{NoJob: &dispatch.NoJob{}}, nil
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.job, s.err
}

func (f *fakeClient) JobDone(_ context.Context, _ string, job dispatch.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doneErr != nil {
		return f.doneErr
	}
	f.done = append(f.done, job)
	return nil
}

type memResults struct {
	mu   sync.Mutex
	rows []*models.JobResult
}

func (m *memResults) Create(_ context.Context, r *models.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

type sleeps struct {
	mu sync.Mutex
	ds []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.ds = append(s.ds, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleeps) has(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, got := range s.ds {
		if got == d {
			return true
		}
	}
	return false
}

func noJob() step   { return step{job: dispatch.Job{NoJob: &dispatch.NoJob{}}} }
func skipJob() step { return step{job: dispatch.Job{JobID: 2, SkipJob: &dispatch.SkipJob{}}} }

func imageStep(id int64, fs string) step {
	return step{job: dispatch.Job{JobID: id, ImageJob: &dispatch.ImageJob{
		Name:           fmt.Sprintf("shader-%d", id),
		FragmentSource: fs,
		UniformsInfo:   `{"time":{"func":"glUniform1f","args":[0.5]},"resolution":{"func":"glUniform2f","args":[16,16]}}`,
	}}}
}

type harness struct {
	client  *fakeClient
	sleeps  *sleeps
	devices []*glestest.Device
	opened  int
	deps    Deps
	ctx     context.Context
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Worker.Name = "alpha"
	cfg.Surface = config.Surface{Width: 16, Height: 16}

	h := &harness{
		client: &fakeClient{cancel: cancel, steps: steps},
		sleeps: &sleeps{},
		ctx:    ctx,
	}
	h.deps = Deps{
		Log:        logger.Discard(),
		Config:     cfg,
		Client:     h.client,
		Identities: identity.NewMemoryStore(),
		Sleep:      h.sleeps.sleep,
		OpenDevice: func(int) (gles.Device, error) {
			h.opened++
			if h.opened <= len(h.devices) {
				return h.devices[h.opened-1], nil
			}
			return glestest.New(), nil
		},
	}
	return h
}

func (h *harness) run(t *testing.T) *Slot {
	t.Helper()
	s := NewSlot(0, h.deps)
	if err := s.Run(h.ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return s
}

func ms(n ...int) []time.Duration {
	out := make([]time.Duration, len(n))
	for i, v := range n {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 5*time.Second)

	var got []time.Duration
	for i := 0; i < 11; i++ {
		got = append(got, b.Current())
		b.Double()
	}
	want := ms(10, 20, 40, 80, 160, 320, 640, 1280, 2560, 5000, 5000)
	if !equalDurations(got, want) {
		t.Errorf("delays = %v, want %v", got, want)
	}

	b.Reset()
	if b.Current() != 10*time.Millisecond {
		t.Errorf("after Reset() Current() = %v", b.Current())
	}
}

func TestJournal(t *testing.T) {
	j := NewJournal(3)
	if j.Len() != 0 || len(j.Entries()) != 0 {
		t.Fatal("new journal is not empty")
	}
	for i := 1; i <= 5; i++ {
		j.Add(Entry{JobID: int64(i)})
	}
	got := j.Entries()
	if len(got) != 3 || got[0].JobID != 3 || got[2].JobID != 5 {
		t.Errorf("entries = %+v, want jobs 3..5", got)
	}
	if got[0].Time.IsZero() {
		t.Error("entry time not set")
	}
}

func TestSlotBacksOffOnEmptyPolls(t *testing.T) {
	h := newHarness(t, noJob(), noJob(), noJob())
	s := h.run(t)

	if got := h.sleeps.ds[:3]; !equalDurations(got, ms(10, 20, 40)) {
		t.Errorf("waits = %v, want 10ms 20ms 40ms", got)
	}
	if s.Status().State != StateStopped {
		t.Errorf("State = %s after cancel", s.Status().State)
	}
	if len(h.client.done) != 0 {
		t.Errorf("reported %d jobs", len(h.client.done))
	}
}

func TestSlotResetsBackoffOnWork(t *testing.T) {
	h := newHarness(t, noJob(), noJob(), skipJob(), noJob())
	s := h.run(t)

	if got := h.sleeps.ds[:5]; !equalDurations(got, ms(10, 20, 40, 10, 20)) {
		t.Errorf("waits = %v", got)
	}
	if len(h.client.done) != 1 || h.client.done[0].Kind() != dispatch.KindSkipJob {
		t.Errorf("done = %+v, want the skip job", h.client.done)
	}
	if s.Status().Completed != 1 {
		t.Errorf("Completed = %d", s.Status().Completed)
	}
}

func TestSlotReportsCompileError(t *testing.T) {
	h := newHarness(t, imageStep(5, glestest.BrokenFragmentShader))
	s := h.run(t)

	if len(h.client.done) != 1 {
		t.Fatalf("done = %d jobs, want 1", len(h.client.done))
	}
	res := h.client.done[0].ImageJob.Result
	if res == nil || res.Status != dispatch.StatusCompileError {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.Log, "COMPILE_ERROR\n") {
		t.Errorf("Log = %q", res.Log)
	}

	st := s.Status()
	if st.Worker != "alpha" || st.LastJobID != 5 || st.LastStatus != "COMPILE_ERROR" {
		t.Errorf("unexpected status %+v", st)
	}
	if h.client.asked[0] != "alpha" {
		t.Errorf("requested name = %q", h.client.asked[0])
	}
}

func TestSlotReportsSuccess(t *testing.T) {
	h := newHarness(t, imageStep(6, glestest.FragmentShader))
	h.run(t)

	res := h.client.done[0].ImageJob.Result
	if res.Status != dispatch.StatusSuccess || len(res.PNG) == 0 || res.TimingInfo == nil || !res.PassSanityCheck {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSlotRecoversFromContextLoss(t *testing.T) {
	lossy := glestest.New()
	lossy.LoseAtDraw = 1

	h := newHarness(t, imageStep(8, glestest.FragmentShader), imageStep(9, glestest.FragmentShader))
	h.devices = []*glestest.Device{lossy}
	s := h.run(t)

	if len(h.client.done) != 2 {
		t.Fatalf("done = %d jobs, want 2", len(h.client.done))
	}
	first := h.client.done[0].ImageJob.Result
	if first.PassSanityCheck || !strings.Contains(first.Log, processor.SanityLog) {
		t.Errorf("first result = %+v, want a failed sanity check", first)
	}
	if first.Status != dispatch.StatusUnexpectedError {
		t.Errorf("first status = %s", first.Status)
	}
	if second := h.client.done[1].ImageJob.Result; second.Status != dispatch.StatusSuccess {
		t.Errorf("second status = %s: %s", second.Status, second.Log)
	}

	if h.opened != 2 {
		t.Errorf("devices opened = %d, want 2", h.opened)
	}
	if len(h.client.asked) != 2 {
		t.Errorf("identity negotiated %d times, want 2", len(h.client.asked))
	}
	if h.sleeps.has(h.deps.Config.Worker.ReloadDelay) {
		t.Error("context loss after a job waited for the reload delay")
	}
	if s.Status().Restarts != 0 {
		t.Errorf("Restarts = %d", s.Status().Restarts)
	}
}

func TestSlotRestartsAfterRejectedIdentity(t *testing.T) {
	h := newHarness(t, skipJob())
	h.client.names = []dispatch.WorkerNameResult{{Error: dispatch.WorkerNameTaken}}
	s := h.run(t)

	if !h.sleeps.has(10 * time.Second) {
		t.Errorf("waits = %v, want the 10s rejected-name delay", h.sleeps.ds)
	}
	if h.sleeps.has(2 * time.Second) {
		t.Errorf("waits = %v, the 2s delay is for other failures", h.sleeps.ds)
	}
	if len(h.client.done) != 1 {
		t.Errorf("done = %d jobs after restart, want 1", len(h.client.done))
	}
	if s.Status().Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", s.Status().Restarts)
	}

	var fatal bool
	for _, e := range s.Journal() {
		if e.State == StateFatal && strings.Contains(e.Detail, "WORKER_NAME_TAKEN") {
			fatal = true
		}
	}
	if !fatal {
		t.Errorf("journal has no fatal entry: %+v", s.Journal())
	}
}

func TestSlotRestartsWhenDeviceFails(t *testing.T) {
	h := newHarness(t, skipJob())
	failed := false
	open := h.deps.OpenDevice
	h.deps.OpenDevice = func(slot int) (gles.Device, error) {
		if !failed {
			failed = true
			return nil, fmt.Errorf("no adapter")
		}
		return open(slot)
	}
	s := h.run(t)

	if !h.sleeps.has(2 * time.Second) {
		t.Errorf("waits = %v, want the 2s reload delay", h.sleeps.ds)
	}
	if s.Status().Restarts != 1 || len(h.client.done) != 1 {
		t.Errorf("status = %+v, done = %d", s.Status(), len(h.client.done))
	}
}

func TestSlotTransportErrors(t *testing.T) {
	boom := errors.Transport(fmt.Errorf("connection refused"), "dispatch.get_job")
	h := newHarness(t, step{err: boom}, step{err: boom}, skipJob())
	h.client.doneErr = errors.Transport(fmt.Errorf("reset"), "dispatch.job_done")
	s := h.run(t)

	if got := h.sleeps.ds[:4]; !equalDurations(got, ms(10, 20, 40, 20)) {
		t.Errorf("waits = %v, want 10ms 20ms 40ms 20ms", got)
	}
	if s.Status().Completed != 0 {
		t.Errorf("Completed = %d after a failed report", s.Status().Completed)
	}
	if s.Status().Restarts != 0 {
		t.Error("transport errors restarted the slot")
	}
}

func TestSlotArchivesResults(t *testing.T) {
	store := &memResults{}
	h := newHarness(t, imageStep(11, glestest.FragmentShader))
	h.deps.Archive = archive.New(nil, store, logger.Discard())
	h.run(t)

	if len(store.rows) != 1 || store.rows[0].JobID != 11 || store.rows[0].Worker != "alpha" {
		t.Errorf("archived rows = %+v", store.rows)
	}
}

func TestPool(t *testing.T) {
	h := newHarness(t)
	h.client.stopWhen = func(f *fakeClient) bool { return len(f.asked) >= 2 }
	h.deps.Config.Worker.Slots = 2
	h.deps.Config.Worker.Names = []string{"alpha", "beta"}
	h.deps.OpenDevice = func(int) (gles.Device, error) { return glestest.New(), nil }

	p := NewPool(h.deps)
	if len(p.Slots()) != 2 {
		t.Fatalf("Slots() = %d", len(p.Slots()))
	}
	if _, err := p.Slot(2); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("Slot(2) error = %v", err)
	}

	if err := p.Run(h.ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	names := map[string]bool{}
	for _, s := range p.Slots() {
		names[s.Status().Worker] = true
		if s.Status().State != StateStopped {
			t.Errorf("slot %d state = %s", s.Index(), s.Status().State)
		}
	}
	if !names["alpha"] || !names["beta"] {
		t.Errorf("workers = %v", names)
	}
}

func TestSlotStop(t *testing.T) {
	h := newHarness(t)
	s := NewSlot(0, h.deps)
	s.Stop()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.opened != 0 {
		t.Error("stopped slot opened a device")
	}
}
