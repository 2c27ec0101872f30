package archive

import (
	"context"
	"fmt"
	"io"
	"testing"

	"renderworker/internal/adapters/storage/localfs"
	"renderworker/internal/dispatch"
	"renderworker/internal/models"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
)

type memResults struct {
	rows []*models.JobResult
	err  error
}

func (m *memResults) Create(_ context.Context, r *models.JobResult) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, r)
	return nil
}

func nondetJob() dispatch.Job {
	return dispatch.Job{JobID: 12, ImageJob: &dispatch.ImageJob{
		Name: "frag 01",
		Result: &dispatch.ImageJobResult{
			Status:          dispatch.StatusNonDet,
			Log:             "NONDET\nShader was non-deterministic.",
			PNG:             []byte("divergent"),
			PNG2:            []byte("baseline"),
			PassSanityCheck: true,
		},
	}}
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	fs := localfs.New(t.TempDir())
	results := &memResults{}
	a := New(fs, results, logger.Discard())

	row, err := a.Record(ctx, "w1", nondetJob())
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	wantKey := "results/w1-12-frag_01/image.png"
	if row.ImageKey != wantKey || row.Image2Key != "results/w1-12-frag_01/image2.png" {
		t.Errorf("keys = %q, %q", row.ImageKey, row.Image2Key)
	}
	if len(results.rows) != 1 || results.rows[0].Status != "NONDET" || results.rows[0].JobID != 12 {
		t.Fatalf("unexpected rows %+v", results.rows)
	}

	for key, want := range map[string]string{row.ImageKey: "divergent", row.Image2Key: "baseline"} {
		rc, _, _, err := fs.GetObject(ctx, key)
		if err != nil {
			t.Fatalf("GetObject(%s) error = %v", key, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != want {
			t.Errorf("%s = %q, want %q", key, data, want)
		}
	}
}

func TestRecordTiming(t *testing.T) {
	results := &memResults{}
	a := New(nil, results, logger.Discard())

	job := dispatch.Job{JobID: 1, ImageJob: &dispatch.ImageJob{Name: "s", Result: &dispatch.ImageJobResult{
		Status:     dispatch.StatusSuccess,
		PNG:        []byte("png"),
		TimingInfo: &dispatch.TimingInfo{CompilationTime: 5, LinkingTime: 3, FirstRenderTime: 10, CaptureTime: 2, OtherRendersTime: 30},
	}}}
	row, err := a.Record(context.Background(), "w1", job)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if row.ImageKey != "" {
		t.Errorf("ImageKey = %q without a storage provider", row.ImageKey)
	}
	if row.CompileMicros != 5 || row.LinkMicros != 3 || row.RenderMicros != 42 {
		t.Errorf("unexpected timing %+v", row)
	}
}

func TestRecordSkipsJobsWithoutResult(t *testing.T) {
	results := &memResults{}
	a := New(nil, results, logger.Discard())

	for _, job := range []dispatch.Job{
		{SkipJob: &dispatch.SkipJob{}},
		{ImageJob: &dispatch.ImageJob{Name: "pending"}},
	} {
		row, err := a.Record(context.Background(), "w1", job)
		if row != nil || err != nil {
			t.Errorf("Record(%+v) = %+v, %v", job, row, err)
		}
	}
	if len(results.rows) != 0 {
		t.Errorf("recorded %d rows", len(results.rows))
	}
}

func TestRecordDisabled(t *testing.T) {
	a := New(nil, nil, logger.Discard())
	if a.Enabled() {
		t.Fatal("archive without backends reports enabled")
	}
	row, err := a.Record(context.Background(), "w1", nondetJob())
	if row != nil || err != nil {
		t.Errorf("Record() = %+v, %v", row, err)
	}
}

func TestRecordStoreError(t *testing.T) {
	results := &memResults{err: errors.Unavailable("postgres")}
	a := New(nil, results, logger.Discard())

	_, err := a.Record(context.Background(), "w1", nondetJob())
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("expected UNAVAILABLE, got %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"shader", "shader"},
		{"  ../etc/passwd ", "_etc_passwd"},
		{`a\b c`, "a_b_c"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := JobKey("w/1", 3, "x"); got != fmt.Sprintf("w_1-%d-x", 3) {
		t.Errorf("JobKey() = %q", got)
	}
}
