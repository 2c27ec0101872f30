package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"renderworker/internal/pkg/errors"
)

func TestHTTPClientGetWorkerName(t *testing.T) {
	var got workerNameRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/worker-name" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(WorkerNameResult{WorkerName: "canonical"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", 0)
	res, err := c.GetWorkerName(context.Background(), json.RawMessage(`{"clientplatform":"soft"}`), "proposed")
	if err != nil {
		t.Fatalf("GetWorkerName() error = %v", err)
	}
	if res.WorkerName != "canonical" {
		t.Errorf("WorkerName = %q, want canonical", res.WorkerName)
	}
	if got.WorkerName != "proposed" || string(got.PlatformInfo) != `{"clientplatform":"soft"}` {
		t.Errorf("unexpected request body %+v", got)
	}
}

func TestHTTPClientGetJob(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{"no job", `{"jobId":0,"noJob":{}}`, KindNoJob},
		{"skip job", `{"jobId":3,"skipJob":{}}`, KindSkipJob},
		{"image job", `{"jobId":4,"imageJob":{"name":"s","fragmentSource":"void main(){}","points":[0,1,2]}}`, KindImageJob},
		{"empty envelope", `{"jobId":5}`, KindUnknown},
		{"two variants", `{"noJob":{},"skipJob":{}}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req jobRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.WorkerName != "w1" {
					t.Errorf("workerName = %q", req.WorkerName)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			job, err := NewHTTPClient(srv.URL, 0).GetJob(context.Background(), "w1")
			if err != nil {
				t.Fatalf("GetJob() error = %v", err)
			}
			if job.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", job.Kind(), tt.kind)
			}
		})
	}
}

func TestHTTPClientJobDone(t *testing.T) {
	var got jobDoneRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job-done" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	job := Job{JobID: 9, ImageJob: &ImageJob{
		Name:   "shader",
		Result: &ImageJobResult{Status: StatusCompileError, Log: "COMPILE_ERROR\nbad", PassSanityCheck: true},
	}}
	if err := NewHTTPClient(srv.URL, 0).JobDone(context.Background(), "w1", job); err != nil {
		t.Fatalf("JobDone() error = %v", err)
	}
	if got.WorkerName != "w1" || got.Job.JobID != 9 {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Job.ImageJob == nil || got.Job.ImageJob.Result.Status != StatusCompileError {
		t.Errorf("result not transmitted: %+v", got.Job.ImageJob)
	}
}

func TestHTTPClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, 0).GetJob(context.Background(), "w1")
			if !errors.IsCode(err, errors.CodeTransport) {
				t.Errorf("expected TRANSPORT_ERROR, got %v", err)
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := NewHTTPClient(url, 0).JobDone(context.Background(), "w1", Job{SkipJob: &SkipJob{}})
		if !errors.IsCode(err, errors.CodeTransport) {
			t.Errorf("expected TRANSPORT_ERROR, got %v", err)
		}
	})
}
