package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"renderworker/internal/pkg/errors"
)

// HTTPClient speaks JSON over HTTP to the dispatch service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for baseURL. A zero timeout waits forever.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type workerNameRequest struct {
	PlatformInfo json.RawMessage `json:"platformInfo"`
	WorkerName   string          `json:"workerName,omitempty"`
}

type jobRequest struct {
	WorkerName string `json:"workerName"`
}

type jobDoneRequest struct {
	WorkerName string `json:"workerName"`
	Job        Job    `json:"job"`
}

func (c *HTTPClient) GetWorkerName(ctx context.Context, platformInfo json.RawMessage, requested string) (WorkerNameResult, error) {
	var res WorkerNameResult
	err := c.post(ctx, "/worker-name", workerNameRequest{PlatformInfo: platformInfo, WorkerName: requested}, &res)
	return res, err
}

func (c *HTTPClient) GetJob(ctx context.Context, worker string) (Job, error) {
	var job Job
	err := c.post(ctx, "/job", jobRequest{WorkerName: worker}, &job)
	return job, err
}

func (c *HTTPClient) JobDone(ctx context.Context, worker string, job Job) error {
	return c.post(ctx, "/job-done", jobDoneRequest{WorkerName: worker, Job: job}, nil)
}

// Ping checks that the service answers at all.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Transport(err, "dispatch.ping")
	}
	res, err := c.client.Do(req)
	if err != nil {
		return errors.Transport(err, "dispatch.ping")
	}
	defer res.Body.Close()
	if res.StatusCode >= 500 {
		return errors.Transport(fmt.Errorf("dispatch http %d", res.StatusCode), "dispatch.ping")
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	op := "dispatch" + path

	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, op, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Transport(err, op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return errors.Transport(err, op)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.Transport(fmt.Errorf("dispatch http %d: %s", res.StatusCode, bytes.TrimSpace(snippet)), op).
			WithField("status", res.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Transport(fmt.Errorf("decode response: %w", err), op)
	}
	return nil
}
