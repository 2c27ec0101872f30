// Package dispatch talks to the job dispatch service: it negotiates worker
// names, fetches jobs and returns their results.
package dispatch

import (
	"encoding/json"
	"time"
)

// JobStatus is the outcome of an image job.
type JobStatus string

const (
	StatusUnknown         JobStatus = "UNKNOWN"
	StatusSuccess         JobStatus = "SUCCESS"
	StatusCompileError    JobStatus = "COMPILE_ERROR"
	StatusLinkError       JobStatus = "LINK_ERROR"
	StatusNonDet          JobStatus = "NONDET"
	StatusUnexpectedError JobStatus = "UNEXPECTED_ERROR"
)

// Valid reports whether s is one of the final statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusCompileError, StatusLinkError, StatusNonDet, StatusUnexpectedError:
		return true
	}
	return false
}

// WorkerNameError explains why a requested name was refused.
type WorkerNameError string

const (
	NoSuchWorker        WorkerNameError = "NO_SUCH_WORKER"
	WorkerNameTaken     WorkerNameError = "WORKER_NAME_TAKEN"
	PlatformInfoMissing WorkerNameError = "PLATFORM_INFO_MISSING"
)

// WorkerNameResult is the answer to a name request. WorkerName is empty when
// the request was rejected.
type WorkerNameResult struct {
	WorkerName string          `json:"workerName,omitempty"`
	Error      WorkerNameError `json:"error,omitempty"`
}

// Kind identifies the populated variant of a Job.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoJob
	KindSkipJob
	KindImageJob
)

func (k Kind) String() string {
	switch k {
	case KindNoJob:
		return "no_job"
	case KindSkipJob:
		return "skip_job"
	case KindImageJob:
		return "image_job"
	default:
		return "unknown"
	}
}

// NoJob means there is nothing to do yet.
type NoJob struct{}

// SkipJob asks the worker to acknowledge a job without running it.
type SkipJob struct{}

// Job is a tagged union: exactly one variant is expected to be set.
type Job struct {
	JobID    int64     `json:"jobId"`
	NoJob    *NoJob    `json:"noJob,omitempty"`
	SkipJob  *SkipJob  `json:"skipJob,omitempty"`
	ImageJob *ImageJob `json:"imageJob,omitempty"`
}

// Kind returns the populated variant. Envelopes with none, or more than one,
// populated are KindUnknown.
func (j Job) Kind() Kind {
	kind, n := KindUnknown, 0
	if j.NoJob != nil {
		kind, n = KindNoJob, n+1
	}
	if j.SkipJob != nil {
		kind, n = KindSkipJob, n+1
	}
	if j.ImageJob != nil {
		kind, n = KindImageJob, n+1
	}
	if n != 1 {
		return KindUnknown
	}
	return kind
}

// ImageJob renders one shader.
type ImageJob struct {
	Name           string `json:"name"`
	VertexSource   string `json:"vertexSource,omitempty"`
	FragmentSource string `json:"fragmentSource"`
	// Points are vertex positions, three floats each.
	Points []float32 `json:"points,omitempty"`
	// UniformsInfo is a JSON object mapping uniform names to {func, args}.
	UniformsInfo string `json:"uniformsInfo,omitempty"`
	// Pipeline is an optional {"glstate": [...]} document applied before the
	// shaders are compiled.
	Pipeline json.RawMessage `json:"pipeline,omitempty"`
	Width    int             `json:"width,omitempty"`
	Height   int             `json:"height,omitempty"`

	Result *ImageJobResult `json:"result,omitempty"`
}

// ImageJobResult is filled in by the worker before the job is returned.
type ImageJobResult struct {
	Status          JobStatus   `json:"status"`
	Log             string      `json:"log"`
	PNG             []byte      `json:"PNG,omitempty"`
	PNG2            []byte      `json:"PNG2,omitempty"`
	TimingInfo      *TimingInfo `json:"timingInfo,omitempty"`
	PassSanityCheck bool        `json:"passSanityCheck"`
}

// TimingInfo holds durations in microseconds.
type TimingInfo struct {
	CompilationTime  int64 `json:"compilationTime"`
	LinkingTime      int64 `json:"linkingTime"`
	FirstRenderTime  int64 `json:"firstRenderTime"`
	CaptureTime      int64 `json:"captureTime"`
	OtherRendersTime int64 `json:"otherRendersTime"`
}

// Micros converts d for TimingInfo.
func Micros(d time.Duration) int64 {
	return d.Microseconds()
}
