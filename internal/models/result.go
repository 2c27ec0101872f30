package models

import "time"

// JobResult is the archived outcome of one image job.
type JobResult struct {
	ID              string    `json:"id"`
	JobID           int64     `json:"job_id"`
	Worker          string    `json:"worker"`
	Shader          string    `json:"shader"`
	Status          string    `json:"status"`
	Log             string    `json:"log"`
	ImageKey        string    `json:"image_key,omitempty"`
	Image2Key       string    `json:"image2_key,omitempty"`
	CompileMicros   int64     `json:"compile_us"`
	LinkMicros      int64     `json:"link_us"`
	RenderMicros    int64     `json:"render_us"`
	PassSanityCheck bool      `json:"pass_sanity_check"`
	CreatedAt       time.Time `json:"created_at"`
}
