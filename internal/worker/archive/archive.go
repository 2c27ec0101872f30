// Package archive keeps the evidence of finished image jobs: captured frames
// go to a storage provider and a summary row goes to the result ledger.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"renderworker/internal/dispatch"
	"renderworker/internal/models"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
	"renderworker/internal/ports"
)

// File names of archived frames under a job key.
const (
	ImageFile  = "image.png"
	Image2File = "image2.png"
)

// ResultStore records archived results. *repositories.ResultRepository
// implements it.
type ResultStore interface {
	Create(ctx context.Context, r *models.JobResult) error
}

type Archive struct {
	sp      ports.StorageProvider
	results ResultStore
	log     *logger.Logger
}

// New returns an archive. Either backend may be nil, in which case that half
// of the evidence is not kept.
func New(sp ports.StorageProvider, results ResultStore, log *logger.Logger) *Archive {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Archive{sp: sp, results: results, log: log.WithComponent("archive")}
}

// Enabled reports whether anything is archived at all.
func (a *Archive) Enabled() bool {
	return a != nil && (a.sp != nil || a.results != nil)
}

// JobKey names the archive directory of a job.
func JobKey(worker string, jobID int64, shader string) string {
	return fmt.Sprintf("%s-%d-%s", SanitizeName(worker), jobID, SanitizeName(shader))
}

// ObjectKey is the storage key of file under jobKey.
func ObjectKey(jobKey, file string) string {
	return "results/" + jobKey + "/" + file
}

// Record archives the result attached to job. Jobs without a result are
// ignored.
func (a *Archive) Record(ctx context.Context, worker string, job dispatch.Job) (*models.JobResult, error) {
	if !a.Enabled() || job.ImageJob == nil || job.ImageJob.Result == nil {
		return nil, nil
	}
	ij := job.ImageJob
	res := ij.Result
	jobKey := JobKey(worker, job.JobID, ij.Name)
	log := a.log.FromContext(ctx).WithWorker(worker).WithJobID(fmt.Sprint(job.JobID))

	row := &models.JobResult{
		JobID:           job.JobID,
		Worker:          worker,
		Shader:          ij.Name,
		Status:          string(res.Status),
		Log:             res.Log,
		PassSanityCheck: res.PassSanityCheck,
	}
	if ti := res.TimingInfo; ti != nil {
		row.CompileMicros = ti.CompilationTime
		row.LinkMicros = ti.LinkingTime
		row.RenderMicros = ti.FirstRenderTime + ti.CaptureTime + ti.OtherRendersTime
	}

	var err error
	if row.ImageKey, err = a.put(ctx, jobKey, ImageFile, res.PNG); err != nil {
		return nil, err
	}
	if row.Image2Key, err = a.put(ctx, jobKey, Image2File, res.PNG2); err != nil {
		return nil, err
	}

	if a.results != nil {
		if err := a.results.Create(ctx, row); err != nil {
			return nil, errors.Wrap(err, "archive.record", "failed to record job result")
		}
	}

	log.Debug("job archived", "job_key", jobKey, "status", row.Status, "image", row.ImageKey)
	return row, nil
}

func (a *Archive) put(ctx context.Context, jobKey, file string, png []byte) (string, error) {
	if a.sp == nil || len(png) == 0 {
		return "", nil
	}
	out, err := a.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   ObjectKey(jobKey, file),
		ContentType: "image/png",
		Reader:      bytes.NewReader(png),
		Size:        int64(len(png)),
	})
	if err != nil {
		return "", errors.Wrapf(err, "archive.put", "failed to upload %s", file)
	}
	return out.ObjectKey, nil
}

// SanitizeName makes s safe as a single path segment.
func SanitizeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "unnamed"
	}
	return s
}
