package render

import (
	"time"

	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
)

// Repeats is the number of renders compared against the baseline.
const Repeats = 3

// Detection is the outcome of a non-determinism check.
type Detection struct {
	// Baseline is the first frame rendered.
	Baseline gles.Frame
	// Divergent is the first repeat that differs from Baseline, if any.
	Divergent *gles.Frame
	// Renders counts the frames rendered, baseline included.
	Renders int

	FirstRender   time.Duration
	Capture       time.Duration
	RepeatRenders time.Duration
}

// Deterministic reports whether every repeat matched the baseline.
func (d Detection) Deterministic() bool { return d.Divergent == nil }

// Detector renders a program several times and compares frames byte for
// byte.
type Detector struct {
	r *Renderer
}

// NewDetector returns a detector rendering with r.
func NewDetector(r *Renderer) *Detector {
	return &Detector{r: r}
}

// Run renders a baseline and then up to Repeats more frames, stopping at the
// first one that differs. A difference is reported as a NONDET error next to
// a Detection holding both frames.
func (d *Detector) Run(p gles.Program, uniforms []gles.Uniform) (Detection, error) {
	var det Detection

	start := time.Now()
	if err := d.r.Draw(p, uniforms); err != nil {
		return det, err
	}
	det.FirstRender = time.Since(start)

	start = time.Now()
	baseline, err := d.r.Capture()
	if err != nil {
		return det, err
	}
	det.Capture = time.Since(start)
	det.Baseline = baseline
	det.Renders = 1

	start = time.Now()
	for i := 0; i < Repeats; i++ {
		frame, err := d.r.RenderOnce(p, uniforms)
		if err != nil {
			return det, err
		}
		det.Renders++
		if !frame.Equal(baseline) {
			det.RepeatRenders = time.Since(start)
			det.Divergent = &frame
			d.r.log.Info("frame diverged from baseline", "render", det.Renders)
			return det, errors.New(errors.CodeNonDet, "Shader was non-deterministic.").
				WithOp("render.detect").
				WithField("render", det.Renders)
		}
	}
	det.RepeatRenders = time.Since(start)
	return det, nil
}
