package processor

import (
	"context"
	"fmt"
	"time"

	"renderworker/internal/dispatch"
	"renderworker/internal/gles"
	"renderworker/internal/pipeline"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
	"renderworker/internal/render"
)

const (
	// FlavourES2 and FlavourES3 select the default vertex shader.
	FlavourES2 = "es2"
	FlavourES3 = "es3"

	// SanityLog is appended to the log of a job after which the graphics
	// context was found lost.
	SanityLog = "SANITY: lost graphics context"

	defaultLog    = "Render worker default log: Nothing to declare\n"
	defaultWidth  = 256
	defaultHeight = 256
)

// Standard vertex shaders used when a job brings none.
const (
	VertexShaderES2 = "#version 100\n" +
		"attribute vec3 a_position;\n\n" +
		"void main(void) {\n" +
		"    gl_Position = vec4(a_position, 1.0);\n" +
		"}\n"

	VertexShaderES3 = "#version 300 es\n" +
		"in vec3 a_position;\n\n" +
		"void main(void) {\n" +
		"    gl_Position = vec4(a_position, 1.0);\n" +
		"}\n"
)

type Deps struct {
	Log           *logger.Logger
	ShaderFlavour string
	// Width and Height size the surface when a job does not.
	Width  int
	Height int
}

type Processor struct {
	log     *logger.Logger
	flavour string
	width   int
	height  int
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	p := &Processor{
		log:     log,
		flavour: d.ShaderFlavour,
		width:   d.Width,
		height:  d.Height,
	}
	if p.flavour == "" {
		p.flavour = FlavourES2
	}
	if p.width < 1 {
		p.width = defaultWidth
	}
	if p.height < 1 {
		p.height = defaultHeight
	}
	return p
}

// Outcome is what the slot needs to know once a job has been handled.
type Outcome struct {
	// Job is the polled job, with its result attached for image jobs.
	Job  dispatch.Job
	Kind dispatch.Kind
	// Report is false when there is nothing to return to the dispatcher.
	Report bool
	// Status is the classification of an image job, or
	// StatusUnexpectedError for an unknown envelope.
	Status dispatch.JobStatus
	// ContextLost is set when the graphics context did not survive the job.
	ContextLost bool
	// Err is the cause behind a non-SUCCESS status.
	Err error
}

// VertexShader returns the default vertex shader for the configured flavour.
func (p *Processor) VertexShader() string {
	if p.flavour == FlavourES3 {
		return VertexShaderES3
	}
	return VertexShaderES2
}

// ProcessJob runs job against gl. Image jobs always leave with exactly one
// result attached, whatever happened while rendering.
func (p *Processor) ProcessJob(ctx context.Context, gl *gles.Context, job dispatch.Job) Outcome {
	out := Outcome{Job: job, Kind: job.Kind()}

	switch out.Kind {
	case dispatch.KindNoJob:
		return out

	case dispatch.KindSkipJob:
		log := p.log.FromContext(ctx)
		log.Debug("skipping job", "job_id", job.JobID)
		out.Report = true
		if p.contextLost(gl, log) {
			out.ContextLost = true
			log.Warn("graphics context lost before skipped job", "job_id", job.JobID)
		}
		return out

	case dispatch.KindImageJob:
		// handled below

	default:
		out.Status = dispatch.StatusUnexpectedError
		out.Err = errors.Newf(errors.CodeValidation, "unknown job type in job %d", job.JobID).
			WithOp("processor.kind")
		p.log.FromContext(ctx).LogError(ctx, "cannot process job", out.Err, "job_id", job.JobID)
		return out
	}

	// The result is attached to a copy so the caller's job is left untouched.
	ij := *job.ImageJob
	log := p.log.FromContext(ctx).WithJobID(fmt.Sprint(job.JobID))
	log.Info(fmt.Sprintf("Rendering shader '%s'.", ij.Name))

	// Every job starts without a program and leaves nothing behind.
	gl.UseProgram(gles.Program{})
	res, err := p.renderImage(ctx, gl, &ij, log)
	out.Err = err
	gl.ReleaseObjects()

	// Sanity check: the context must still be usable for the next job.
	res.PassSanityCheck = true
	if p.contextLost(gl, log) {
		out.ContextLost = true
		res.PassSanityCheck = false
		res.Log += "\n" + SanityLog
		log.Warn("graphics context lost during job")
	}

	ij.Result = res
	out.Job.ImageJob = &ij
	out.Status = res.Status
	out.Report = true

	log.Info(fmt.Sprintf("Image job status is '%s'.", res.Status))
	return out
}

// renderImage executes an image job and classifies the result. Panics are
// turned into UNEXPECTED_ERROR.
func (p *Processor) renderImage(ctx context.Context, gl *gles.Context, job *dispatch.ImageJob, log *logger.Logger) (res *dispatch.ImageJobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internalf("panic while rendering: %v", r).WithOp("processor.render")
			log.LogError(ctx, "render panicked", err)
			res = result(dispatch.StatusUnexpectedError, err.Error())
		}
	}()

	// 1. Assemble the pipeline: surface size, program, the job's own state.
	d, err := p.buildPipeline(job, gl.Limits())
	if err != nil {
		return p.fail(ctx, log, err), err
	}

	// 2. Replay it.
	log.Debug("applying pipeline", "transitions", d.Len())
	stats, err := pipeline.NewInterpreter(gl, log).Apply(d)
	if err != nil {
		return p.fail(ctx, log, err), err
	}

	// 3. Geometry and uniforms.
	r, err := render.NewRenderer(gl, job.Points, log)
	if err != nil {
		return p.fail(ctx, log, err), err
	}
	defer r.Close()
	uniforms, err := pipeline.ParseUniforms(job.UniformsInfo)
	if err != nil {
		return p.fail(ctx, log, err), err
	}

	// 4. Render and compare.
	det, err := render.NewDetector(r).Run(stats.Program, uniforms)
	if errors.IsCode(err, errors.CodeNonDet) {
		res := p.fail(ctx, log, err)
		if det.Divergent != nil {
			res.PNG = encode(log, *det.Divergent)
		}
		res.PNG2 = encode(log, det.Baseline)
		return res, err
	}
	if err != nil {
		return p.fail(ctx, log, err), err
	}

	res = result(dispatch.StatusSuccess, defaultLog)
	res.PNG, err = det.Baseline.PNG()
	if err != nil {
		err = errors.Wrap(err, "processor.encode", "failed to encode frame")
		return p.fail(ctx, log, err), err
	}
	res.TimingInfo = &dispatch.TimingInfo{
		CompilationTime:  dispatch.Micros(stats.CompileTime),
		LinkingTime:      dispatch.Micros(stats.LinkTime),
		FirstRenderTime:  dispatch.Micros(det.FirstRender),
		CaptureTime:      dispatch.Micros(det.Capture),
		OtherRendersTime: dispatch.Micros(det.RepeatRenders),
	}
	log.Debug("render timing",
		"compile_us", res.TimingInfo.CompilationTime,
		"link_us", res.TimingInfo.LinkingTime,
		"first_render_us", res.TimingInfo.FirstRenderTime,
		"renders", det.Renders,
	)
	return res, nil
}

// buildPipeline sizes the surface and links the job program before the
// job's own transitions run, so uniform and vertex transitions always find
// the job's program current.
func (p *Processor) buildPipeline(job *dispatch.ImageJob, limits gles.Limits) (*pipeline.Description, error) {
	width, height := job.Width, job.Height
	if width < 1 {
		width = p.width
	}
	if height < 1 {
		height = p.height
	}
	if width > limits.MaxSurfaceSize || height > limits.MaxSurfaceSize {
		return nil, errors.Validationf("surface %dx%d exceeds the maximum size %d", width, height, limits.MaxSurfaceSize).
			WithOp("processor.size")
	}

	vs := job.VertexSource
	if vs == "" {
		vs = p.VertexShader()
	}
	d := pipeline.New().Width(width).Height(height).Program(vs, job.FragmentSource)

	if len(job.Pipeline) > 0 {
		extra, err := pipeline.Parse(job.Pipeline)
		if err != nil {
			return nil, errors.Wrap(err, "processor.pipeline", "invalid job pipeline")
		}
		d.Concat(extra)
	}
	return d, nil
}

// contextLost is the sanity check run after every reported job. It drains
// the error flag and reports whether the context is gone.
func (p *Processor) contextLost(gl *gles.Context, log *logger.Logger) bool {
	if err := gl.CheckError("processor.sanity"); err != nil && !errors.IsContextLost(err) {
		log.Debug("graphics error left after job", "error", err)
	}
	return gl.Lost()
}

// Classify maps an execution error to a job status. Every error has exactly
// one status; nil is SUCCESS.
func Classify(err error) dispatch.JobStatus {
	if err == nil {
		return dispatch.StatusSuccess
	}
	switch errors.GetCode(err) {
	case errors.CodeCompile:
		return dispatch.StatusCompileError
	case errors.CodeLink:
		return dispatch.StatusLinkError
	case errors.CodeNonDet:
		return dispatch.StatusNonDet
	default:
		return dispatch.StatusUnexpectedError
	}
}

func (p *Processor) fail(ctx context.Context, log *logger.Logger, cause error) *dispatch.ImageJobResult {
	status := Classify(cause)

	var e *errors.Error
	msg := cause.Error()
	if errors.As(cause, &e) {
		// Compile, link and nondet messages are the diagnostic itself.
		if status != dispatch.StatusUnexpectedError {
			msg = e.Message
		}
		log.Warn("job failed",
			"status", string(status),
			"code", string(e.Code),
			"op", e.Op,
		)
	} else {
		log.LogError(ctx, "job failed", cause, "status", string(status))
	}
	return result(status, msg)
}

func result(status dispatch.JobStatus, log string) *dispatch.ImageJobResult {
	return &dispatch.ImageJobResult{Status: status, Log: string(status) + "\n" + log}
}

func encode(log *logger.Logger, f gles.Frame) []byte {
	start := time.Now()
	b, err := f.PNG()
	if err != nil {
		log.Warn("failed to encode frame", "error", err)
		return nil
	}
	log.Debug("frame encoded", "bytes", len(b), "took", time.Since(start))
	return b
}
