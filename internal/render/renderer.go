// Package render draws a linked program over job geometry and checks the
// output for non-determinism.
package render

import (
	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
)

// PositionAttribute is the vertex attribute fed with job geometry.
const PositionAttribute = "a_position"

// DefaultQuad covers clip space with two triangles, three floats per vertex.
var DefaultQuad = []float32{
	-1, -1, 0,
	1, -1, 0,
	1, 1, 0,
	-1, -1, 0,
	-1, 1, 0,
	1, 1, 0,
}

// Renderer owns the vertex and index buffers of one job.
type Renderer struct {
	gl       *gles.Context
	log      *logger.Logger
	vertices gles.Buffer
	indices  gles.Buffer
	count    int
}

// NewRenderer uploads points, or DefaultQuad when points is empty, together
// with a sequential index list.
func NewRenderer(gl *gles.Context, points []float32, log *logger.Logger) (*Renderer, error) {
	if log == nil {
		log = logger.Discard()
	}
	if len(points) == 0 {
		points = DefaultQuad
	}
	if len(points)%3 != 0 {
		return nil, errors.Validationf("vertex data has %d floats, want a multiple of 3", len(points)).
			WithOp("render.new")
	}
	n := len(points) / 3
	if n > 1<<16 {
		return nil, errors.Validationf("too many vertices: %d", n).WithOp("render.new")
	}

	idx := make([]uint16, n)
	for i := range idx {
		idx[i] = uint16(i)
	}

	r := &Renderer{gl: gl, log: log.WithComponent("render"), count: n}
	r.vertices = gl.UploadArray(points, gles.StaticDraw)
	r.indices = gl.UploadIndices(idx)
	if err := gl.CheckError("render.upload"); err != nil {
		return nil, err
	}
	return r, nil
}

// Count returns the number of indices drawn per frame.
func (r *Renderer) Count() int { return r.count }

// Draw binds p, applies uniforms in order, clears to transparent black and
// issues the indexed draw.
func (r *Renderer) Draw(p gles.Program, uniforms []gles.Uniform) error {
	gl := r.gl
	gl.UseProgram(p)

	// An inactive position attribute reports -1, which the attribute setup
	// below rejects with INVALID_VALUE.
	loc, _ := gl.AttribLocation(p, PositionAttribute)
	gl.ApplyUniforms(uniforms)

	gl.BindBuffer(r.vertices)
	gl.SetAttribArray(loc, 3, 0, 0)
	gl.BindBuffer(r.indices)

	gl.Clear(0, 0, 0, 0)
	gl.DrawIndexed(gles.Triangles, r.count)
	return gl.CheckError("render.draw")
}

// Capture reads the frame back.
func (r *Renderer) Capture() (gles.Frame, error) {
	frame := r.gl.CaptureFrame()
	if err := r.gl.CheckError("render.capture"); err != nil {
		return gles.Frame{}, err
	}
	return frame, nil
}

// Close deletes the vertex and index buffers.
func (r *Renderer) Close() {
	r.gl.DeleteBuffer(r.vertices)
	r.gl.DeleteBuffer(r.indices)
}

// RenderOnce draws and captures a single frame.
func (r *Renderer) RenderOnce(p gles.Program, uniforms []gles.Uniform) (gles.Frame, error) {
	if err := r.Draw(p, uniforms); err != nil {
		return gles.Frame{}, err
	}
	return r.Capture()
}
