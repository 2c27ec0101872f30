package render_test

import (
	"strings"
	"testing"

	"renderworker/internal/gles"
	"renderworker/internal/gles/glestest"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/render"
)

var timeUniform = []gles.Uniform{{Name: "time", Func: "glUniform1f", Args: []float64{0}}}

func linked(t *testing.T, gl *gles.Context) gles.Program {
	t.Helper()
	vs, err := gl.CompileShader(gles.VertexShader, glestest.VertexShader)
	if err != nil {
		t.Fatalf("vertex: %v", err)
	}
	fs, err := gl.CompileShader(gles.FragmentShader, glestest.FragmentShader)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	p, err := gl.LinkProgram(vs, fs)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	return p
}

func TestNewRenderer(t *testing.T) {
	tests := []struct {
		name   string
		points []float32
		count  int
		ok     bool
	}{
		{"default quad", nil, 6, true},
		{"caller geometry", glestest.Quad[:9], 3, true},
		{"ragged", []float32{0, 0}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, _ := glestest.NewContext(t, 8, 8)
			r, err := render.NewRenderer(gl, tt.points, nil)
			if !tt.ok {
				if !errors.IsCode(err, errors.CodeValidation) {
					t.Fatalf("expected VALIDATION_ERROR, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRenderer() error = %v", err)
			}
			if r.Count() != tt.count {
				t.Errorf("Count() = %d, want %d", r.Count(), tt.count)
			}
		})
	}
}

func TestRenderOnce(t *testing.T) {
	gl, dev := glestest.NewContext(t, 16, 16)
	r, err := render.NewRenderer(gl, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	p := linked(t, gl)

	frame, err := r.RenderOnce(p, timeUniform)
	if err != nil {
		t.Fatalf("RenderOnce() error = %v", err)
	}
	if frame.Width != 16 || frame.Height != 16 {
		t.Errorf("unexpected frame size %dx%d", frame.Width, frame.Height)
	}
	if dev.Draws != 1 || dev.Captures != 1 {
		t.Errorf("expected one draw and one capture, got %d and %d", dev.Draws, dev.Captures)
	}

	buf, enabled := dev.AttribBinding(0)
	if buf == 0 || !enabled {
		t.Error("a_position should be sourced from the vertex buffer")
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *glestest.Device)
		code  errors.Code
	}{
		{"context lost at draw", func(d *glestest.Device) { d.LoseAtDraw = 1 }, errors.CodeContextLost},
		{"context lost at capture", func(d *glestest.Device) { d.LoseAtCapture = 1 }, errors.CodeContextLost},
		{"api error at draw", func(d *glestest.Device) { d.DrawError = gles.InvalidOperation }, errors.CodeGL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, dev := glestest.NewContext(t, 8, 8)
			r, err := render.NewRenderer(gl, nil, nil)
			if err != nil {
				t.Fatalf("NewRenderer() error = %v", err)
			}
			p := linked(t, gl)
			tt.setup(dev)

			_, err = r.RenderOnce(p, timeUniform)
			if !errors.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestDetector(t *testing.T) {
	tests := []struct {
		name      string
		driftFrom int
		renders   int
		nondet    bool
	}{
		{"deterministic", 0, 4, false},
		{"second render differs", 2, 2, true},
		{"third render differs", 3, 3, true},
		{"last render differs", 4, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, dev := glestest.NewContext(t, 8, 8)
			r, err := render.NewRenderer(gl, nil, nil)
			if err != nil {
				t.Fatalf("NewRenderer() error = %v", err)
			}
			p := linked(t, gl)
			dev.DriftFromCapture = tt.driftFrom

			det, err := render.NewDetector(r).Run(p, timeUniform)

			if det.Renders != tt.renders || dev.Draws != tt.renders {
				t.Errorf("rendered %d frames (%d draws), want %d", det.Renders, dev.Draws, tt.renders)
			}
			if !tt.nondet {
				if err != nil {
					t.Fatalf("Run() error = %v", err)
				}
				if !det.Deterministic() {
					t.Error("expected a deterministic result")
				}
				if det.FirstRender < 0 || det.Capture < 0 || det.RepeatRenders < 0 {
					t.Errorf("negative timings %+v", det)
				}
				return
			}

			if !errors.IsCode(err, errors.CodeNonDet) {
				t.Fatalf("expected NONDET, got %v", err)
			}
			if det.Divergent == nil {
				t.Fatal("expected the divergent frame")
			}
			if det.Baseline.Equal(*det.Divergent) {
				t.Error("baseline and divergent frame must differ")
			}
			if len(det.Baseline.Pix) == 0 {
				t.Error("expected the baseline frame")
			}
		})
	}
}

func TestDetectorContextLoss(t *testing.T) {
	gl, dev := glestest.NewContext(t, 8, 8)
	r, err := render.NewRenderer(gl, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	p := linked(t, gl)
	dev.LoseAtDraw = 3

	det, err := render.NewDetector(r).Run(p, timeUniform)
	if !errors.IsContextLost(err) {
		t.Fatalf("expected CONTEXT_LOST, got %v", err)
	}
	if det.Renders != 2 {
		t.Errorf("expected two completed renders, got %d", det.Renders)
	}
}

func TestRenderWithoutPositionAttribute(t *testing.T) {
	const noPositionVS = `attribute vec3 a_vertex;
void main(void) {
  gl_Position = vec4(a_vertex, 1.0);
}
`
	tests := []struct {
		name string
		vs   string
		code errors.Code
	}{
		{"position attribute active", glestest.VertexShader, ""},
		{"position attribute missing", noPositionVS, errors.CodeGL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, _ := glestest.NewContext(t, 8, 8)
			r, err := render.NewRenderer(gl, nil, nil)
			if err != nil {
				t.Fatalf("NewRenderer() error = %v", err)
			}
			vs, err := gl.CompileShader(gles.VertexShader, tt.vs)
			if err != nil {
				t.Fatalf("vertex: %v", err)
			}
			fs, err := gl.CompileShader(gles.FragmentShader, glestest.FragmentShader)
			if err != nil {
				t.Fatalf("fragment: %v", err)
			}
			p, err := gl.LinkProgram(vs, fs)
			if err != nil {
				t.Fatalf("link: %v", err)
			}

			_, err = r.RenderOnce(p, timeUniform)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("RenderOnce() error = %v", err)
				}
				return
			}
			if !errors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if !strings.Contains(err.Error(), "INVALID_VALUE") {
				t.Errorf("expected INVALID_VALUE, got %v", err)
			}
		})
	}
}

func TestRendererClose(t *testing.T) {
	gl, _ := glestest.NewContext(t, 8, 8)
	r, err := render.NewRenderer(gl, nil, nil)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	if _, buffers, _ := gl.Objects(); buffers != 2 {
		t.Fatalf("buffers = %d, want 2", buffers)
	}

	r.Close()
	if _, buffers, _ := gl.Objects(); buffers != 0 {
		t.Errorf("buffers after Close = %d, want 0", buffers)
	}
	if gl.ArrayBufferBound() {
		t.Error("deleted vertex buffer is still bound")
	}
}
