//go:build linux

package native

import (
	"encoding/binary"
	"math"
	"testing"

	"renderworker/internal/gles"
)

const (
	testVS = "attribute vec2 a_position;\nvoid main() { gl_Position = vec4(a_position, 0.0, 1.0); }"
	testFS = "precision mediump float;\nuniform float u_red;\nvoid main() { gl_FragColor = vec4(u_red, 0.0, 0.0, 1.0); }"
)

func floats(vs ...float32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func shorts(vs ...uint16) []byte {
	out := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

// open returns a w x h device, skipping the test on hosts without a usable
// EGL driver.
func open(t *testing.T, opts Options, w, h int) *Device {
	t.Helper()
	dev, err := New(opts)
	if err != nil {
		t.Skipf("no EGL device: %v", err)
	}
	d := dev.(*Device)
	t.Cleanup(d.Release)
	d.Resize(w, h)
	d.Viewport(0, 0, w, h)
	if code := d.GetError(); code != gles.NoError {
		t.Fatalf("resize error %v", code)
	}
	return d
}

// link compiles and links vs and fs, makes the program current and
// uploads vertices as a_position with the given indices.
func link(t *testing.T, d *Device, vs, fs string, vertices []float32, indices []uint16) gles.Handle {
	t.Helper()
	v, ok, log := d.CompileShader(gles.VertexShader, vs)
	if !ok {
		t.Fatalf("vertex: %s", log)
	}
	f, ok, log := d.CompileShader(gles.FragmentShader, fs)
	if !ok {
		t.Fatalf("fragment: %s", log)
	}
	p, ok, log := d.LinkProgram(v, f)
	if !ok {
		t.Fatalf("link: %s", log)
	}
	d.UseProgram(p)

	loc := d.AttribLocation(p, "a_position")
	if loc < 0 {
		loc = 0
	}
	vb := d.CreateBuffer()
	d.BindBuffer(gles.ArrayBuffer, vb)
	d.BufferData(gles.ArrayBuffer, floats(vertices...), gles.StaticDraw)
	d.VertexAttribPointer(loc, 2, 0, 0)
	d.EnableVertexAttribArray(loc)

	ib := d.CreateBuffer()
	d.BindBuffer(gles.ElementArrayBuffer, ib)
	d.BufferData(gles.ElementArrayBuffer, shorts(indices...), gles.StaticDraw)
	if code := d.GetError(); code != gles.NoError {
		t.Fatalf("setup left error %v", code)
	}
	return p
}

var fullQuad = []float32{-1, -1, 1, -1, 1, 1, -1, 1}

func pixel(d *Device, x, y int) [4]byte {
	w, _, pix := d.ReadPixels()
	i := 4 * (y*w + x)
	return [4]byte{pix[i], pix[i+1], pix[i+2], pix[i+3]}
}

func TestClearReadsBack(t *testing.T) {
	d := open(t, Options{}, 4, 2)
	d.ClearColor(0, 1, 0, 1)
	d.Clear()

	w, h, pix := d.ReadPixels()
	if w != 4 || h != 2 || len(pix) != 4*4*2 {
		t.Fatalf("unexpected readback %dx%d (%d bytes)", w, h, len(pix))
	}
	for i := 0; i < len(pix); i += 4 {
		if pix[i] != 0 || pix[i+1] != 255 || pix[i+3] != 255 {
			t.Fatalf("pixel %d = %v", i/4, pix[i:i+4])
		}
	}
}

func TestReadPixelsTopRowFirst(t *testing.T) {
	d := open(t, Options{}, 4, 4)
	// Upper half of clip space only.
	p := link(t, d, testVS, testFS, []float32{-1, 0, 1, 0, 1, 1, -1, 1}, []uint16{0, 1, 2, 0, 2, 3})
	d.Uniform(d.UniformLocation(p, "u_red"), gles.Uniform1f, []float64{1})
	d.ClearColor(0, 0, 0, 0)
	d.Clear()
	d.DrawElements(gles.Triangles, 6, 0)
	if code := d.GetError(); code != gles.NoError {
		t.Fatalf("draw error %v", code)
	}

	if got := pixel(d, 0, 0); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("top row = %v, want red", got)
	}
	if got := pixel(d, 0, 3); got != [4]byte{} {
		t.Errorf("bottom row = %v, want clear", got)
	}
}

func TestCompileAndLinkLogs(t *testing.T) {
	tests := []struct {
		name       string
		vs, fs     string
		compileOK  bool
		wantLinked bool
	}{
		{"glsl", testVS, testFS, true, true},
		{"wgsl", wgslVS, wgslFS, true, true},
		{"malformed body", testVS, "void main() { float x = ; }", false, false},
		{"mixed languages", testVS, wgslFS, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := open(t, Options{}, 2, 2)
			v, vok, vlog := d.CompileShader(gles.VertexShader, tt.vs)
			f, fok, flog := d.CompileShader(gles.FragmentShader, tt.fs)
			if got := vok && fok; got != tt.compileOK {
				t.Fatalf("compiled = %v, want %v (logs %q %q)", got, tt.compileOK, vlog, flog)
			}
			if !tt.compileOK && flog == "" {
				t.Error("failed compile left no info log")
			}
			_, linked, log := d.LinkProgram(v, f)
			if linked != tt.wantLinked {
				t.Errorf("linked = %v, want %v (log %q)", linked, tt.wantLinked, log)
			}
			if !linked && log == "" {
				t.Error("failed link left no info log")
			}
		})
	}
}

func TestBindAttribLocationKeepsUniforms(t *testing.T) {
	d := open(t, Options{}, 4, 4)
	p := link(t, d, testVS, testFS, fullQuad, []uint16{0, 1, 2, 0, 2, 3})
	loc := d.UniformLocation(p, "u_red")
	d.Uniform(loc, gles.Uniform1f, []float64{1})

	d.BindAttribLocation(p, 3, "a_position")
	if got := d.AttribLocation(p, "a_position"); got != 3 {
		t.Fatalf("a_position at %d after binding, want 3", got)
	}
	d.VertexAttribPointer(3, 2, 0, 0)
	d.EnableVertexAttribArray(3)
	d.DisableVertexAttribArray(0)
	d.ClearColor(0, 0, 0, 0)
	d.Clear()
	d.DrawElements(gles.Triangles, 6, 0)
	if code := d.GetError(); code != gles.NoError {
		t.Fatalf("draw error %v", code)
	}
	if got := pixel(d, 1, 1); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("pixel = %v, want the uniform's red to survive relinking", got)
	}
}

func TestDeviceErrors(t *testing.T) {
	tests := []struct {
		name string
		call func(d *Device)
		want gles.ErrorCode
	}{
		{"unknown program", func(d *Device) { d.DeleteProgram(999) }, gles.InvalidValue},
		{"unknown buffer", func(d *Device) { d.DeleteBuffer(999) }, gles.InvalidValue},
		{"surface too large", func(d *Device) { d.Resize(1<<20, 1) }, gles.InvalidValue},
		{"bad primitive", func(d *Device) { d.DrawElements(gles.Primitive(42), 3, 0) }, gles.InvalidEnum},
		{"draw without program", func(d *Device) { d.DrawElements(gles.Triangles, 3, 0) }, gles.InvalidOperation},
		{"texture without binding", func(d *Device) { d.TexImage2D(1, 1, []byte{0, 0, 0, 0}) }, gles.InvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := open(t, Options{}, 2, 2)
			tt.call(d)
			if got := d.GetError(); got != tt.want {
				t.Errorf("GetError = %v, want %v", got, tt.want)
			}
			if got := d.GetError(); got != gles.NoError {
				t.Errorf("flag not cleared: %v", got)
			}
		})
	}
}

func TestDrawRejectsOutOfRangeFetch(t *testing.T) {
	d := open(t, Options{}, 2, 2)
	link(t, d, testVS, testFS, fullQuad, []uint16{0, 1, 9})
	d.DrawElements(gles.Triangles, 3, 0)
	if got := d.GetError(); got != gles.InvalidOperation {
		t.Errorf("GetError = %v, want INVALID_OPERATION", got)
	}
}

func TestAntialiasedReadback(t *testing.T) {
	d := open(t, Options{Antialiasing: true}, 8, 8)
	if !d.Info().Antialiasing {
		t.Fatal("info does not report antialiasing")
	}
	p := link(t, d, testVS, testFS, fullQuad, []uint16{0, 1, 2, 0, 2, 3})
	d.Uniform(d.UniformLocation(p, "u_red"), gles.Uniform1f, []float64{1})
	d.Clear()
	d.DrawElements(gles.Triangles, 6, 0)
	if got := pixel(d, 4, 4); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("resolved pixel = %v, want red", got)
	}
}

func TestReleaseDeletesObjects(t *testing.T) {
	d := open(t, Options{}, 2, 2)
	link(t, d, testVS, testFS, fullQuad, []uint16{0, 1, 2})
	if got := d.Objects(); got.Programs != 1 || got.Buffers != 2 {
		t.Fatalf("objects before release = %+v", got)
	}
	d.Release()
	if got := d.Objects(); got != (Objects{}) {
		t.Errorf("objects after release = %+v", got)
	}
	if got := d.GetError(); got != gles.ContextLostError {
		t.Errorf("GetError after release = %v, want CONTEXT_LOST", got)
	}
}
