package gles_test

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"renderworker/internal/gles"
	"renderworker/internal/gles/glestest"
	"renderworker/internal/pkg/errors"
)

func linkTestProgram(t *testing.T, gl *gles.Context, fs string) gles.Program {
	t.Helper()
	vs, err := gl.CompileShader(gles.VertexShader, glestest.VertexShader)
	if err != nil {
		t.Fatalf("vertex compile: %v", err)
	}
	f, err := gl.CompileShader(gles.FragmentShader, fs)
	if err != nil {
		t.Fatalf("fragment compile: %v", err)
	}
	p, err := gl.LinkProgram(vs, f)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	return p
}

func drawQuad(t *testing.T, gl *gles.Context, p gles.Program) gles.Frame {
	t.Helper()
	gl.UseProgram(p)
	gl.UploadArray(glestest.Quad, gles.StaticDraw)
	loc, ok := gl.AttribLocation(p, "a_position")
	if !ok {
		t.Fatal("a_position not active")
	}
	gl.SetAttribArray(loc, 3, 0, 0)
	gl.UploadIndices([]uint16{0, 1, 2, 3, 4, 5})
	gl.Clear(0, 0, 0, 0)
	gl.DrawIndexed(gles.Triangles, 6)
	if err := gl.CheckError("test.draw"); err != nil {
		t.Fatalf("draw: %v", err)
	}
	return gl.CaptureFrame()
}

func TestCompileShader(t *testing.T) {
	gl, _ := glestest.NewContext(t, 16, 16)

	t.Run("valid", func(t *testing.T) {
		s, err := gl.CompileShader(gles.FragmentShader, glestest.FragmentShader)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Kind != gles.FragmentShader {
			t.Errorf("expected fragment kind, got %v", s.Kind)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := gl.CompileShader(gles.FragmentShader, glestest.BrokenFragmentShader)
		if !errors.IsCode(err, errors.CodeCompile) {
			t.Fatalf("expected COMPILE_ERROR, got %v", err)
		}
		if errors.GetFields(err)["stage"] != "fragment" {
			t.Errorf("expected fragment stage, got %v", errors.GetFields(err))
		}
		if !strings.Contains(err.Error(), "syntax error") {
			t.Errorf("expected info log in error, got %v", err)
		}
	})
}

func TestLinkProgram(t *testing.T) {
	gl, _ := glestest.NewContext(t, 16, 16)

	vs, _ := gl.CompileShader(gles.VertexShader, glestest.VertexShader)
	fs, err := gl.CompileShader(gles.FragmentShader, glestest.VaryingFragmentShader)
	if err != nil {
		t.Fatalf("fragment compile: %v", err)
	}

	_, err = gl.LinkProgram(vs, fs)
	if !errors.IsCode(err, errors.CodeLink) {
		t.Fatalf("expected LINK_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "v_uv") {
		t.Errorf("expected the varying to be named, got %v", err)
	}
}

func TestSetUniform(t *testing.T) {
	gl, _ := glestest.NewContext(t, 16, 16)

	t.Run("no program", func(t *testing.T) {
		if gl.SetUniform("time", "glUniform1f", []float64{1}) {
			t.Error("expected no upload without a program")
		}
		if err := gl.CheckError("test"); !errors.IsCode(err, errors.CodeGL) {
			t.Errorf("expected GL error, got %v", err)
		}
	})

	gl.UseProgram(linkTestProgram(t, gl, glestest.FragmentShader))

	tests := []struct {
		name    string
		uniform string
		fn      string
		args    []float64
		applied bool
		glErr   bool
	}{
		{"scalar", "time", "glUniform1f", []float64{0.5}, true, false},
		{"vector", "resolution", "glUniform2fv", []float64{256, 256}, true, false},
		{"unknown function", "time", "glUniform5f", []float64{1}, false, false},
		{"inactive uniform", "mouse", "glUniform2f", []float64{1, 2}, false, false},
		{"wrong arity", "resolution", "glUniform2f", []float64{1}, false, true},
		{"ragged vector", "resolution", "glUniform2fv", []float64{1, 2, 3}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gl.SetUniform(tt.uniform, tt.fn, tt.args); got != tt.applied {
				t.Errorf("SetUniform() = %v, want %v", got, tt.applied)
			}
			err := gl.CheckError("test")
			if (err != nil) != tt.glErr {
				t.Errorf("CheckError() = %v, want error %v", err, tt.glErr)
			}
		})
	}
}

func TestCheckErrorContextLoss(t *testing.T) {
	gl, dev := glestest.NewContext(t, 16, 16)

	if err := gl.CheckError("test"); err != nil {
		t.Fatalf("fresh context reported %v", err)
	}

	dev.LoseContext()

	for i := 0; i < 2; i++ {
		if err := gl.CheckError("test"); !errors.IsContextLost(err) {
			t.Fatalf("check %d: expected CONTEXT_LOST, got %v", i, err)
		}
	}
	if !gl.Lost() {
		t.Error("expected Lost() after observing loss")
	}
}

func TestCompileAfterContextLoss(t *testing.T) {
	gl, dev := glestest.NewContext(t, 16, 16)
	dev.LoseAtCompile = 1

	_, err := gl.CompileShader(gles.VertexShader, glestest.VertexShader)
	if !errors.IsContextLost(err) {
		t.Fatalf("expected CONTEXT_LOST rather than a compile error, got %v", err)
	}
}

func TestDrawQuad(t *testing.T) {
	gl, _ := glestest.NewContext(t, 32, 32)
	p := linkTestProgram(t, gl, glestest.FragmentShader)

	frame := drawQuad(t, gl, p)

	if frame.Width != 32 || frame.Height != 32 || len(frame.Pix) != 32*32*4 {
		t.Fatalf("unexpected frame %dx%d (%d bytes)", frame.Width, frame.Height, len(frame.Pix))
	}
	inside := 4 * (24*32 + 4)
	if frame.Pix[inside+3] != 0xff {
		t.Errorf("expected opaque pixel inside the quad, got alpha %d", frame.Pix[inside+3])
	}

	again := drawQuad(t, gl, p)
	if !frame.Equal(again) {
		t.Error("identical draws must produce identical frames")
	}
}

func TestUniformChangesFrame(t *testing.T) {
	gl, _ := glestest.NewContext(t, 8, 8)
	p := linkTestProgram(t, gl, glestest.FragmentShader)

	gl.UseProgram(p)
	gl.SetUniform("time", "glUniform1f", []float64{0})
	a := drawQuad(t, gl, p)

	gl.SetUniform("time", "glUniform1f", []float64{0.5})
	b := drawQuad(t, gl, p)

	if a.Equal(b) {
		t.Error("changing a uniform should change the frame")
	}
}

func TestResize(t *testing.T) {
	gl, _ := glestest.NewContext(t, 8, 8)

	gl.SetWidth(20)
	gl.SetHeight(10)
	if w, h := gl.Size(); w != 20 || h != 10 {
		t.Errorf("expected 20x10, got %dx%d", w, h)
	}

	gl.SetWidth(0)
	if err := gl.CheckError("test"); !errors.IsCode(err, errors.CodeGL) {
		t.Errorf("expected GL error for zero width, got %v", err)
	}
	if w, _ := gl.Size(); w != 20 {
		t.Errorf("invalid resize must not change size, got %d", w)
	}
}

func TestUploadTextureValidation(t *testing.T) {
	gl, _ := glestest.NewContext(t, 8, 8)

	gl.UploadTexture(2, 2, make([]byte, 15))
	if err := gl.CheckError("test"); !errors.IsCode(err, errors.CodeGL) {
		t.Errorf("expected GL error for short pixel data, got %v", err)
	}

	tex := gl.UploadTexture(2, 2, make([]byte, 16))
	if tex.Width != 2 || tex.Height != 2 {
		t.Errorf("unexpected texture %+v", tex)
	}
	if err := gl.CheckError("test"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestFramePNG(t *testing.T) {
	f := gles.Frame{Width: 2, Height: 1, Pix: []byte{255, 0, 0, 255, 0, 255, 0, 128}}

	data, err := f.PNG()
	if err != nil {
		t.Fatalf("PNG() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 1 {
		t.Errorf("unexpected bounds %v", b)
	}

	g := f
	g.Pix = append([]byte(nil), f.Pix...)
	g.Pix[7] = 127
	if f.Equal(g) {
		t.Error("frames differing in one byte must not be equal")
	}
}

func TestParseUniformFunc(t *testing.T) {
	tests := []struct {
		name string
		want gles.UniformFunc
	}{
		{"glUniform1f", gles.Uniform1f},
		{"glUniform4iv", gles.Uniform4iv},
		{"glUniformMatrix4fv", gles.UniformMatrix4fv},
		{"glUniform1ui", gles.UniformUnknown},
		{"", gles.UniformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gles.ParseUniformFunc(tt.name)
			if got != tt.want {
				t.Errorf("ParseUniformFunc(%q) = %v, want %v", tt.name, got, tt.want)
			}
			if got != gles.UniformUnknown && got.String() != tt.name {
				t.Errorf("String() = %q, want %q", got.String(), tt.name)
			}
		})
	}
}

func TestReleaseObjectsFreesDeviceObjects(t *testing.T) {
	gl, dev := glestest.NewContext(t, 8, 8)
	p := linkTestProgram(t, gl, glestest.FragmentShader)
	drawQuad(t, gl, p)
	gl.UploadTexture(1, 1, []byte{1, 2, 3, 4})

	got := dev.Objects()
	if got.Programs != 1 || got.Buffers != 2 || got.Textures != 1 {
		t.Fatalf("Objects() = %+v before release", got)
	}

	gl.ReleaseObjects()
	if err := gl.CheckError("test"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := dev.Objects(); got.Programs != 0 || got.Buffers != 0 || got.Textures != 0 {
		t.Errorf("Objects() = %+v after release", got)
	}
	if programs, buffers, textures := gl.Objects(); programs+buffers+textures != 0 {
		t.Errorf("context still tracks %d programs, %d buffers, %d textures", programs, buffers, textures)
	}
}
