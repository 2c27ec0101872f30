package native

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gogpu/wgpu/hal/gles/gl"

	"renderworker/internal/gles"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		in   uint32
		want gles.ErrorCode
	}{
		{gl.NO_ERROR, gles.NoError},
		{gl.INVALID_ENUM, gles.InvalidEnum},
		{gl.INVALID_VALUE, gles.InvalidValue},
		{gl.INVALID_OPERATION, gles.InvalidOperation},
		{gl.OUT_OF_MEMORY, gles.OutOfMemory},
		{gl.INVALID_FRAMEBUFFER_OPERATION, gles.InvalidFramebufferOperation},
		{contextLost, gles.ContextLostError},
		{0x0503, gles.InvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := errorCode(tt.in); got != tt.want {
				t.Errorf("errorCode(%#x) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextureValue(t *testing.T) {
	tests := []struct {
		name   string
		param  gles.TextureParam
		value  gles.TextureValue
		want   int32
		wantOK bool
	}{
		{"min nearest", gles.TextureMinFilter, gles.Nearest, gl.NEAREST, true},
		{"mag linear", gles.TextureMagFilter, gles.Linear, gl.LINEAR, true},
		{"wrap repeat", gles.TextureWrapS, gles.Repeat, gl.REPEAT, true},
		{"wrap clamp", gles.TextureWrapT, gles.ClampToEdge, gl.CLAMP_TO_EDGE, true},
		{"filter given wrap mode", gles.TextureMinFilter, gles.Repeat, 0, false},
		{"wrap given filter", gles.TextureWrapS, gles.Linear, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := textureValue(tt.param, tt.value)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("textureValue = %d, %v, want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFlipRows(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		in, want      []byte
	}{
		{"single row", 1, 1, []byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}},
		{"two rows", 1, 2, []byte{1, 1, 1, 1, 2, 2, 2, 2}, []byte{2, 2, 2, 2, 1, 1, 1, 1}},
		{"odd rows keep middle", 1, 3,
			[]byte{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3},
			[]byte{3, 3, 3, 3, 2, 2, 2, 2, 1, 1, 1, 1}},
		{"wide rows", 2, 2,
			[]byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0},
			[]byte{3, 0, 0, 0, 4, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pix := append([]byte(nil), tt.in...)
			flipRows(pix, tt.width, tt.height)
			if !bytes.Equal(pix, tt.want) {
				t.Errorf("flipRows = %v, want %v", pix, tt.want)
			}
		})
	}
}

func TestFits(t *testing.T) {
	tests := []struct {
		name                        string
		n, index, size, stride, off int
		want                        bool
	}{
		{"packed last vertex", 32, 3, 2, 0, 0, true},
		{"packed past end", 32, 4, 2, 0, 0, false},
		{"strided with offset", 40, 1, 3, 20, 8, true},
		{"offset pushes past end", 40, 1, 3, 20, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fits(tt.n, tt.index, tt.size, tt.stride, tt.off); got != tt.want {
				t.Errorf("fits = %v, want %v", got, tt.want)
			}
		})
	}
}

const (
	wgslVS = "@vertex fn vs(@location(0) p: vec2<f32>) -> @builtin(position) vec4<f32> { return vec4<f32>(p, 0.0, 1.0); }"
	wgslFS = "@fragment fn fs() -> @location(0) vec4<f32> { return vec4<f32>(1.0, 0.0, 0.0, 1.0); }"
)

func TestIsWGSL(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"vertex module", wgslVS, true},
		{"fragment module", wgslFS, true},
		{"glsl", "void main() { gl_FragColor = vec4(1.0); }", false},
		{"glsl mentioning an attribute", "// @vertex\nvoid main() {}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWGSL(tt.source); got != tt.want {
				t.Errorf("isWGSL = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateWGSL(t *testing.T) {
	tests := []struct {
		name    string
		kind    gles.ShaderKind
		source  string
		wantErr string
	}{
		{"vertex", gles.VertexShader, wgslVS, ""},
		{"fragment", gles.FragmentShader, wgslFS, ""},
		{"both stages in one module", gles.FragmentShader, wgslVS + "\n" + wgslFS, ""},
		{"missing stage", gles.FragmentShader, wgslVS, "no @fragment entry point"},
		{"syntax error", gles.VertexShader, "@vertex fn vs( -> {", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := translateWGSL(tt.kind, tt.source)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			if !strings.Contains(src, "300 es") || !strings.Contains(src, "void main(") {
				t.Errorf("unexpected output:\n%s", src)
			}
		})
	}
}
