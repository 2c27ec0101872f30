package pipeline_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"renderworker/internal/gles"
	"renderworker/internal/gles/glestest"
	"renderworker/internal/pipeline"
	"renderworker/internal/pkg/errors"
)

const twoAttribVS = `attribute vec3 a_position;
attribute vec2 a_uv;
void main(void) {
  gl_Position = vec4(a_position, 1.0) + vec4(a_uv, 0.0, 0.0) * 0.0;
}
`

func programJSON(t *testing.T, vs, fs string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"vs": vs, "fs": fs})
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func run(t *testing.T, in *pipeline.Interpreter, doc string) (pipeline.Stats, error) {
	t.Helper()
	d, err := pipeline.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return in.Apply(d)
}

func TestParse(t *testing.T) {
	t.Run("keeps document order", func(t *testing.T) {
		d, err := pipeline.Parse([]byte(`{"glstate":[{"height":4,"width":8},{"uniform":{"b":{},"a":{}}}]}`))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if d.Len() != 2 {
			t.Fatalf("expected 2 transitions, got %d", d.Len())
		}
		keys := []string{d.Transitions[0].Fields[0].Key, d.Transitions[0].Fields[1].Key}
		if strings.Join(keys, ",") != "height,width" {
			t.Errorf("expected height before width, got %v", keys)
		}
	})

	tests := []struct {
		name string
		doc  string
	}{
		{"missing glstate", `{"state":[]}`},
		{"null glstate", `{"glstate":null}`},
		{"glstate not an array", `{"glstate":{"width":3}}`},
		{"transition not an object", `{"glstate":[3]}`},
		{"not an object", `[1,2]`},
		{"trailing data", `{"glstate":[]} {}`},
		{"malformed", `{"glstate":[`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.Parse([]byte(tt.doc))
			if !errors.IsCode(err, errors.CodeValidation) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestBuilderMarshalsInOrder(t *testing.T) {
	d := pipeline.New().Height(32).Width(64).Program("v", "f")
	if err := d.Add("uniform", map[string]any{}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"glstate":[{"height":32},{"width":64},{"program":{"vs":"v","fs":"f"}},{"uniform":{}}]}`
	if string(raw) != want {
		t.Errorf("got %s\nwant %s", raw, want)
	}

	back, err := pipeline.Parse(raw)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if back.Len() != 4 {
		t.Errorf("expected 4 transitions after re-parse, got %d", back.Len())
	}
}

func TestApplyProgram(t *testing.T) {
	tests := []struct {
		name  string
		vs    string
		fs    string
		code  errors.Code
		stage string
	}{
		{"valid", glestest.VertexShader, glestest.FragmentShader, "", ""},
		{"vertex syntax error", "void main() {", glestest.FragmentShader, errors.CodeCompile, "vertex"},
		{"fragment syntax error", glestest.VertexShader, glestest.BrokenFragmentShader, errors.CodeCompile, "fragment"},
		{"link error", glestest.VertexShader, glestest.VaryingFragmentShader, errors.CodeLink, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, _ := glestest.NewContext(t, 16, 16)
			in := pipeline.NewInterpreter(gl, nil)

			doc := `{"glstate":[{"program":` + programJSON(t, tt.vs, tt.fs) + `},{"width":99}]}`
			stats, err := run(t, in, doc)

			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if !stats.Program.Valid() {
					t.Error("expected a linked program in stats")
				}
				if cur, ok := gl.CurrentProgram(); !ok || cur != stats.Program {
					t.Error("linked program must be current")
				}
				if stats.CompileTime < 0 || stats.LinkTime < 0 {
					t.Errorf("negative timings %+v", stats)
				}
				return
			}

			if !errors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if tt.stage != "" && errors.GetFields(err)["stage"] != tt.stage {
				t.Errorf("expected stage %s, got %v", tt.stage, errors.GetFields(err))
			}
			if w, _ := gl.Size(); w != 16 {
				t.Error("transitions after a failed program must not run")
			}
		})
	}
}

func TestApplyResizesInOrder(t *testing.T) {
	gl, _ := glestest.NewContext(t, 16, 16)
	in := pipeline.NewInterpreter(gl, nil)

	if _, err := run(t, in, `{"glstate":[{"width":40},{"height":20},{"width":30}]}`); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if w, h := gl.Size(); w != 30 || h != 20 {
		t.Errorf("expected 30x20, got %dx%d", w, h)
	}
}

func TestApplyOrderChangesState(t *testing.T) {
	vertex := `{"vertex":{"a_position":{"enabled":"true","size":3,"stride":0,"offset":0}}}`
	buffer := `{"buffer":{"data":[0,0,0,1,1,1]}}`
	program := `{"program":` + programJSON(t, glestest.VertexShader, glestest.FragmentShader) + `}`

	bound := func(doc string) gles.Handle {
		gl, dev := glestest.NewContext(t, 8, 8)
		in := pipeline.NewInterpreter(gl, nil)
		if _, err := run(t, in, doc); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		h, _ := dev.AttribBinding(0)
		return h
	}

	bufferFirst := bound(`{"glstate":[` + program + `,` + buffer + `,` + vertex + `]}`)
	vertexFirst := bound(`{"glstate":[` + program + `,` + vertex + `,` + buffer + `]}`)

	if bufferFirst == 0 {
		t.Error("attribute should source the buffer uploaded before it")
	}
	if vertexFirst != 0 {
		t.Error("attribute set up before any buffer must stay unbound")
	}
}

func TestApplyUniforms(t *testing.T) {
	program := `{"program":` + programJSON(t, glestest.VertexShader, glestest.FragmentShader) + `}`

	tests := []struct {
		name    string
		uniform string
		code    errors.Code
	}{
		{"active uniform", `{"time":{"func":"glUniform1f","args":[0.5]}}`, ""},
		{"absent uniform", `{"nope":{"func":"glUniform1f","args":[1]}}`, ""},
		{"unknown function", `{"time":{"func":"glUniform9f","args":[1]}}`, ""},
		{"bad arity tolerated", `{"resolution":{"func":"glUniform2f","args":[1]}}`, ""},
		{"missing func", `{"time":{"args":[1]}}`, errors.CodeValidation},
		{"missing args", `{"time":{"func":"glUniform1f"}}`, errors.CodeValidation},
		{"not an object", `[1]`, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, _ := glestest.NewContext(t, 8, 8)
			in := pipeline.NewInterpreter(gl, nil)
			_, err := run(t, in, `{"glstate":[`+program+`,{"uniform":`+tt.uniform+`}]}`)
			if tt.code == "" && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.code != "" && !errors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}

	t.Run("no program", func(t *testing.T) {
		gl, _ := glestest.NewContext(t, 8, 8)
		in := pipeline.NewInterpreter(gl, nil)
		_, err := run(t, in, `{"glstate":[{"uniform":{"time":{"func":"glUniform1f","args":[1]}}}]}`)
		if !errors.IsCode(err, errors.CodeValidation) {
			t.Errorf("expected VALIDATION_ERROR, got %v", err)
		}
	})
}

func TestApplyVertexIndices(t *testing.T) {
	gl, _ := glestest.NewContext(t, 8, 8)
	in := pipeline.NewInterpreter(gl, nil)

	doc := `{"glstate":[
		{"program":` + programJSON(t, twoAttribVS, glestest.FragmentShader) + `},
		{"buffer":{"data":[0,0,0]}},
		{"vertex":{"a_uv":{"enabled":false,"func":"glVertexAttrib2f","args":[0.25,0.75]}}},
		{"vertex":{"a_position":{"enabled":true,"size":3,"stride":0,"offset":0},"a_uv":{"enabled":"false","func":"glVertexAttrib2fv","args":[1,1]}}},
		{"vertex":{"a_absent":{"enabled":"false","func":"glVertexAttrib1f","args":[1]}}}
	]}`
	stats, err := run(t, in, doc)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	for name, want := range map[string]int{"a_uv": 0, "a_position": 1} {
		got, ok := gl.AttribLocation(stats.Program, name)
		if !ok || got != want {
			t.Errorf("%s bound to %d (active %v), want %d", name, got, ok, want)
		}
	}
}

func TestApplyVertexErrors(t *testing.T) {
	program := `{"program":` + programJSON(t, glestest.VertexShader, glestest.FragmentShader) + `}`

	tests := []struct {
		name   string
		vertex string
	}{
		{"missing enabled", `{"a_position":{"size":3}}`},
		{"bad enabled", `{"a_position":{"enabled":"maybe"}}`},
		{"missing func", `{"a_position":{"enabled":"false","args":[1]}}`},
		{"missing args", `{"a_position":{"enabled":"false","func":"glVertexAttrib1f"}}`},
		{"missing size", `{"a_position":{"enabled":"true","stride":0,"offset":0}}`},
		{"missing stride", `{"a_position":{"enabled":"true","size":3,"offset":0}}`},
		{"missing offset", `{"a_position":{"enabled":"true","size":3,"stride":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, _ := glestest.NewContext(t, 8, 8)
			in := pipeline.NewInterpreter(gl, nil)
			_, err := run(t, in, `{"glstate":[`+program+`,{"vertex":`+tt.vertex+`}]}`)
			if !errors.IsCode(err, errors.CodeValidation) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}

	t.Run("no program", func(t *testing.T) {
		gl, _ := glestest.NewContext(t, 8, 8)
		in := pipeline.NewInterpreter(gl, nil)
		_, err := run(t, in, `{"glstate":[{"vertex":{}}]}`)
		if !errors.IsCode(err, errors.CodeValidation) {
			t.Errorf("expected VALIDATION_ERROR, got %v", err)
		}
	})
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(40 * y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestApplyTexture(t *testing.T) {
	payload := pngBase64(t, 4, 4)

	tests := []struct {
		name    string
		texture string
		code    errors.Code
	}{
		{"plain base64", `{"width":4,"height":4,"data":"` + payload + `"}`, ""},
		{"data url", `{"width":4,"height":4,"data":"data:image/png;base64,` + payload + `"}`, ""},
		{"scaled", `{"width":2,"height":8,"data":"` + payload + `"}`, ""},
		{"not base64", `{"width":4,"height":4,"data":"%%%"}`, errors.CodeValidation},
		{"not an image", `{"width":4,"height":4,"data":"aGVsbG8="}`, errors.CodeValidation},
		{"zero size", `{"width":0,"height":4,"data":"` + payload + `"}`, errors.CodeValidation},
		{"missing data", `{"width":4,"height":4}`, errors.CodeValidation},
		{"missing width", `{"height":4,"data":"` + payload + `"}`, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, _ := glestest.NewContext(t, 8, 8)
			in := pipeline.NewInterpreter(gl, nil)
			_, err := run(t, in, `{"glstate":[{"texture":`+tt.texture+`}]}`)
			if tt.code == "" && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.code != "" && !errors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestApplyIgnoresUnknownKeys(t *testing.T) {
	gl, _ := glestest.NewContext(t, 8, 8)
	in := pipeline.NewInterpreter(gl, nil)

	if _, err := run(t, in, `{"glstate":[{"depth":{"func":"less"}},{"width":12,"stencil":1}]}`); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if w, _ := gl.Size(); w != 12 {
		t.Errorf("known keys next to unknown ones must still apply, width = %d", w)
	}
}

func TestApplyToleratesAPIErrors(t *testing.T) {
	gl, _ := glestest.NewContext(t, 8, 8)
	in := pipeline.NewInterpreter(gl, nil)

	if _, err := run(t, in, `{"glstate":[{"width":0},{"height":6}]}`); err != nil {
		t.Fatalf("API errors must be tolerated, got %v", err)
	}
	if w, h := gl.Size(); w != 8 || h != 6 {
		t.Errorf("expected 8x6, got %dx%d", w, h)
	}
	if err := gl.CheckError("test"); err != nil {
		t.Errorf("Apply should have consumed the error flag, got %v", err)
	}
}

func TestApplyContextLoss(t *testing.T) {
	t.Run("between transitions", func(t *testing.T) {
		gl, dev := glestest.NewContext(t, 8, 8)
		in := pipeline.NewInterpreter(gl, nil)
		dev.LoseContext()

		_, err := run(t, in, `{"glstate":[{"width":12}]}`)
		if !errors.IsContextLost(err) {
			t.Fatalf("expected CONTEXT_LOST, got %v", err)
		}
	})

	t.Run("during compile", func(t *testing.T) {
		gl, dev := glestest.NewContext(t, 8, 8)
		in := pipeline.NewInterpreter(gl, nil)
		dev.LoseAtCompile = 2

		_, err := run(t, in, `{"glstate":[{"program":`+programJSON(t, glestest.VertexShader, glestest.FragmentShader)+`},{"width":3}]}`)
		if !errors.IsContextLost(err) {
			t.Fatalf("expected CONTEXT_LOST, got %v", err)
		}
		if dev.Compiles != 2 {
			t.Errorf("expected compilation to stop at the fragment shader, got %d compiles", dev.Compiles)
		}
	})
}

func TestParseUniforms(t *testing.T) {
	us, err := pipeline.ParseUniforms(`{"time":{"func":"glUniform1f","args":[0.0]},"resolution":{"func":"glUniform2f","args":[256,256]},"meta":{"args":[]}}`)
	if err != nil {
		t.Fatalf("ParseUniforms() error = %v", err)
	}
	if len(us) != 3 {
		t.Fatalf("expected 3 uniforms, got %d", len(us))
	}
	if us[0].Name != "time" || us[1].Name != "resolution" || us[2].Name != "meta" {
		t.Errorf("order not preserved: %+v", us)
	}
	if us[1].Func != "glUniform2f" || len(us[1].Args) != 2 {
		t.Errorf("unexpected resolution entry %+v", us[1])
	}
	if us[2].Func != "" {
		t.Errorf("entry without func should have empty Func, got %q", us[2].Func)
	}

	if us, err := pipeline.ParseUniforms("  "); err != nil || us != nil {
		t.Errorf("blank info: got %v, %v", us, err)
	}
	if _, err := pipeline.ParseUniforms(`{"time":`); !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for malformed info, got %v", err)
	}
}
