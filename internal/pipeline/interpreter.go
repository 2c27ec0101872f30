package pipeline

import (
	"encoding/json"
	"strconv"
	"time"

	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
)

// Stats describes what an Apply call produced.
type Stats struct {
	// Program is the program made current by the last program transition.
	Program     gles.Program
	CompileTime time.Duration
	LinkTime    time.Duration
}

// Interpreter applies descriptions to one graphics context. Attribute indices
// are assigned by first appearance and stay stable for the interpreter's
// lifetime.
type Interpreter struct {
	gl      *gles.Context
	log     *logger.Logger
	attribs map[string]int
}

// NewInterpreter returns an interpreter driving gl.
func NewInterpreter(gl *gles.Context, log *logger.Logger) *Interpreter {
	if log == nil {
		log = logger.Discard()
	}
	return &Interpreter{
		gl:      gl,
		log:     log.WithComponent("pipeline"),
		attribs: make(map[string]int),
	}
}

type programSpec struct {
	VS *string `json:"vs"`
	FS *string `json:"fs"`
}

type bufferSpec struct {
	Data []float32 `json:"data"`
}

type vertexSpec struct {
	Enabled json.RawMessage `json:"enabled"`
	Func    *string         `json:"func"`
	Args    []float32       `json:"args"`
	Size    *int            `json:"size"`
	Stride  *int            `json:"stride"`
	Offset  *int            `json:"offset"`
}

type textureSpec struct {
	Width  *int    `json:"width"`
	Height *int    `json:"height"`
	Data   *string `json:"data"`
}

// Apply runs every transition of d in order. Compile and link failures,
// malformed transitions and context loss stop it immediately. Ordinary API
// errors are only looked at once all transitions ran; they are logged and
// tolerated.
func (in *Interpreter) Apply(d *Description) (Stats, error) {
	var stats Stats
	if p, ok := in.gl.CurrentProgram(); ok {
		stats.Program = p
	}

	for i, t := range d.Transitions {
		for _, f := range t.Fields {
			if err := in.apply(f, &stats); err != nil {
				var e *errors.Error
				if errors.As(err, &e) {
					if _, ok := e.Fields["index"]; !ok {
						e.WithField("index", i)
					}
				}
				return stats, err
			}
		}
	}

	if err := in.gl.CheckError("pipeline.apply"); err != nil {
		if errors.IsContextLost(err) {
			return stats, err
		}
		in.log.Warn("tolerating graphics error in pipeline", "error", err)
	}
	return stats, nil
}

func (in *Interpreter) apply(f Field, stats *Stats) error {
	switch f.Key {
	case KeyWidth:
		n, err := decodeInt(f)
		if err != nil {
			return err
		}
		in.gl.SetWidth(n)
	case KeyHeight:
		n, err := decodeInt(f)
		if err != nil {
			return err
		}
		in.gl.SetHeight(n)
	case KeyProgram:
		return in.applyProgram(f.Value, stats)
	case KeyUniform:
		return in.applyUniforms(f.Value)
	case KeyBuffer:
		var spec bufferSpec
		if err := decode(f, &spec); err != nil {
			return err
		}
		if spec.Data == nil {
			return missing(KeyBuffer, "", "data")
		}
		in.gl.UploadArray(spec.Data, gles.StaticDraw)
	case KeyVertex:
		return in.applyVertex(f.Value)
	case KeyTexture:
		return in.applyTexture(f)
	default:
		in.log.Debug("ignoring unknown transition key", "key", f.Key)
	}
	return nil
}

func (in *Interpreter) applyProgram(raw json.RawMessage, stats *Stats) error {
	var spec programSpec
	if err := decode(Field{Key: KeyProgram, Value: raw}, &spec); err != nil {
		return err
	}
	if spec.VS == nil {
		return missing(KeyProgram, "", "vs")
	}
	if spec.FS == nil {
		return missing(KeyProgram, "", "fs")
	}

	start := time.Now()
	vs, err := in.gl.CompileShader(gles.VertexShader, *spec.VS)
	stats.CompileTime += time.Since(start)
	if err != nil {
		return err
	}
	defer in.gl.DeleteShader(vs)

	start = time.Now()
	fs, err := in.gl.CompileShader(gles.FragmentShader, *spec.FS)
	stats.CompileTime += time.Since(start)
	if err != nil {
		return err
	}
	defer in.gl.DeleteShader(fs)

	start = time.Now()
	p, err := in.gl.LinkProgram(vs, fs)
	stats.LinkTime += time.Since(start)
	if err != nil {
		return err
	}

	in.gl.UseProgram(p)
	stats.Program = p
	in.log.Debug("program linked", "program", p.Handle())
	return nil
}

func (in *Interpreter) applyUniforms(raw json.RawMessage) error {
	us, err := decodeUniforms(raw, true)
	if err != nil {
		return err
	}
	if _, ok := in.gl.CurrentProgram(); !ok {
		return errors.Validationf("applying uniforms with no shader program").WithField("transition", KeyUniform)
	}
	in.gl.ApplyUniforms(us)
	return nil
}

func (in *Interpreter) applyVertex(raw json.RawMessage) error {
	p, ok := in.gl.CurrentProgram()
	if !ok {
		return errors.Validationf("applying vertex attributes with no shader program").WithField("transition", KeyVertex)
	}

	fields, err := orderedFields(raw)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "", "vertex must be a JSON object")
	}

	for _, f := range fields {
		var spec vertexSpec
		if err := decode(f, &spec); err != nil {
			return err
		}
		enabled, err := parseEnabled(spec.Enabled)
		if err != nil {
			return missing(KeyVertex, f.Key, "enabled")
		}

		index := in.attribIndex(f.Key)
		in.gl.BindAttribute(p, index, f.Key)

		if !enabled {
			if spec.Func == nil {
				return missing(KeyVertex, f.Key, "func")
			}
			if spec.Args == nil {
				return missing(KeyVertex, f.Key, "args")
			}
			in.gl.SetAttribConstant(index, *spec.Func, spec.Args)
			continue
		}

		switch {
		case spec.Size == nil:
			return missing(KeyVertex, f.Key, "size")
		case spec.Stride == nil:
			return missing(KeyVertex, f.Key, "stride")
		case spec.Offset == nil:
			return missing(KeyVertex, f.Key, "offset")
		}
		in.gl.SetAttribArray(index, *spec.Size, *spec.Stride, *spec.Offset)
	}
	return nil
}

func (in *Interpreter) applyTexture(f Field) error {
	var spec textureSpec
	if err := decode(f, &spec); err != nil {
		return err
	}
	switch {
	case spec.Width == nil:
		return missing(KeyTexture, "", "width")
	case spec.Height == nil:
		return missing(KeyTexture, "", "height")
	case spec.Data == nil:
		return missing(KeyTexture, "", "data")
	}

	// Oversized textures fail the way glTexImage2D does, before anything is
	// decoded.
	limit := in.gl.Limits().MaxTextureSize
	if *spec.Width > limit || *spec.Height > limit {
		in.gl.UploadTexture(*spec.Width, *spec.Height, nil)
		return nil
	}

	pix, err := decodeTexture(*spec.Data, *spec.Width, *spec.Height, limit)
	if err != nil {
		return errors.Wrap(err, "pipeline.texture", "load texture")
	}
	in.gl.UploadTexture(*spec.Width, *spec.Height, pix)
	return nil
}

// attribIndex returns the index synthesized for name, assigning the next
// free one on first sight.
func (in *Interpreter) attribIndex(name string) int {
	if idx, ok := in.attribs[name]; ok {
		return idx
	}
	idx := len(in.attribs)
	in.attribs[name] = idx
	return idx
}

// parseEnabled accepts true/false as booleans or strings.
func parseEnabled(raw json.RawMessage) (bool, error) {
	if raw == nil {
		return false, errors.Validationf("enabled undefined")
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(s)
}

func decodeInt(f Field) (int, error) {
	var f64 float64
	if err := json.Unmarshal(f.Value, &f64); err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeValidation, "", f.Key+" must be a number").
			WithField("transition", f.Key)
	}
	return int(f64), nil
}

func decode(f Field, v any) error {
	if err := json.Unmarshal(f.Value, v); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "", "invalid "+f.Key+" transition").
			WithField("transition", f.Key)
	}
	return nil
}
