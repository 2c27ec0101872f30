// Package pipeline replays declarative graphics pipelines.
//
// A pipeline description is a JSON document of the form
//
//	{"glstate": [ {"width": 256}, {"program": {"vs": "...", "fs": "..."}}, ... ]}
//
// Transitions are applied strictly in document order. Key order inside a
// transition, and name order inside uniform and vertex maps, is preserved as
// well, so decoding never goes through a Go map.
package pipeline

import (
	"bytes"
	"encoding/json"
	"io"

	"renderworker/internal/pkg/errors"
)

// Transition keys.
const (
	KeyWidth   = "width"
	KeyHeight  = "height"
	KeyProgram = "program"
	KeyUniform = "uniform"
	KeyBuffer  = "buffer"
	KeyVertex  = "vertex"
	KeyTexture = "texture"
)

// Field is one key of a JSON object with its undecoded value.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Transition is one entry of the glstate list.
type Transition struct {
	Fields []Field
}

// Description is an ordered list of transitions.
type Description struct {
	Transitions []Transition
}

// New returns an empty description.
func New() *Description {
	return &Description{}
}

// Parse decodes a {"glstate": [...]} document.
func Parse(data []byte) (*Description, error) {
	top, err := orderedFields(data)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "pipeline.parse", "invalid pipeline description")
	}

	var glstate json.RawMessage
	for _, f := range top {
		if f.Key == "glstate" {
			glstate = f.Value
		}
	}
	if glstate == nil || bytes.Equal(bytes.TrimSpace(glstate), []byte("null")) {
		return nil, errors.Validationf("glstate undefined in pipeline description").WithOp("pipeline.parse")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(glstate, &items); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "pipeline.parse", "glstate must be an array")
	}

	d := New()
	for i, item := range items {
		fields, err := orderedFields(item)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeValidation, "pipeline.parse", "invalid transition").
				WithField("index", i)
		}
		d.Transitions = append(d.Transitions, Transition{Fields: fields})
	}
	return d, nil
}

// Add appends a single-key transition. It fails only when value cannot be
// encoded as JSON.
func (d *Description) Add(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "pipeline.add", "encode %s transition", key)
	}
	d.Transitions = append(d.Transitions, Transition{Fields: []Field{{Key: key, Value: raw}}})
	return nil
}

// Width appends a width transition.
func (d *Description) Width(width int) *Description {
	d.addRaw(KeyWidth, mustMarshal(width))
	return d
}

// Height appends a height transition.
func (d *Description) Height(height int) *Description {
	d.addRaw(KeyHeight, mustMarshal(height))
	return d
}

// Program appends a program transition.
func (d *Description) Program(vs, fs string) *Description {
	d.addRaw(KeyProgram, mustMarshal(programSpec{VS: &vs, FS: &fs}))
	return d
}

// Buffer appends a buffer transition.
func (d *Description) Buffer(data []float32) *Description {
	d.addRaw(KeyBuffer, mustMarshal(bufferSpec{Data: data}))
	return d
}

// Concat appends every transition of other.
func (d *Description) Concat(other *Description) *Description {
	if other != nil {
		d.Transitions = append(d.Transitions, other.Transitions...)
	}
	return d
}

// Len returns the number of transitions.
func (d *Description) Len() int { return len(d.Transitions) }

func (d *Description) addRaw(key string, raw json.RawMessage) {
	d.Transitions = append(d.Transitions, Transition{Fields: []Field{{Key: key, Value: raw}}})
}

// MarshalJSON encodes the description with its key order intact.
func (d *Description) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`{"glstate":[`)
	for i, t := range d.Transitions {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('{')
		for j, f := range t.Fields {
			if j > 0 {
				b.WriteByte(',')
			}
			b.Write(mustMarshal(f.Key))
			b.WriteByte(':')
			b.Write(f.Value)
		}
		b.WriteByte('}')
	}
	b.WriteString(`]}`)
	return b.Bytes(), nil
}

// orderedFields decodes a JSON object into its fields in document order.
func orderedFields(data []byte) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.Validationf("expected a JSON object, got %v", tok)
	}

	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Validationf("expected an object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Validationf("unexpected data after JSON object")
	}
	return fields, nil
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
