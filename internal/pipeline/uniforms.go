package pipeline

import (
	"encoding/json"
	"strings"

	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
)

type uniformSpec struct {
	Func *string   `json:"func"`
	Args []float64 `json:"args"`
}

// ParseUniforms decodes a uniformName → {func, args} object in document
// order. An empty string yields no uniforms. Entries without a function are
// kept with an empty Func, which the graphics context logs and skips.
func ParseUniforms(info string) ([]gles.Uniform, error) {
	if strings.TrimSpace(info) == "" {
		return nil, nil
	}
	us, err := decodeUniforms(json.RawMessage(info), false)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline.uniforms", "invalid uniforms info")
	}
	return us, nil
}

func decodeUniforms(raw json.RawMessage, strict bool) ([]gles.Uniform, error) {
	fields, err := orderedFields(raw)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "", "uniforms must be a JSON object")
	}

	us := make([]gles.Uniform, 0, len(fields))
	for _, f := range fields {
		var spec uniformSpec
		if err := json.Unmarshal(f.Value, &spec); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeValidation, "", "invalid uniform "+f.Key)
		}
		if strict && spec.Func == nil {
			return nil, missing("uniform", f.Key, "func")
		}
		if strict && spec.Args == nil {
			return nil, missing("uniform", f.Key, "args")
		}
		u := gles.Uniform{Name: f.Key, Args: spec.Args}
		if spec.Func != nil {
			u.Func = *spec.Func
		}
		us = append(us, u)
	}
	return us, nil
}

func missing(transition, name, field string) *errors.Error {
	if name == "" {
		return errors.Validationf("%s undefined in %s transition", field, transition).
			WithField("transition", transition)
	}
	return errors.Validationf("%s[%s][%s] undefined", transition, name, field).
		WithField("transition", transition)
}
