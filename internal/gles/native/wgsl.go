package native

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"

	"renderworker/internal/gles"
)

var wgslStageRe = regexp.MustCompile(`@(vertex|fragment)\b`)

func isWGSL(source string) bool {
	return wgslStageRe.MatchString(source) && !strings.Contains(source, "void main")
}

// translateWGSL lowers the module's entry point for kind's stage to
// GLSL ES 3.00. Vertex inputs keep their @location as attribute location.
func translateWGSL(kind gles.ShaderKind, source string) (string, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return "", err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return "", err
	}
	problems, err := naga.Validate(module)
	if err != nil {
		return "", err
	}
	if len(problems) > 0 {
		return "", &problems[0]
	}

	stage := ir.StageVertex
	if kind == gles.FragmentShader {
		stage = ir.StageFragment
	}
	entry := ""
	for _, ep := range module.EntryPoints {
		if ep.Stage == stage {
			entry = ep.Name
			break
		}
	}
	if entry == "" {
		return "", fmt.Errorf("no @%s entry point", kind)
	}

	src, _, err := glsl.Compile(module, glsl.Options{
		LangVersion:        glsl.VersionES300,
		EntryPoint:         entry,
		ForceHighPrecision: true,
	})
	if err != nil {
		return "", fmt.Errorf("entry point %q: %w", entry, err)
	}
	return src, nil
}
