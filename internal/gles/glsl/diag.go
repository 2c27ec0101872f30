package glsl

import (
	"fmt"
	"strings"
)

// diagnostics collects compiler messages in the "ERROR: 0:line: 'token' :
// message" shape GLES drivers use.
type diagnostics struct {
	lines []string
	warns []string
}

func (d *diagnostics) errorf(line int, token, format string, args ...any) {
	d.lines = append(d.lines, fmt.Sprintf("ERROR: 0:%d: '%s' : %s", line, token, fmt.Sprintf(format, args...)))
}

func (d *diagnostics) warnf(line int, token, format string, args ...any) {
	d.warns = append(d.warns, fmt.Sprintf("WARNING: 0:%d: '%s' : %s", line, token, fmt.Sprintf(format, args...)))
}

func (d *diagnostics) failed() bool { return len(d.lines) > 0 }

func (d *diagnostics) String() string {
	if !d.failed() {
		if len(d.warns) == 0 {
			return ""
		}
		return strings.Join(d.warns, "\n") + "\n"
	}
	all := append(append([]string(nil), d.warns...), d.lines...)
	return strings.Join(all, "\n") + fmt.Sprintf("\nERROR: %d compilation errors.  No code generated.\n", len(d.lines))
}

// bailout aborts parsing after the first syntax error.
type bailout struct{}
