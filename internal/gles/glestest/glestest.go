// Package glestest provides a scriptable gles.Device for tests. It wraps the
// software device and can lose the context, inject device errors or make
// captures drift on demand.
package glestest

import (
	"testing"

	"renderworker/internal/gles"
	"renderworker/internal/gles/soft"
	"renderworker/internal/pkg/logger"
)

// Device is a soft.Device with fault injection and call counting.
type Device struct {
	*soft.Device

	// LoseAtDraw loses the context when the n-th draw is issued (1-based).
	LoseAtDraw int
	// LoseAtCapture loses the context when the n-th capture is issued.
	LoseAtCapture int
	// LoseAtCompile loses the context when the n-th shader compile is issued.
	LoseAtCompile int
	// DriftFromCapture alters every capture from the n-th onwards so it no
	// longer matches earlier ones.
	DriftFromCapture int
	// DrawError is raised by every draw call.
	DrawError gles.ErrorCode

	Draws    int
	Captures int
	Compiles int
	Calls    []string

	injected gles.ErrorCode
}

var _ gles.Device = (*Device)(nil)

// New returns a healthy device.
func New() *Device {
	return &Device{Device: soft.New(soft.Options{Vendor: "glestest", Renderer: "glestest"})}
}

// NewContext returns a context of the given size over a fresh Device.
func NewContext(t testing.TB, width, height int, opts ...gles.Option) (*gles.Context, *Device) {
	t.Helper()
	dev := New()
	gl := gles.NewContext(dev, width, height, logger.Discard(), opts...)
	t.Cleanup(gl.Release)
	return gl, dev
}

func (d *Device) CompileShader(kind gles.ShaderKind, source string) (gles.Handle, bool, string) {
	d.Compiles++
	d.Calls = append(d.Calls, "CompileShader:"+kind.String())
	if d.LoseAtCompile > 0 && d.Compiles >= d.LoseAtCompile {
		d.LoseContext()
	}
	return d.Device.CompileShader(kind, source)
}

func (d *Device) LinkProgram(vs, fs gles.Handle) (gles.Handle, bool, string) {
	d.Calls = append(d.Calls, "LinkProgram")
	return d.Device.LinkProgram(vs, fs)
}

func (d *Device) UseProgram(p gles.Handle) {
	d.Calls = append(d.Calls, "UseProgram")
	d.Device.UseProgram(p)
}

func (d *Device) Clear() {
	d.Calls = append(d.Calls, "Clear")
	d.Device.Clear()
}

func (d *Device) DrawElements(mode gles.Primitive, count, offset int) {
	d.Draws++
	d.Calls = append(d.Calls, "DrawElements")
	if d.LoseAtDraw > 0 && d.Draws >= d.LoseAtDraw {
		d.LoseContext()
		return
	}
	if d.DrawError != gles.NoError && d.injected == gles.NoError {
		d.injected = d.DrawError
	}
	d.Device.DrawElements(mode, count, offset)
}

func (d *Device) ReadPixels() (int, int, []byte) {
	d.Captures++
	d.Calls = append(d.Calls, "ReadPixels")
	if d.LoseAtCapture > 0 && d.Captures >= d.LoseAtCapture {
		d.LoseContext()
	}
	w, h, pix := d.Device.ReadPixels()
	if d.DriftFromCapture > 0 && d.Captures >= d.DriftFromCapture && len(pix) > 0 {
		pix[len(pix)/2] ^= 0xff
	}
	return w, h, pix
}

func (d *Device) GetError() gles.ErrorCode {
	code := d.Device.GetError()
	if code != gles.ContextLostError && d.injected != gles.NoError {
		code = d.injected
		d.injected = gles.NoError
	}
	return code
}
