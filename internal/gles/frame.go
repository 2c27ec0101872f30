package gles

import (
	"bytes"
	"image"
	"image/png"
)

// Frame is a captured surface: RGBA8 rows, top row first.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Equal reports whether f and o are byte-for-byte identical.
func (f Frame) Equal(o Frame) bool {
	return f.Width == o.Width && f.Height == o.Height && bytes.Equal(f.Pix, o.Pix)
}

// Image returns the frame as a non-premultiplied image sharing Pix.
func (f Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// PNG encodes the frame.
func (f Frame) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
