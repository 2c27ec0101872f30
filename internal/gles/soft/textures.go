package soft

import (
	"math"

	"renderworker/internal/gles"
	"renderworker/internal/gles/glsl"
)

// samplers exposes the device's texture units to shaders. Only 2D
// textures exist, so other sampler kinds see incomplete textures.
type samplers struct{ d *Device }

var _ glsl.Textures = samplers{}

func (s samplers) texture(unit int, target glsl.Basic) *texture {
	if unit < 0 || unit >= maxTextureUnits {
		return nil
	}
	switch target {
	case glsl.Sampler2D, glsl.Sampler2DShadow:
	default:
		return nil
	}
	t := s.d.textures[s.d.units[unit]]
	if t == nil || t.pix == nil {
		return nil
	}
	return t
}

// Sample filters with the magnification filter at or below level zero and
// the minification filter above it. There are no mipmaps.
func (s samplers) Sample(unit int, target glsl.Basic, coord [3]float64, lod float64) [4]float64 {
	t := s.texture(unit, target)
	if t == nil {
		return [4]float64{0, 0, 0, 1}
	}
	filter := t.params[gles.TextureMagFilter]
	if lod > 0 {
		filter = t.params[gles.TextureMinFilter]
	}
	u := coord[0] * float64(t.width)
	v := coord[1] * float64(t.height)
	if filter != gles.Linear {
		return t.texel(t.wrap(floor(u), t.width, gles.TextureWrapS), t.wrap(floor(v), t.height, gles.TextureWrapT))
	}

	u, v = u-0.5, v-0.5
	x0, y0 := floor(u), floor(v)
	fx, fy := u-math.Floor(u), v-math.Floor(v)
	xa, xb := t.wrap(x0, t.width, gles.TextureWrapS), t.wrap(x0+1, t.width, gles.TextureWrapS)
	ya, yb := t.wrap(y0, t.height, gles.TextureWrapT), t.wrap(y0+1, t.height, gles.TextureWrapT)
	c00, c10 := t.texel(xa, ya), t.texel(xb, ya)
	c01, c11 := t.texel(xa, yb), t.texel(xb, yb)
	var out [4]float64
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bottom := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bottom-top)*fy
	}
	return out
}

func (s samplers) Size(unit int, target glsl.Basic, lod int) [3]int {
	t := s.texture(unit, target)
	if t == nil || lod != 0 {
		return [3]int{}
	}
	return [3]int{t.width, t.height, 1}
}

func (s samplers) Fetch(unit int, target glsl.Basic, coord [3]int, lod int) [4]float64 {
	t := s.texture(unit, target)
	if t == nil || lod != 0 || coord[0] < 0 || coord[1] < 0 || coord[0] >= t.width || coord[1] >= t.height {
		return [4]float64{}
	}
	return t.texel(coord[0], coord[1])
}

// texel returns the normalized color at column x of row y, rows counted in
// upload order.
func (t *texture) texel(x, y int) [4]float64 {
	p := t.pix[4*(y*t.width+x):]
	return [4]float64{float64(p[0]) / 0xff, float64(p[1]) / 0xff, float64(p[2]) / 0xff, float64(p[3]) / 0xff}
}

func (t *texture) wrap(v, size int, param gles.TextureParam) int {
	if t.params[param] == gles.ClampToEdge {
		return min(max(v, 0), size-1)
	}
	v %= size
	if v < 0 {
		v += size
	}
	return v
}

// floor converts to a texel index, saturating values no texture can reach.
func floor(v float64) int {
	f := math.Floor(v)
	switch {
	case math.IsNaN(f):
		return 0
	case f < math.MinInt32:
		return math.MinInt32
	case f > math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}
