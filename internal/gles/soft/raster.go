package soft

import (
	"encoding/binary"
	"hash/fnv"
	"image"
	"image/draw"
	"math"
	"sort"

	"golang.org/x/image/vector"

	"renderworker/internal/gles"
	"renderworker/internal/gles/glsl"
)

// vertex is a shaded vertex in clip space.
type vertex struct {
	clip [4]float64
	vary []float64
}

// shadeFunc colors one fragment. keep is false for discarded fragments.
type shadeFunc func(f *glsl.FragmentInput) (c [4]float64, keep bool, err error)

// draw runs the current program over indices and rasterizes the result.
func (d *Device) draw(mode gles.Primitive, indices []int) {
	var (
		verts []vertex
		shade shadeFunc
		flat  []bool
		ok    bool
	)
	if p := d.current.prog; p != nil {
		p.SetBudget(d.budget)
		verts, ok = d.runVertices(p, indices)
		shade = p.RunFragment
		flat = p.Flat()
	} else {
		verts, ok = d.wgslVertices(indices)
		c := d.shade(d.current)
		shade = func(*glsl.FragmentInput) ([4]float64, bool, error) { return c, true, nil }
	}
	if !ok {
		return
	}

	for _, t := range assemble(mode, len(verts)) {
		tri := [3]vertex{verts[t[0]], verts[t[1]], verts[t[2]]}
		if err := d.triangle(tri, flat, shade); err != nil {
			d.LoseContext()
			return
		}
	}
}

// runVertices loads attributes and runs the vertex stage once per index.
// A failed fetch sets INVALID_OPERATION; a failed shader loses the context.
func (d *Device) runVertices(p *glsl.Program, indices []int) ([]vertex, bool) {
	slots := p.VaryingSlots()
	done := map[int]vertex{}
	out := make([]vertex, len(indices))
	for i, idx := range indices {
		if v, ok := done[idx]; ok {
			out[i] = v
			continue
		}
		for _, a := range p.Attribs {
			base := d.current.attribs[a.Name]
			for col := range a.Columns() {
				v, ok := d.attribValue(base+col, idx)
				if !ok {
					d.setError(gles.InvalidOperation)
					return nil, false
				}
				a.SetColumn(col, v)
			}
		}
		v := vertex{vary: make([]float64, slots)}
		pos, err := p.RunVertex(idx, v.vary)
		if err != nil {
			d.LoseContext()
			return nil, false
		}
		v.clip = pos
		done[idx] = v
		out[i] = v
	}
	return out, true
}

// wgslVertices reads positions from attribute 0, which WGSL modules bind
// their position input to.
func (d *Device) wgslVertices(indices []int) ([]vertex, bool) {
	if !d.attribs[0].enabled {
		return nil, true
	}
	out := make([]vertex, len(indices))
	for i, idx := range indices {
		v, ok := d.attribValue(0, idx)
		if !ok {
			d.setError(gles.InvalidOperation)
			return nil, false
		}
		out[i] = vertex{clip: [4]float64{v[0], v[1], v[2], 1}}
	}
	return out, true
}

// assemble groups n vertices into triangles for mode, preserving winding.
// Trailing vertices that do not complete a triangle are dropped.
func assemble(mode gles.Primitive, n int) [][3]int {
	var tris [][3]int
	switch mode {
	case gles.Triangles:
		for i := 0; i+2 < n; i += 3 {
			tris = append(tris, [3]int{i, i + 1, i + 2})
		}
	case gles.TriangleStrip:
		for i := 0; i+2 < n; i++ {
			if i%2 == 0 {
				tris = append(tris, [3]int{i, i + 1, i + 2})
			} else {
				tris = append(tris, [3]int{i + 1, i, i + 2})
			}
		}
	case gles.TriangleFan:
		for i := 1; i+1 < n; i++ {
			tris = append(tris, [3]int{0, i, i + 1})
		}
	}
	return tris
}

// clipPlanes are the six frustum planes as distances from a clip-space
// position; a vertex is inside when every distance is non-negative.
var clipPlanes = [6]func(p [4]float64) float64{
	func(p [4]float64) float64 { return p[3] + p[0] },
	func(p [4]float64) float64 { return p[3] - p[0] },
	func(p [4]float64) float64 { return p[3] + p[1] },
	func(p [4]float64) float64 { return p[3] - p[1] },
	func(p [4]float64) float64 { return p[3] + p[2] },
	func(p [4]float64) float64 { return p[3] - p[2] },
}

// clip cuts a polygon against the view frustum.
func clip(poly []vertex) []vertex {
	for _, plane := range clipPlanes {
		if len(poly) == 0 {
			return nil
		}
		var next []vertex
		prev := poly[len(poly)-1]
		dp := plane(prev.clip)
		for _, cur := range poly {
			dc := plane(cur.clip)
			if (dc >= 0) != (dp >= 0) {
				next = append(next, lerpVertex(prev, cur, dp/(dp-dc)))
			}
			if dc >= 0 {
				next = append(next, cur)
			}
			prev, dp = cur, dc
		}
		poly = next
	}
	return poly
}

func lerpVertex(a, b vertex, t float64) vertex {
	v := vertex{vary: make([]float64, len(a.vary))}
	for i := range v.clip {
		v.clip[i] = a.clip[i] + (b.clip[i]-a.clip[i])*t
	}
	for i := range v.vary {
		v.vary[i] = a.vary[i] + (b.vary[i]-a.vary[i])*t
	}
	return v
}

// winVertex is a vertex after the perspective divide and viewport
// transform. y grows upwards.
type winVertex struct {
	x, y, z, invW float64
	vary          []float64
}

// triangle clips, projects and fills one triangle.
func (d *Device) triangle(tri [3]vertex, flat []bool, shade shadeFunc) error {
	for _, v := range tri {
		for _, c := range v.clip {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil
			}
		}
	}
	// Flat varyings take the last vertex's value everywhere.
	if len(flat) > 0 {
		for i := range 2 {
			vary := append([]float64(nil), tri[i].vary...)
			for s, f := range flat {
				if f {
					vary[s] = tri[2].vary[s]
				}
			}
			tri[i].vary = vary
		}
	}

	poly := clip(tri[:])
	if len(poly) < 3 {
		return nil
	}
	win := make([]winVertex, len(poly))
	vp := d.viewport
	for i, v := range poly {
		w := v.clip[3]
		if w <= 0 {
			return nil
		}
		win[i] = winVertex{
			x:    float64(vp.Min.X) + (v.clip[0]/w+1)/2*float64(vp.Dx()),
			y:    float64(vp.Min.Y) + (v.clip[1]/w+1)/2*float64(vp.Dy()),
			z:    (v.clip[2]/w + 1) / 2,
			invW: 1 / w,
			vary: v.vary,
		}
	}
	for i := 1; i+1 < len(win); i++ {
		if err := d.fill([3]winVertex{win[0], win[i], win[i+1]}, shade); err != nil {
			return err
		}
	}
	return nil
}

func edge(a, b winVertex, x, y float64) float64 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

// topLeft reports whether the edge a->b of a counter-clockwise triangle
// owns the pixel centers lying exactly on it.
func topLeft(a, b winVertex) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return dy < 0 || dy == 0 && dx < 0
}

// fill shades the pixels covered by t. Without antialiasing a pixel is
// covered when its center is inside, using the top-left rule on shared
// edges; with antialiasing the vector rasterizer's coverage blends the
// fragment over what is already there.
func (d *Device) fill(t [3]winVertex, shade shadeFunc) error {
	area := edge(t[0], t[1], t[2].x, t[2].y)
	if area == 0 || math.IsNaN(area) {
		return nil
	}
	front := area > 0
	if !front {
		t[1], t[2] = t[2], t[1]
		area = -area
	}

	fb := d.fb.Bounds()
	h := fb.Dy()
	minX := max(int(math.Floor(min(t[0].x, t[1].x, t[2].x))), 0)
	maxX := min(int(math.Ceil(max(t[0].x, t[1].x, t[2].x))), fb.Dx())
	minY := max(int(math.Floor(min(t[0].y, t[1].y, t[2].y))), 0)
	maxY := min(int(math.Ceil(max(t[0].y, t[1].y, t[2].y))), h)
	if minX >= maxX || minY >= maxY {
		return nil
	}

	var mask *image.Alpha
	if d.info.Antialiasing {
		mask = coverage(t, minX, minY, maxX, maxY, h)
	}

	frag := glsl.FragmentInput{Front: front, Varyings: make([]float64, len(t[0].vary))}
	for py := minY; py < maxY; py++ {
		for px := minX; px < maxX; px++ {
			x, y := float64(px)+0.5, float64(py)+0.5
			w0 := edge(t[1], t[2], x, y)
			w1 := edge(t[2], t[0], x, y)
			w2 := edge(t[0], t[1], x, y)

			cover := 1.0
			if mask != nil {
				// Mask rows run top-down.
				a := mask.AlphaAt(px, h-1-py).A
				if a == 0 {
					continue
				}
				cover = float64(a) / 0xff
				w0, w1, w2 = max(w0, 0), max(w1, 0), max(w2, 0)
				if s := w0 + w1 + w2; s > 0 {
					w0, w1, w2 = w0*area/s, w1*area/s, w2*area/s
				}
			} else if !inside(w0, t[1], t[2]) || !inside(w1, t[2], t[0]) || !inside(w2, t[0], t[1]) {
				continue
			}

			b0, b1, b2 := w0/area, w1/area, w2/area
			invW := b0*t[0].invW + b1*t[1].invW + b2*t[2].invW
			if invW <= 0 {
				continue
			}
			p0, p1, p2 := b0*t[0].invW/invW, b1*t[1].invW/invW, b2*t[2].invW/invW
			for s := range frag.Varyings {
				frag.Varyings[s] = p0*t[0].vary[s] + p1*t[1].vary[s] + p2*t[2].vary[s]
			}
			frag.Coord = [4]float64{x, y, b0*t[0].z + b1*t[1].z + b2*t[2].z, invW}

			c, keep, err := shade(&frag)
			if err != nil {
				return err
			}
			if keep {
				d.put(px, h-1-py, c, cover)
			}
		}
	}
	return nil
}

func inside(w float64, a, b winVertex) bool {
	return w > 0 || w == 0 && topLeft(a, b)
}

// coverage rasterizes t into an alpha mask covering the framebuffer rows
// and columns of the bounding box.
func coverage(t [3]winVertex, minX, minY, maxX, maxY, h int) *image.Alpha {
	top, bottom := h-maxY, h-minY
	r := image.Rect(minX, top, maxX, bottom)
	mask := image.NewAlpha(r)
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	z.DrawOp = draw.Src
	at := func(v winVertex) (float32, float32) {
		return float32(v.x - float64(minX)), float32(float64(h) - v.y - float64(top))
	}
	z.MoveTo(at(t[0]))
	z.LineTo(at(t[1]))
	z.LineTo(at(t[2]))
	z.ClosePath()
	z.Draw(mask, r, image.Opaque, r.Min)
	return mask
}

// put writes a fragment color to the framebuffer, blending by coverage.
func (d *Device) put(x, y int, c [4]float64, cover float64) {
	i := d.fb.PixOffset(x, y)
	px := d.fb.Pix[i : i+4 : i+4]
	for k := range px {
		v := toByte(c[k])
		if cover < 1 {
			v = byte(math.Round(float64(px[k]) + (float64(v)-float64(px[k]))*cover))
		}
		px[k] = v
	}
}

func toByte(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return byte(v*0xff + 0.5)
}

// shade derives the fill color of a WGSL program from everything that
// should affect its output: both sources, the uniform values and constant
// attributes.
func (d *Device) shade(p *programObj) [4]float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(p.vs.source))
	_, _ = h.Write([]byte(p.fs.source))

	locs := make([]int, 0, len(p.values))
	for loc := range p.values {
		locs = append(locs, int(loc))
	}
	sort.Ints(locs)

	var scratch [8]byte
	for _, loc := range locs {
		v := p.values[gles.Location(loc)]
		_, _ = h.Write([]byte(p.uniforms[loc]))
		_, _ = h.Write([]byte(v.fn.String()))
		for _, f := range v.values {
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(f))
			_, _ = h.Write(scratch[:])
		}
	}
	for i := 1; i < maxAttribs; i++ {
		a := d.attribs[i]
		if a.enabled {
			continue
		}
		for _, f := range a.constant {
			binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(f))
			_, _ = h.Write(scratch[:4])
		}
	}

	sum := h.Sum64()
	return [4]float64{float64(byte(sum)) / 0xff, float64(byte(sum>>8)) / 0xff, float64(byte(sum>>16)) / 0xff, 1}
}
