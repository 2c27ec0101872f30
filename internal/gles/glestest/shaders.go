package glestest

// Shaders used across package tests.
const (
	VertexShader = `attribute vec3 a_position;
void main(void) {
  gl_Position = vec4(a_position, 1.0);
}
`

	FragmentShader = `precision mediump float;
uniform float time;
uniform vec2 resolution;
void main(void) {
  gl_FragColor = vec4(fract(time), gl_FragCoord.xy / resolution, 1.0);
}
`

	// BrokenFragmentShader is missing a closing brace.
	BrokenFragmentShader = `precision mediump float;
void main(void) {
  gl_FragColor = vec4(1.0);
`

	// VaryingFragmentShader reads a varying VertexShader never writes.
	VaryingFragmentShader = `precision mediump float;
varying vec2 v_uv;
void main(void) {
  gl_FragColor = vec4(v_uv, 0.0, 1.0);
}
`

	TexturedFragmentShader = `precision mediump float;
uniform sampler2D tex;
void main(void) {
  gl_FragColor = texture2D(tex, gl_FragCoord.xy / 64.0);
}
`
)

// Quad is two triangles covering clip space, three floats per vertex.
var Quad = []float32{
	-1, 1, 0,
	-1, -1, 0,
	1, -1, 0,
	-1, 1, 0,
	1, -1, 0,
	1, 1, 0,
}
