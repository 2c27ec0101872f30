package gles

// Handle names a device object (shader, program, buffer or texture). Zero is
// never a valid handle.
type Handle uint32

// Location is a uniform location within a linked program. Negative values
// mean the uniform is not active.
type Location int

// NoLocation is returned for uniforms the program does not use.
const NoLocation Location = -1

// ShaderKind is the pipeline stage a shader belongs to.
type ShaderKind int

const (
	VertexShader ShaderKind = iota + 1
	FragmentShader
)

func (k ShaderKind) String() string {
	switch k {
	case VertexShader:
		return "vertex"
	case FragmentShader:
		return "fragment"
	default:
		return "unknown"
	}
}

// Primitive is the topology used by draw calls.
type Primitive int

const (
	Triangles Primitive = iota + 1
	TriangleStrip
	TriangleFan
)

// BufferTarget selects which binding point a buffer is attached to.
type BufferTarget int

const (
	ArrayBuffer BufferTarget = iota + 1
	ElementArrayBuffer
)

// BufferUsage is the upload hint passed with buffer data.
type BufferUsage int

const (
	StaticDraw BufferUsage = iota + 1
	DynamicDraw
	StreamDraw
)

// TextureParam names a sampler parameter.
type TextureParam int

const (
	TextureMinFilter TextureParam = iota + 1
	TextureMagFilter
	TextureWrapS
	TextureWrapT
)

// TextureValue is a sampler parameter value.
type TextureValue int

const (
	Nearest TextureValue = iota + 1
	Linear
	Repeat
	ClampToEdge
)

// ErrorCode is the device error flag.
type ErrorCode int

const (
	NoError ErrorCode = iota
	InvalidEnum
	InvalidValue
	InvalidOperation
	OutOfMemory
	InvalidFramebufferOperation
	ContextLostError
)

func (e ErrorCode) String() string {
	switch e {
	case NoError:
		return "NO_ERROR"
	case InvalidEnum:
		return "INVALID_ENUM"
	case InvalidValue:
		return "INVALID_VALUE"
	case InvalidOperation:
		return "INVALID_OPERATION"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case InvalidFramebufferOperation:
		return "INVALID_FRAMEBUFFER_OPERATION"
	case ContextLostError:
		return "CONTEXT_LOST"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Info describes the device for the platform info blob.
type Info struct {
	Platform               string
	Version                string
	ShadingLanguageVersion string
	Vendor                 string
	Renderer               string
	Antialiasing           bool
}
