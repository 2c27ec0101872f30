package pipeline

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"renderworker/internal/pkg/errors"
)

// decodeTexture turns a base64 payload, optionally wrapped in a data URL,
// into tightly packed RGBA8 rows of the requested size. Images of another
// size are scaled with nearest-neighbour sampling. Neither the requested
// size nor the encoded image may exceed maxSize in either dimension.
func decodeTexture(payload string, width, height, maxSize int) ([]byte, error) {
	if width < 1 || height < 1 || width > maxSize || height > maxSize {
		return nil, errors.Validationf("invalid texture size %dx%d", width, height)
	}

	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, errors.Validationf("malformed data URL")
		}
		payload = payload[comma+1:]
	}
	payload = strings.TrimSpace(payload)

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "", "texture data is not base64")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "", "decode texture image")
	}
	if cfg.Width > maxSize || cfg.Height > maxSize {
		return nil, errors.Validationf("texture image %dx%d exceeds the maximum size %d", cfg.Width, cfg.Height, maxSize)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "", "decode texture image")
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		xdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, xdraw.Src)
	} else {
		xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}
	return dst.Pix, nil
}
