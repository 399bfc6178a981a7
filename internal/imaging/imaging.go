// Package imaging validates and normalizes uploaded images before they reach
// an OCR engine.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime"
	"strings"

	// registered decoders
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupported = errors.New("unsupported image format")
	ErrCorrupt     = errors.New("image data could not be decoded")
	ErrTooLarge    = errors.New("image dimensions exceed limit")
)

// formats maps accepted media types to the decoder name image.Decode reports.
var formats = map[string]string{
	"image/png":      "png",
	"image/jpeg":     "jpeg",
	"image/jpg":      "jpeg",
	"image/pjpeg":    "jpeg",
	"image/gif":      "gif",
	"image/bmp":      "bmp",
	"image/x-ms-bmp": "bmp",
	"image/tiff":     "tiff",
	"image/webp":     "webp",
}

// passthrough formats are read natively by leptonica and are handed to the
// engine unchanged; everything else is re-encoded as PNG.
var passthrough = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
}

// MediaType parses a Content-Type header value and returns the lowercased
// media type without parameters.
func MediaType(contentType string) (string, error) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return "", fmt.Errorf("%w: missing content type", ErrUnsupported)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, contentType)
	}
	return strings.ToLower(mt), nil
}

// Supported reports whether mediaType is an accepted raster format.
func Supported(mediaType string) bool {
	_, ok := formats[mediaType]
	return ok
}

// SupportedTypes lists the accepted media types.
func SupportedTypes() []string {
	return []string{"image/png", "image/jpeg", "image/gif", "image/bmp", "image/tiff", "image/webp"}
}

// Image is a decoded and validated upload ready for an engine.
type Image struct {
	Data      []byte
	MediaType string
	Format    string
	Width     int
	Height    int
}

// Prepare decodes data to make sure it is a well-formed raster image, checks
// its dimensions and returns bytes in a format the engine reads natively.
// The actual format is sniffed from the bytes, so a mislabelled but valid
// image is still accepted. maxPixels <= 0 disables the size check.
func Prepare(data []byte, maxPixels int) (Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, fmt.Errorf("%w: empty image %dx%d", ErrCorrupt, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return Image{}, fmt.Errorf("%w: %dx%d is over %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	// DecodeConfig only reads headers; a full decode catches truncated data.
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	out := Image{Format: format, Width: cfg.Width, Height: cfg.Height}
	if mt, ok := passthrough[format]; ok {
		out.Data = data
		out.MediaType = mt
		return out, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Image{}, fmt.Errorf("re-encode %s as png: %w", format, err)
	}
	out.Data = buf.Bytes()
	out.MediaType = "image/png"
	return out, nil
}
