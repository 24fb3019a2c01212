// Package mirror implements the JPEG mirroring handler served by jpegmirror.
//
// The handler decodes a JPEG request body, flips it horizontally (or
// vertically) and re-encodes it as JPEG. Grayscale input stays grayscale.
// Input that cannot be decoded as JPEG is reported as bad input; encoder
// failures are internal errors.
package mirror

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/disintegration/imaging"

	"github.com/muurk/jpegmirror/internal/handler"
)

// Flip directions
const (
	Horizontal = "horizontal"
	Vertical   = "vertical"
)

// MimeType is the Content-Type of everything the handler produces.
const MimeType = "image/jpeg"

const (
	// DefaultQuality is the JPEG encoder quality used when none is configured
	DefaultQuality = 90

	// DefaultMaxPixels rejects images above 64 megapixels before decoding the scan data
	DefaultMaxPixels = 64 << 20
)

// Options controls the handler
type Options struct {
	Quality   int    // 1-100
	Direction string // Horizontal or Vertical
	MaxPixels int    // width*height ceiling, 0 = DefaultMaxPixels
}

// Handler mirrors JPEG images. It is stateless and safe for concurrent use.
type Handler struct {
	opts Options
}

var _ handler.Handler = (*Handler)(nil)

// New returns a Handler, filling zero options with defaults.
func New(opts Options) (*Handler, error) {
	if opts.Quality == 0 {
		opts.Quality = DefaultQuality
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return nil, fmt.Errorf("invalid jpeg quality %d: must be 1-100", opts.Quality)
	}
	if opts.Direction == "" {
		opts.Direction = Horizontal
	}
	if opts.Direction != Horizontal && opts.Direction != Vertical {
		return nil, fmt.Errorf("invalid flip direction %q", opts.Direction)
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Handler{opts: opts}, nil
}

// Handle decodes, mirrors and re-encodes one JPEG image.
func (h *Handler) Handle(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, handler.BadInput("empty request body")
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return nil, handler.BadInputf("not valid jpeg format: %w", err)
	}
	if cfg.Width*cfg.Height > h.opts.MaxPixels {
		return nil, handler.BadInputf("image too large: %dx%d exceeds %d pixels",
			cfg.Width, cfg.Height, h.opts.MaxPixels)
	}

	src, err := jpeg.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, handler.BadInputf("not valid jpeg format: %w", err)
	}

	var flipped image.Image
	if h.opts.Direction == Vertical {
		flipped = imaging.FlipV(src)
	} else {
		flipped = imaging.FlipH(src)
	}

	// imaging always produces NRGBA; keep single-channel images single-channel
	if _, ok := src.(*image.Gray); ok {
		gray := image.NewGray(flipped.Bounds())
		draw.Draw(gray, gray.Bounds(), flipped, flipped.Bounds().Min, draw.Src)
		flipped = gray
	}

	var out bytes.Buffer
	out.Grow(len(input))
	if err := imaging.Encode(&out, flipped, imaging.JPEG, imaging.JPEGQuality(h.opts.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}
