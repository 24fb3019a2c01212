package mirror

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/jpegmirror/internal/handler"
)

// encodeHalves builds a JPEG whose left half is red and right half is blue.
func encodeHalves(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func isReddish(c color.Color) bool {
	r, _, b, _ := c.RGBA()
	return r > 0xa000 && b < 0x6000
}

func isBluish(c color.Color) bool {
	r, _, b, _ := c.RGBA()
	return b > 0xa000 && r < 0x6000
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestHandle_MirrorsHorizontally(t *testing.T) {
	h, err := New(Options{})
	require.NoError(t, err)

	out, err := h.Handle(encodeHalves(t, 64, 32))
	require.NoError(t, err)

	img := decode(t, out)
	assert.Equal(t, image.Rect(0, 0, 64, 32), img.Bounds())
	assert.True(t, isBluish(img.At(4, 16)), "left side should now be blue")
	assert.True(t, isReddish(img.At(60, 16)), "right side should now be red")
}

func TestHandle_Vertical(t *testing.T) {
	h, err := New(Options{Direction: Vertical})
	require.NoError(t, err)

	out, err := h.Handle(encodeHalves(t, 64, 32))
	require.NoError(t, err)

	img := decode(t, out)
	// left/right halves are untouched by a vertical flip
	assert.True(t, isReddish(img.At(4, 4)))
	assert.True(t, isBluish(img.At(60, 28)))
}

func TestHandle_PreservesGrayscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			if x < 8 {
				src.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}))

	h, err := New(Options{})
	require.NoError(t, err)
	out, err := h.Handle(buf.Bytes())
	require.NoError(t, err)

	img := decode(t, out)
	gray, ok := img.(*image.Gray)
	require.True(t, ok, "expected *image.Gray, got %T", img)
	assert.Less(t, gray.GrayAt(1, 4).Y, uint8(64))
	assert.Greater(t, gray.GrayAt(14, 4).Y, uint8(192))
}

func TestHandle_BadInput(t *testing.T) {
	h, err := New(Options{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input []byte
		msg   string
	}{
		{"empty", nil, "empty request body"},
		{"not a jpeg", []byte("hello world"), "not valid jpeg format"},
		{"png magic", []byte("\x89PNG\r\n\x1a\n"), "not valid jpeg format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(tt.input)
			require.Error(t, err)
			assert.True(t, handler.IsBadInput(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestHandle_TruncatedScanIsBadInput(t *testing.T) {
	h, err := New(Options{})
	require.NoError(t, err)

	full := encodeHalves(t, 64, 64)
	_, err = h.Handle(full[:len(full)/2])
	require.Error(t, err)
	assert.True(t, handler.IsBadInput(err))
}

func TestHandle_TooManyPixels(t *testing.T) {
	h, err := New(Options{MaxPixels: 100})
	require.NoError(t, err)

	_, err = h.Handle(encodeHalves(t, 20, 20))
	require.Error(t, err)
	assert.True(t, handler.IsBadInput(err))
	assert.Contains(t, err.Error(), "image too large")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Quality: 101})
	assert.Error(t, err)

	_, err = New(Options{Direction: "diagonal"})
	assert.Error(t, err)

	h, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultQuality, h.opts.Quality)
	assert.Equal(t, Horizontal, h.opts.Direction)
	assert.Equal(t, DefaultMaxPixels, h.opts.MaxPixels)
}
