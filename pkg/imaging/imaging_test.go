package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSquarePNGCropsAndScales(t *testing.T) {
	out, err := SquarePNG(encodeTestPNG(t, 300, 120), 64, false)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())

	_, _, _, a := img.At(0, 0).RGBA()
	assert.NotZero(t, a)
}

func TestSquarePNGCircleClipsCorners(t *testing.T) {
	out, err := SquarePNG(encodeTestPNG(t, 100, 100), 64, true)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	_, _, _, corner := img.At(0, 0).RGBA()
	_, _, _, center := img.At(32, 32).RGBA()
	assert.Zero(t, corner)
	assert.NotZero(t, center)
}

func TestSquarePNGRejectsNonImage(t *testing.T) {
	_, err := SquarePNG([]byte("definitely not an image"), 64, false)
	require.Error(t, err)
}
