package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func encoded(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFitWidth(t *testing.T) {
	small := solid(100, 50)
	assert.Same(t, small, FitWidth(small, 800))

	big := FitWidth(solid(1600, 900), 800)
	assert.Equal(t, 800, big.Bounds().Dx())
	assert.Equal(t, 450, big.Bounds().Dy())
}

func TestSquare(t *testing.T) {
	for _, size := range []int{48, 192, 512} {
		sq := Square(solid(300, 150), size)
		assert.Equal(t, size, sq.Bounds().Dx())
		assert.Equal(t, size, sq.Bounds().Dy())
	}

	sq := Square(solid(200, 100), 100)
	_, _, _, a := sq.At(50, 5).RGBA()
	assert.Zero(t, a, "letterbox stays transparent")
	_, _, _, a = sq.At(50, 50).RGBA()
	assert.NotZero(t, a)
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(solid(10, 10))
	require.NoError(t, err)
	img, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader("not an image"))
	assert.Error(t, err)
}

func TestProcessUpload(t *testing.T) {
	slug := func(s string) string { return strings.ToLower(strings.ReplaceAll(s, " ", "-")) }

	up, data, err := ProcessUpload(bytes.NewReader(encoded(t, solid(1000, 500))), "Holiday Photo.png", slug)
	require.NoError(t, err)
	assert.Equal(t, "holiday-photo.jpg", up.Filename)
	assert.Equal(t, "Holiday Photo.png", up.OriginalName)
	assert.Equal(t, 800, up.Width)
	assert.Equal(t, 400, up.Height)
	assert.Equal(t, len(data), up.Size)

	up, _, err = ProcessUpload(bytes.NewReader(encoded(t, solid(10, 10))), "!!!.png", slug)
	require.NoError(t, err)
	assert.Equal(t, "!!!.jpg", up.Filename)

	_, _, err = ProcessUpload(strings.NewReader("nope"), "x.png", slug)
	assert.Error(t, err)
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"a.jpg": true, "a-2.jpg": true}
	lookup := func(s string) (bool, error) { return taken[s], nil }

	name, err := UniqueName("a.jpg", lookup)
	require.NoError(t, err)
	assert.Equal(t, "a-3.jpg", name)

	name, err = UniqueName("b.jpg", lookup)
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", name)
}

func TestUniqueNameStopsOnLookupError(t *testing.T) {
	calls := 0
	_, err := UniqueName("a.jpg", func(string) (bool, error) {
		calls++
		return false, errors.New("database is locked")
	})
	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, 1, calls)
}

func TestUniqueNameGivesUp(t *testing.T) {
	calls := 0
	_, err := UniqueName("a.jpg", func(string) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorContains(t, err, "no free name")
	assert.Equal(t, maxNameAttempts, calls)
}
