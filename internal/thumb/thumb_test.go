package thumb

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ShrinksWithinBounds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 800, 600))))

	data, err := Generate(buf.Bytes(), 300)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, img.Bounds().Dx(), 300)
	assert.LessOrEqual(t, img.Bounds().Dy(), 300)
}

func TestGenerate_RejectsGarbage(t *testing.T) {
	_, err := Generate([]byte("junk"), 300)
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	c := NewCache()

	_, ok := c.Get("p1")
	assert.False(t, ok)

	c.Put("p1", []byte{1, 2, 3})
	got, ok := c.Get("p1")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)

	c.Drop("p1")
	_, ok = c.Get("p1")
	assert.False(t, ok)
}
