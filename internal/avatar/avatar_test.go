package avatar

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := PNG("alice")
	require.NoError(t, err)
	b, err := PNG("alice")
	require.NoError(t, err)
	c, err := PNG("bob")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPNG_Image(t *testing.T) {
	t.Parallel()

	data, err := PNG("3f9c0e1a-job")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Size, img.Bounds().Dx())
	assert.Equal(t, Size, img.Bounds().Dy())

	cells, fill := Cells("3f9c0e1a-job")
	for y := 0; y < Grid; y++ {
		for x := 0; x < Grid; x++ {
			// Sample the centre of each cell.
			px := color.NRGBAModel.Convert(img.At(margin+x*cell+cell/2, margin+y*cell+cell/2)).(color.NRGBA)
			if cells[y][x] {
				assert.Equal(t, fill, px, "cell %d,%d", x, y)
			} else {
				assert.Zero(t, px.A, "cell %d,%d", x, y)
			}
		}
	}
}

func TestCells_Symmetric(t *testing.T) {
	t.Parallel()

	for _, seed := range []string{"", "a", "user-42", "长名字"} {
		cells, c := Cells(seed)
		for y := 0; y < Grid; y++ {
			for x := 0; x < Grid; x++ {
				assert.Equal(t, cells[y][x], cells[y][Grid-1-x], "seed %q row %d", seed, y)
			}
		}
		assert.EqualValues(t, 255, c.A)
	}
}

func TestHSL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, hsl(0, 100, 50))
	assert.Equal(t, color.NRGBA{0, 0, 255, 255}, hsl(240, 100, 50))
	assert.Equal(t, color.NRGBA{127, 127, 127, 255}, hsl(90, 0, 50))
}
