package mask

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"imagegen-mcp/internal/storage"
	"imagegen-mcp/internal/types"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeGray(t *testing.T, data []byte) *image.Gray {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	g, ok := img.(*image.Gray)
	require.True(t, ok, "mask should be a grayscale PNG, got %T", img)
	return g
}

func countWhite(g *image.Gray) int {
	n := 0
	for _, v := range g.Pix {
		if v == 255 {
			n++
		}
	}
	return n
}

func TestRasterize_NoShapesIsAllBlack(t *testing.T) {
	data, err := Rasterize(nil, 40, 30)
	require.NoError(t, err)

	g := decodeGray(t, data)
	assert.Equal(t, 40, g.Bounds().Dx())
	assert.Equal(t, 30, g.Bounds().Dy())
	assert.Zero(t, countWhite(g))
}

func TestRasterize_FullRectangleIsAllWhite(t *testing.T) {
	data, err := Rasterize([]types.ShapeDescriptor{
		{Kind: types.ShapeRectangle, X: 0, Y: 0, Width: 1, Height: 1},
	}, 64, 48)
	require.NoError(t, err)

	g := decodeGray(t, data)
	assert.Equal(t, 64*48, countWhite(g))
}

func TestRasterize_OnlyBlackOrWhite(t *testing.T) {
	data, err := Rasterize([]types.ShapeDescriptor{
		{Kind: types.ShapeCircle, CX: 0.5, CY: 0.5, Radius: 0.3},
		{Kind: types.ShapePolygon, Points: []types.Point{{X: 0, Y: 0}, {X: 0.4, Y: 0}, {X: 0, Y: 0.4}}},
	}, 100, 80)
	require.NoError(t, err)

	for _, v := range decodeGray(t, data).Pix {
		assert.True(t, v == 0 || v == 255, "unexpected gray level %d", v)
	}
}

func TestRasterize_RectangleScalesByAxis(t *testing.T) {
	data, err := Rasterize([]types.ShapeDescriptor{
		{Kind: types.ShapeRectangle, X: 0.5, Y: 0, Width: 0.5, Height: 0.5},
	}, 200, 100)
	require.NoError(t, err)

	g := decodeGray(t, data)
	assert.Equal(t, color.Gray{Y: 255}, g.GrayAt(150, 25))
	assert.Equal(t, color.Gray{Y: 0}, g.GrayAt(50, 25))
	assert.Equal(t, color.Gray{Y: 0}, g.GrayAt(150, 75))
	assert.Equal(t, 100*50, countWhite(g))
}

func TestRasterize_CircleUsesShorterSide(t *testing.T) {
	// 200x100 的画布上半径 0.5 对应 50 像素，而不是 100
	data, err := Rasterize([]types.ShapeDescriptor{
		{Kind: types.ShapeCircle, CX: 0.5, CY: 0.5, Radius: 0.5},
	}, 200, 100)
	require.NoError(t, err)

	g := decodeGray(t, data)
	assert.Equal(t, color.Gray{Y: 255}, g.GrayAt(100, 50))
	assert.Equal(t, color.Gray{Y: 255}, g.GrayAt(140, 50))
	assert.Equal(t, color.Gray{Y: 0}, g.GrayAt(160, 50))
	assert.Equal(t, color.Gray{Y: 0}, g.GrayAt(5, 50))
}

func TestRasterize_InvalidDimensions(t *testing.T) {
	_, err := Rasterize(nil, 0, 10)
	assert.Error(t, err)
}

func TestParseShapes(t *testing.T) {
	shapes, problems := ParseShapes([]any{
		map[string]any{"type": "rectangle", "x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4},
		map[string]any{"type": "circle", "cx": 0.5, "cy": 0.5, "radius": 0.25},
		map[string]any{"type": "polygon", "points": []any{
			map[string]any{"x": 0.0, "y": 0.0},
			map[string]any{"x": 1.0, "y": 0.0},
			map[string]any{"x": 0.5, "y": 1.0},
		}},
		map[string]any{"type": "POLYGON", "points": []any{[]any{0.0, 0.0}, []any{1.0, 0.0}, []any{1.0, 1.0}}},
	})

	assert.Empty(t, problems)
	require.Len(t, shapes, 4)
	assert.Equal(t, types.ShapeDescriptor{Kind: types.ShapeRectangle, X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}, shapes[0])
	assert.Equal(t, types.ShapeCircle, shapes[1].Kind)
	assert.Equal(t, 0.25, shapes[1].Radius)
	assert.Len(t, shapes[2].Points, 3)
	assert.Equal(t, types.Point{X: 1, Y: 1}, shapes[3].Points[2])
}

func TestParseShapes_SkipsMalformedIndividually(t *testing.T) {
	shapes, problems := ParseShapes([]any{
		"not an object",
		map[string]any{"type": "rectangle", "x": 0.1, "y": 0.2, "width": 0.3},
		map[string]any{"type": "circle", "cx": "0.5", "cy": 0.5, "radius": 0.2},
		map[string]any{"type": "hexagon"},
		map[string]any{"type": "polygon", "points": []any{[]any{0.0, 0.0}, []any{1.0, 1.0}}},
		map[string]any{"type": "circle", "cx": 0.5, "cy": 0.5, "radius": 0.0},
		map[string]any{"type": "rectangle", "x": 0.0, "y": 0.0, "width": 0.5, "height": 0.5},
	})

	require.Len(t, shapes, 1)
	assert.Equal(t, 0.5, shapes[0].Width)
	require.Len(t, problems, 6)
	assert.Contains(t, problems[1].Error(), "mask_shapes[1]")
	assert.Contains(t, problems[1].Error(), "height")
}

func TestMalformedShapeMatchesOmittedShape(t *testing.T) {
	good := map[string]any{"type": "circle", "cx": 0.3, "cy": 0.3, "radius": 0.2}
	bad := map[string]any{"type": "rectangle", "x": 0.5, "y": 0.5}

	withBad, _ := ParseShapes([]any{good, bad})
	without, _ := ParseShapes([]any{good})

	a, err := Rasterize(withBad, 50, 50)
	require.NoError(t, err)
	b, err := Rasterize(without, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestImageSizeAndWriteTemp(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 33, 21))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	w, h, err := ImageSize(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 33, w)
	assert.Equal(t, 21, h)

	_, _, err = ImageSize([]byte("not an image"))
	assert.Error(t, err)

	fs := storage.NewOSFileSystem()
	tmp, err := WriteTemp(fs, buf.Bytes())
	require.NoError(t, err)
	defer func() { _ = fs.Remove(tmp) }()
	assert.FileExists(t, tmp)
	assert.Equal(t, ".png", filepath.Ext(tmp))
}

// withOrientation 在 SOI 之后插入只含 Orientation 标签的 APP1 Exif 段
func withOrientation(t *testing.T, jpeg []byte, orientation byte) []byte {
	t.Helper()
	require.True(t, len(jpeg) > 2 && jpeg[0] == 0xFF && jpeg[1] == 0xD8)

	app1 := []byte{
		0xFF, 0xE1, 0x00, 0x22,
		'E', 'x', 'i', 'f', 0x00, 0x00,
		'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08,
		0x00, 0x01,
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, orientation, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	out := append([]byte{}, jpeg[:2]...)
	out = append(out, app1...)
	return append(out, jpeg[2:]...)
}

func TestImageSize_IgnoresExifOrientation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(40, 20, color.White), imaging.JPEG))
	rotated := withOrientation(t, buf.Bytes(), 6)

	// 确认样本确实带旋转标记：按 EXIF 校正后是 20x40
	oriented, err := imaging.Decode(bytes.NewReader(rotated), imaging.AutoOrientation(true))
	require.NoError(t, err)
	require.Equal(t, image.Pt(20, 40), oriented.Bounds().Size())

	w, h, err := ImageSize(rotated)
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)

	data, err := Rasterize(nil, w, h)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 20), decodeGray(t, data).Bounds().Size())
}
