package mask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"imagegen-mcp/internal/types"

	"github.com/fogleman/gg"
)

// Rasterize 把归一化形状绘制成黑白蒙版 PNG：白色可编辑，黑色保留
// 形状按顺序以不透明白色覆盖，圆的半径按 min(width, height) 缩放
func Rasterize(shapes []types.ShapeDescriptor, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask dimensions %dx%d", width, height)
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)

	w, h := float64(width), float64(height)
	unit := math.Min(w, h)

	for _, s := range shapes {
		switch s.Kind {
		case types.ShapeRectangle:
			dc.DrawRectangle(s.X*w, s.Y*h, s.Width*w, s.Height*h)
		case types.ShapeCircle:
			dc.DrawCircle(s.CX*w, s.CY*h, s.Radius*unit)
		case types.ShapePolygon:
			dc.NewSubPath()
			for i, p := range s.Points {
				if i == 0 {
					dc.MoveTo(p.X*w, p.Y*h)
				} else {
					dc.LineTo(p.X*w, p.Y*h)
				}
			}
			dc.ClosePath()
		default:
			continue
		}
		dc.Fill()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, binarize(dc.Image())); err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}
	return buf.Bytes(), nil
}

// binarize 去掉抗锯齿产生的灰边
func binarize(src image.Image) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			if g.Y >= 128 {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
