package mask

import (
	"fmt"
	"strings"

	"imagegen-mcp/internal/types"
)

// ParseShapes 将调用方传入的形状描述转换为 ShapeDescriptor
// 单个形状格式错误只会被跳过并记录在返回的错误列表中，不影响其余形状
func ParseShapes(raw []any) ([]types.ShapeDescriptor, []error) {
	shapes := make([]types.ShapeDescriptor, 0, len(raw))
	var problems []error
	for i, item := range raw {
		shape, err := parseShape(item)
		if err != nil {
			problems = append(problems, fmt.Errorf("mask_shapes[%d]: %w", i, err))
			continue
		}
		shapes = append(shapes, shape)
	}
	return shapes, problems
}

func parseShape(item any) (types.ShapeDescriptor, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return types.ShapeDescriptor{}, fmt.Errorf("shape must be an object")
	}
	kind, _ := m["type"].(string)

	switch types.ShapeKind(strings.ToLower(kind)) {
	case types.ShapeRectangle:
		vals, err := numbers(m, "x", "y", "width", "height")
		if err != nil {
			return types.ShapeDescriptor{}, err
		}
		if vals[2] <= 0 || vals[3] <= 0 {
			return types.ShapeDescriptor{}, fmt.Errorf("rectangle width and height must be positive")
		}
		return types.ShapeDescriptor{
			Kind: types.ShapeRectangle,
			X:    vals[0], Y: vals[1], Width: vals[2], Height: vals[3],
		}, nil

	case types.ShapeCircle:
		vals, err := numbers(m, "cx", "cy", "radius")
		if err != nil {
			return types.ShapeDescriptor{}, err
		}
		if vals[2] <= 0 {
			return types.ShapeDescriptor{}, fmt.Errorf("circle radius must be positive")
		}
		return types.ShapeDescriptor{
			Kind: types.ShapeCircle,
			CX:   vals[0], CY: vals[1], Radius: vals[2],
		}, nil

	case types.ShapePolygon:
		points, err := parsePoints(m["points"])
		if err != nil {
			return types.ShapeDescriptor{}, err
		}
		return types.ShapeDescriptor{Kind: types.ShapePolygon, Points: points}, nil

	default:
		return types.ShapeDescriptor{}, fmt.Errorf("unknown shape type %q", kind)
	}
}

// parsePoints 支持 [{x,y}] 和 [[x,y]] 两种写法，至少 3 个点
func parsePoints(raw any) ([]types.Point, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("polygon points must be an array")
	}
	if len(list) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 points, got %d", len(list))
	}

	points := make([]types.Point, 0, len(list))
	for i, p := range list {
		switch v := p.(type) {
		case map[string]any:
			vals, err := numbers(v, "x", "y")
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			points = append(points, types.Point{X: vals[0], Y: vals[1]})
		case []any:
			if len(v) != 2 {
				return nil, fmt.Errorf("point %d: expected [x, y]", i)
			}
			x, okX := number(v[0])
			y, okY := number(v[1])
			if !okX || !okY {
				return nil, fmt.Errorf("point %d: coordinates must be numbers", i)
			}
			points = append(points, types.Point{X: x, Y: y})
		default:
			return nil, fmt.Errorf("point %d: unsupported format", i)
		}
	}
	return points, nil
}

func numbers(m map[string]any, keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		raw, ok := m[k]
		if !ok {
			return nil, fmt.Errorf("missing field %q", k)
		}
		v, ok := number(raw)
		if !ok {
			return nil, fmt.Errorf("field %q must be a number", k)
		}
		out[i] = v
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
