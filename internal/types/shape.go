package types

// ShapeKind 蒙版形状类型
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapePolygon   ShapeKind = "polygon"
)

// Point 归一化坐标点
type Point struct {
	X float64
	Y float64
}

// ShapeDescriptor 归一化到 [0,1] 的几何形状，按 Kind 取对应字段
type ShapeDescriptor struct {
	Kind ShapeKind

	// rectangle
	X, Y, Width, Height float64

	// circle
	CX, CY, Radius float64

	// polygon
	Points []Point
}
