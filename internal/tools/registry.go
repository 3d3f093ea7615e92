// Package tools 把图像服务注册为可按名称调用的工具
package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"imagegen-mcp/internal/logger"
	"imagegen-mcp/internal/options"
	"imagegen-mcp/internal/service"
	"imagegen-mcp/internal/types"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ParamType 参数的 JSON 类型
type ParamType string

const (
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
	TypeArray  ParamType = "array"
)

// Param 工具参数描述
type Param struct {
	Name        string         `json:"name"`
	Type        ParamType      `json:"type"`
	Description string         `json:"description"`
	Required    bool           `json:"required"`
	Enum        []string       `json:"enum,omitempty"`
	Items       map[string]any `json:"items,omitempty"`
}

// Outcome 工具调用结果
type Outcome interface {
	Text() string
	IsError() bool
	Images() int
}

// CallResult Dispatch 的返回值
type CallResult struct {
	Text    string
	IsError bool
	Images  int
}

// Handler 工具实现
type Handler func(ctx context.Context, args map[string]any) Outcome

// Tool 工具定义
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	handler     Handler
}

// Registry 工具注册表
type Registry struct {
	tools map[string]Tool
}

// NewRegistry 注册全部图像工具
func NewRegistry(svc *service.ImageService) *Registry {
	r := &Registry{tools: make(map[string]Tool)}

	r.add(Tool{
		Name:        string(service.OpGenerate),
		Description: "Generate images from a text prompt and save them to disk.",
		Params:      append([]Param{promptParam}, commonParams()...),
		handler: func(ctx context.Context, args map[string]any) Outcome {
			return svc.GenerateImage(ctx, args)
		},
	})

	r.add(Tool{
		Name:        string(service.OpEdit),
		Description: "Edit an existing image. Optionally restrict the edit area with a mask image or with mask_shapes (normalized rectangles, circles and polygons); the two are mutually exclusive.",
		Params: append([]Param{
			promptParam,
			{Name: options.ArgImagePath, Type: TypeString, Required: true, Description: "Path of the image to edit, absolute or relative to the working directory."},
			{Name: options.ArgMask, Type: TypeString, Description: "Path of a PNG mask; transparent or white areas are edited."},
			{
				Name:        options.ArgMaskShapes,
				Type:        TypeArray,
				Description: `Shapes marking the editable area, coordinates in [0,1]: {"type":"rectangle","x","y","width","height"}, {"type":"circle","cx","cy","radius"}, {"type":"polygon","points":[{"x","y"},...]}.`,
				Items:       map[string]any{"type": "object"},
			},
		}, commonParams()...),
		handler: func(ctx context.Context, args map[string]any) Outcome {
			return svc.EditImage(ctx, args)
		},
	})

	r.add(Tool{
		Name:        string(service.OpImageToImage),
		Description: "Create new images using an existing image as reference.",
		Params: append([]Param{
			{Name: options.ArgImagePath, Type: TypeString, Required: true, Description: "Path of the reference image."},
			promptParam,
		}, commonParams()...),
		handler: func(ctx context.Context, args map[string]any) Outcome {
			return svc.ImageToImage(ctx, args)
		},
	})

	r.add(Tool{
		Name:        string(service.OpMultiEdit),
		Description: "Combine or edit several reference images into new images.",
		Params: append([]Param{
			promptParam,
			{
				Name:        options.ArgImagePaths,
				Type:        TypeArray,
				Required:    true,
				Description: "Paths of the reference images.",
				Items:       map[string]any{"type": "string"},
			},
		}, commonParams()...),
		handler: func(ctx context.Context, args map[string]any) Outcome {
			return svc.MultiImageEdit(ctx, args)
		},
	})

	r.add(Tool{
		Name:        string(service.OpValidateKey),
		Description: "Check that the configured API key can reach the provider.",
		handler: func(ctx context.Context, _ map[string]any) Outcome {
			return svc.ValidateAPIKey(ctx)
		},
	})

	return r
}

var promptParam = Param{Name: options.ArgPrompt, Type: TypeString, Required: true, Description: "Text description of the desired image."}

func commonParams() []Param {
	sizes := append([]string{"auto"}, lo.Map(types.SupportedSizes, func(s types.SizeSpec, _ int) string {
		return s.String()
	})...)
	return []Param{
		{Name: options.ArgSize, Type: TypeString, Description: fmt.Sprintf("Image size; other WIDTHxHEIGHT values are mapped to the closest of %v.", sizes)},
		{Name: options.ArgQuality, Type: TypeString, Enum: types.Qualities, Description: "Rendering quality."},
		{Name: options.ArgBackground, Type: TypeString, Enum: types.Backgrounds, Description: "Background handling."},
		{Name: options.ArgModeration, Type: TypeString, Enum: types.Moderations, Description: "Moderation strictness."},
		{Name: options.ArgOutputFormat, Type: TypeString, Enum: types.OutputFormats, Description: "File format of the saved images."},
		{Name: options.ArgOutputCompression, Type: TypeNumber, Description: "Compression level 0-100, jpeg and webp only."},
		{Name: options.ArgCount, Type: TypeNumber, Description: fmt.Sprintf("Number of images, %d-%d.", types.MinCount, types.MaxCount)},
		{Name: options.ArgSaveDirPath, Type: TypeString, Description: "Directory for the saved images, absolute or relative to the working directory."},
		{Name: options.ArgFileName, Type: TypeString, Description: "Base file name without extension."},
	}
}

func (r *Registry) add(t Tool) {
	r.tools[t.Name] = t
}

// Tools 按名称排序的工具列表
func (r *Registry) Tools() []Tool {
	list := lo.Values(r.tools)
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Lookup 按名称取工具
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch 调用工具并返回文本结果，panic 也转换为带操作前缀的失败文本
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (res CallResult) {
	callID := uuid.NewString()
	log := logger.With(zap.String("call_id", callID), zap.String("tool", name))

	t, ok := r.tools[name]
	if !ok {
		log.Warn("未知工具")
		return CallResult{Text: fmt.Sprintf("Unknown tool: %s", name), IsError: true}
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("工具执行 panic",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			res = CallResult{Text: panicText(name, rec), IsError: true}
		}
	}()

	log.Debug("调用工具", zap.Strings("args", lo.Keys(args)))
	out := t.handler(ctx, args)
	return CallResult{Text: out.Text(), IsError: out.IsError(), Images: out.Images()}
}

func panicText(name string, rec any) string {
	if prefix, ok := service.FailurePrefix(service.Operation(name)); ok {
		return fmt.Sprintf("%sinternal error: %v", prefix, rec)
	}
	return fmt.Sprintf("Error running %s: internal error: %v", name, rec)
}
