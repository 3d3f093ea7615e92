package types

import "fmt"

// SizeSpec 提供方支持的尺寸，或者 SizeAuto
type SizeSpec struct {
	Width  int
	Height int
}

// SizeAuto 交给提供方自行决定尺寸
var SizeAuto = SizeSpec{}

// SupportedSizes 提供方支持的尺寸，顺序即平局时的优先顺序
var SupportedSizes = []SizeSpec{
	{Width: 1024, Height: 1024},
	{Width: 1024, Height: 1536},
	{Width: 1536, Height: 1024},
}

// IsAuto 是否为 auto
func (s SizeSpec) IsAuto() bool {
	return s.Width == 0 || s.Height == 0
}

// String 返回提供方接受的尺寸字符串
func (s SizeSpec) String() string {
	if s.IsAuto() {
		return "auto"
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// 枚举取值
var (
	Qualities     = []string{"high", "medium", "low", "auto"}
	Backgrounds   = []string{"transparent", "opaque", "auto"}
	Moderations   = []string{"low", "auto"}
	OutputFormats = []string{"png", "jpeg", "webp"}
)

const (
	// DefaultOutputFormat 未指定格式时的文件扩展名
	DefaultOutputFormat = "png"
	MinCount            = 1
	MaxCount            = 10
)

// ImageGenerationOptions 调用方传入的生成选项，空字符串/nil 表示未指定
type ImageGenerationOptions struct {
	Size              *SizeSpec
	Quality           string
	Background        string
	Moderation        string
	OutputFormat      string
	OutputCompression *int
	Count             int
	FileNameBase      string
	SaveDirPath       string
}

// Extension 保存文件时使用的扩展名
func (o ImageGenerationOptions) Extension() string {
	for _, f := range OutputFormats {
		if f == o.OutputFormat {
			return f
		}
	}
	return DefaultOutputFormat
}

// TokenUsage 提供方返回的用量，缺失字段保持 nil
type TokenUsage struct {
	TotalTokens  *int `json:"totalTokens,omitempty"`
	InputTokens  *int `json:"inputTokens,omitempty"`
	OutputTokens *int `json:"outputTokens,omitempty"`
	TextTokens   *int `json:"textTokens,omitempty"`
	ImageTokens  *int `json:"imageTokens,omitempty"`
}

// DirectoryFallback 保存目录发生回退时的诊断信息
type DirectoryFallback struct {
	Requested string `json:"requested"`
	Used      string `json:"used"`
	Reason    string `json:"reason"`
}

// ImageGenerationResult 一次操作的最终结果
type ImageGenerationResult struct {
	Success      bool               `json:"success"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	SavedPaths   []string           `json:"savedPaths"`
	TokenUsage   *TokenUsage        `json:"tokenUsage,omitempty"`
	Fallback     *DirectoryFallback `json:"directoryFallback,omitempty"`
}

// Failure 构造失败结果
func Failure(err error) ImageGenerationResult {
	return ImageGenerationResult{
		Success:      false,
		ErrorMessage: err.Error(),
		SavedPaths:   []string{},
	}
}
