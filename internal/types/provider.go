package types

// ProviderRequest 发往图像接口的请求体
// 编辑接口使用 multipart 时同样由它生成表单字段
type ProviderRequest struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	N                 int    `json:"n"`
	Size              string `json:"size,omitempty"`
	Quality           string `json:"quality,omitempty"`
	Background        string `json:"background,omitempty"`
	Moderation        string `json:"moderation,omitempty"`
	OutputFormat      string `json:"output_format,omitempty"`
	OutputCompression *int   `json:"output_compression,omitempty"`
}

// ItemKind 响应条目的来源类型
type ItemKind int

const (
	// ItemURL 需要再下载的远程地址
	ItemURL ItemKind = iota + 1
	// ItemInline 内联的 base64 数据
	ItemInline
)

// ImageItem 解析后的单张图片
type ImageItem struct {
	Kind    ItemKind
	URL     string
	Field   string // 内联数据所在字段
	Encoded string
}

// ProviderResponse 解析后的图像接口响应
type ProviderResponse struct {
	Items []ImageItem
	Usage *TokenUsage
}

// ImageFile 上传给编辑接口的图片
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}
