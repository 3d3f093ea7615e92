package options

import (
	"imagegen-mcp/internal/types"

	"github.com/samber/lo"
)

// compressibleFormats 支持 output_compression 的格式
var compressibleFormats = []string{"jpeg", "webp"}

// BuildRequest 根据归一化后的选项组装请求体
// 不在允许集合内的取值直接丢弃，交给提供方使用默认值
func BuildRequest(prompt, model string, opts types.ImageGenerationOptions) types.ProviderRequest {
	req := types.ProviderRequest{
		Model:  model,
		Prompt: prompt,
		N:      opts.Count,
	}

	if opts.Size != nil && (opts.Size.IsAuto() || lo.Contains(types.SupportedSizes, *opts.Size)) {
		req.Size = opts.Size.String()
	}
	req.Quality = allowed(opts.Quality, types.Qualities)
	req.Background = allowed(opts.Background, types.Backgrounds)
	req.Moderation = allowed(opts.Moderation, types.Moderations)
	req.OutputFormat = allowed(opts.OutputFormat, types.OutputFormats)

	if c := opts.OutputCompression; c != nil && *c >= 0 && *c <= 100 &&
		lo.Contains(compressibleFormats, req.OutputFormat) {
		v := *c
		req.OutputCompression = &v
	}

	return req
}

func allowed(value string, set []string) string {
	if value != "" && lo.Contains(set, value) {
		return value
	}
	return ""
}

// FormFields 编辑接口的 multipart 文本字段
func FormFields(req types.ProviderRequest) map[string]string {
	fields := map[string]string{
		"model":  req.Model,
		"prompt": req.Prompt,
		"n":      itoa(req.N),
	}
	optional := map[string]string{
		"size":          req.Size,
		"quality":       req.Quality,
		"background":    req.Background,
		"moderation":    req.Moderation,
		"output_format": req.OutputFormat,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	if req.OutputCompression != nil {
		fields["output_compression"] = itoa(*req.OutputCompression)
	}
	return fields
}
