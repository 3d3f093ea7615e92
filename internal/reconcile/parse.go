package reconcile

import (
	"fmt"
	"strings"

	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/types"

	"github.com/bytedance/sonic"
)

// inlineFields 内联 base64 数据可能出现的字段，按优先级排列
var inlineFields = []string{"b64_json", "image", "image_base64", "base64"}

type rawResponse struct {
	Data  []any     `json:"data"`
	Usage *rawUsage `json:"usage"`
}

type rawUsage struct {
	TotalTokens        *int `json:"total_tokens"`
	InputTokens        *int `json:"input_tokens"`
	OutputTokens       *int `json:"output_tokens"`
	InputTokensDetails *struct {
		TextTokens  *int `json:"text_tokens"`
		ImageTokens *int `json:"image_tokens"`
	} `json:"input_tokens_details"`
}

// ParseResponse 把形状不固定的响应解析为类型明确的中间结构
// 信任哪个字段的策略只在这里决定：url 优先，其次按 inlineFields 顺序
func ParseResponse(raw []byte) (*types.ProviderResponse, error) {
	var resp rawResponse
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return nil, errors.NewResponseShapeError("provider response is not valid JSON", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.NewResponseShapeError("no image data returned by provider", nil)
	}

	items := make([]types.ImageItem, 0, len(resp.Data))
	for i, entry := range resp.Data {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, errors.NewResponseShapeError(fmt.Sprintf("image %d: unexpected item format", i+1), nil)
		}
		item, err := ParseItem(m)
		if err != nil {
			return nil, errors.NewResponseShapeError(fmt.Sprintf("image %d", i+1), err)
		}
		items = append(items, item)
	}

	return &types.ProviderResponse{
		Items: items,
		Usage: mapUsage(resp.Usage),
	}, nil
}

// ParseItem 识别单个条目的来源
func ParseItem(m map[string]any) (types.ImageItem, error) {
	if u, ok := m["url"].(string); ok && strings.TrimSpace(u) != "" {
		return types.ImageItem{Kind: types.ItemURL, URL: u}, nil
	}
	for _, field := range inlineFields {
		if s, ok := m[field].(string); ok && strings.TrimSpace(s) != "" {
			return types.ImageItem{Kind: types.ItemInline, Field: field, Encoded: s}, nil
		}
	}
	return types.ImageItem{}, fmt.Errorf("data not found in any recognized field (url, %s)", strings.Join(inlineFields, ", "))
}

// mapUsage 逐字段映射，缺失字段保持 nil 而不是 0
func mapUsage(u *rawUsage) *types.TokenUsage {
	if u == nil {
		return nil
	}
	usage := &types.TokenUsage{
		TotalTokens:  u.TotalTokens,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
	if d := u.InputTokensDetails; d != nil {
		usage.TextTokens = d.TextTokens
		usage.ImageTokens = d.ImageTokens
	}
	return usage
}
