package service

import (
	"fmt"
	"strings"

	"imagegen-mcp/internal/openai"
	"imagegen-mcp/internal/types"
)

// Operation 工具操作名
type Operation string

const (
	OpGenerate     Operation = "generate_image"
	OpEdit         Operation = "edit_image"
	OpImageToImage Operation = "image_to_image"
	OpMultiEdit    Operation = "multi_image_edit"
	OpValidateKey  Operation = "validate_api_key"
)

// 失败文本前缀
var failurePrefix = map[Operation]string{
	OpGenerate:     "Error generating image: ",
	OpEdit:         "Error editing image: ",
	OpImageToImage: "Error in image-to-image transformation: ",
	OpMultiEdit:    "Error editing multiple images: ",
	OpValidateKey:  "Error validating API key: ",
}

// FailurePrefix 操作失败文本的固定前缀
func FailurePrefix(op Operation) (string, bool) {
	p, ok := failurePrefix[op]
	return p, ok
}

var summary = map[Operation]string{
	OpGenerate:     "Image generated successfully",
	OpEdit:         "Image edited successfully",
	OpImageToImage: "Image-to-image transformation completed successfully",
	OpMultiEdit:    "Multiple images edited successfully",
}

// Report 一次图像操作的结果和用于展示的上下文
type Report struct {
	Operation Operation
	Prompt    string
	Inputs    []string
	Mask      string
	Warnings  []string
	Result    types.ImageGenerationResult
}

func (r Report) fail(err error) Report {
	r.Result = types.Failure(err)
	return r
}

// IsError 调用是否失败
func (r Report) IsError() bool {
	return !r.Result.Success
}

// Images 已保存的图片数量
func (r Report) Images() int {
	return len(r.Result.SavedPaths)
}

// Text 渲染给调用方的文本
func (r Report) Text() string {
	if !r.Result.Success {
		return failurePrefix[r.Operation] + r.Result.ErrorMessage
	}

	var b strings.Builder
	n := len(r.Result.SavedPaths)
	fmt.Fprintf(&b, "%s (%d image%s).\n", summary[r.Operation], n, plural(n))

	switch len(r.Inputs) {
	case 0:
	case 1:
		fmt.Fprintf(&b, "Input image: %s\n", r.Inputs[0])
	default:
		b.WriteString("Input images:\n")
		for i, p := range r.Inputs {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, p)
		}
	}
	if r.Mask != "" {
		fmt.Fprintf(&b, "Mask: %s\n", r.Mask)
	}
	fmt.Fprintf(&b, "Prompt: %s\n", r.Prompt)

	if u := r.Result.TokenUsage; u != nil {
		b.WriteString("Token usage:\n")
		writeTokens(&b, "total", u.TotalTokens)
		writeTokens(&b, "input", u.InputTokens)
		writeTokens(&b, "output", u.OutputTokens)
		writeTokens(&b, "text", u.TextTokens)
		writeTokens(&b, "image", u.ImageTokens)
	}

	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	if fb := r.Result.Fallback; fb != nil {
		fmt.Fprintf(&b, "Note: save directory %q was not usable (%s); images were saved to %s instead.\n",
			fb.Requested, fb.Reason, fb.Used)
	}

	b.WriteString("Saved to:\n")
	for i, p := range r.Result.SavedPaths {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeTokens(b *strings.Builder, label string, v *int) {
	if v != nil {
		fmt.Fprintf(b, "  %s: %d\n", label, *v)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// KeyReport 密钥检查结果
type KeyReport struct {
	Status openai.KeyStatus
	Err    error
}

// IsError 请求本身失败；密钥无效不算错误
func (r KeyReport) IsError() bool {
	return r.Err != nil
}

// Images 密钥检查不产生图片
func (KeyReport) Images() int { return 0 }

// Text 渲染给调用方的文本
func (r KeyReport) Text() string {
	if r.Err != nil {
		return failurePrefix[OpValidateKey] + r.Err.Error()
	}
	if !r.Status.Valid {
		msg := "API key is invalid or lacks access to the model listing endpoint."
		if r.Status.Message != "" {
			msg += " Provider said: " + r.Status.Message
		}
		return msg
	}
	return fmt.Sprintf("API key is valid. %d model%s available.", r.Status.ModelCount, plural(r.Status.ModelCount))
}
