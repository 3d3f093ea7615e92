package options

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/types"

	"github.com/samber/lo"
)

// 调用方参数名
const (
	ArgPrompt            = "prompt"
	ArgImagePath         = "imagePath"
	ArgImagePaths        = "imagePaths"
	ArgMask              = "mask"
	ArgMaskShapes        = "mask_shapes"
	ArgSize              = "size"
	ArgQuality           = "quality"
	ArgBackground        = "background"
	ArgModeration        = "moderation"
	ArgOutputFormat      = "output_format"
	ArgOutputCompression = "output_compression"
	ArgCount             = "count"
	ArgSaveDirPath       = "saveDirPath"
	ArgFileName          = "fileName"
)

// RequiredString 读取必填字符串参数
func RequiredString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", errors.NewInvalidInputError(fmt.Sprintf("%s is required", key), nil)
	}
	s, ok := raw.(string)
	if !ok {
		return "", errors.NewInvalidInputError(fmt.Sprintf("%s must be a string", key), nil)
	}
	if strings.TrimSpace(s) == "" {
		return "", errors.NewInvalidInputError(fmt.Sprintf("%s must not be empty", key), nil)
	}
	return s, nil
}

// OptionalString 读取可选字符串参数，类型不对时按未提供处理
func OptionalString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// OptionalStringStrict 读取可选字符串参数，提供了但不是字符串时报错
func OptionalStringStrict(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", errors.NewInvalidInputError(fmt.Sprintf("%s must be a string", key), nil)
	}
	return strings.TrimSpace(s), nil
}

// RequiredStringSlice 读取必填的非空字符串数组
func RequiredStringSlice(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("%s is required", key), nil)
	}

	var out []string
	switch v := raw.(type) {
	case []string:
		out = v
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, errors.NewInvalidInputError(fmt.Sprintf("%s[%d] must be a non-empty string", key, i), nil)
			}
			out = append(out, s)
		}
	default:
		return nil, errors.NewInvalidInputError(fmt.Sprintf("%s must be an array of strings", key), nil)
	}

	if len(out) == 0 {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("%s must contain at least one path", key), nil)
	}
	return out, nil
}

// OptionalList 读取可选数组参数
func OptionalList(args map[string]any, key string) ([]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("%s must be an array", key), nil)
	}
	return list, nil
}

// ParseOptions 从调用参数中提取生成选项
// 未识别的字段忽略；defaultBase 用于未指定 fileName 时的文件名前缀
func ParseOptions(args map[string]any, defaultBase string, now time.Time) (types.ImageGenerationOptions, error) {
	opts := types.ImageGenerationOptions{
		Quality:      OptionalString(args, ArgQuality),
		Background:   OptionalString(args, ArgBackground),
		Moderation:   OptionalString(args, ArgModeration),
		OutputFormat: strings.ToLower(OptionalString(args, ArgOutputFormat)),
		SaveDirPath:  OptionalString(args, ArgSaveDirPath),
		Count:        types.MinCount,
	}

	if raw, ok := args[ArgSize]; ok && raw != nil {
		s, _ := raw.(string)
		size := NormalizeSize(s)
		opts.Size = &size
	}

	if raw, ok := args[ArgCount]; ok && raw != nil {
		n, ok := integer(raw)
		if !ok || n < types.MinCount || n > types.MaxCount {
			return opts, errors.NewInvalidInputError(
				fmt.Sprintf("count must be an integer between %d and %d", types.MinCount, types.MaxCount), nil)
		}
		opts.Count = n
	}

	// 非整数的压缩率直接忽略
	if raw, ok := args[ArgOutputCompression]; ok && raw != nil {
		if n, ok := integer(raw); ok {
			opts.OutputCompression = &n
		}
	}

	opts.FileNameBase = fileNameBase(OptionalString(args, ArgFileName), defaultBase, now)
	return opts, nil
}

// fileNameBase 只保留文件名部分，并去掉与输出格式重复的扩展名
func fileNameBase(name, defaultBase string, now time.Time) string {
	if name != "" {
		base := filepath.Base(name)
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
		if lo.Contains(append([]string{"jpg"}, types.OutputFormats...), ext) {
			base = strings.TrimSuffix(base, filepath.Ext(base))
		}
		if base != "" && base != "." && base != string(filepath.Separator) {
			return base
		}
	}
	return fmt.Sprintf("%s-%s", defaultBase, now.Format("20060102-150405"))
}

// integer 接受 JSON 数字、整型和数字字符串，小数部分必须为 0
func integer(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
