package reconcile

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"
	"imagegen-mcp/internal/storage"
	"imagegen-mcp/internal/types"

	"go.uber.org/zap"
)

// Fetcher 下载远程图片
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// OutputSpec 保存位置和命名规则
type OutputSpec struct {
	SaveDir      string
	FileNameBase string
	OutputFormat string
	Count        int
}

// Reconciler 把提供方响应落盘为图片文件
//
// 失败粒度是整批：任何一张图片下载、解码或写入失败，整次调用失败，
// 已写入的文件会被删除，结果中不包含任何路径。
type Reconciler struct {
	fetcher Fetcher
	fs      storage.FileSystem
}

// NewReconciler 创建 Reconciler
func NewReconciler(fetcher Fetcher, fs storage.FileSystem) *Reconciler {
	return &Reconciler{fetcher: fetcher, fs: fs}
}

// Reconcile 处理原始响应并返回最终结果
func (r *Reconciler) Reconcile(ctx context.Context, raw []byte, spec OutputSpec) types.ImageGenerationResult {
	paths, usage, err := r.reconcile(ctx, raw, spec)
	if err != nil {
		logger.Error("处理图像响应失败", zap.Error(err))
		return types.Failure(err)
	}
	return types.ImageGenerationResult{
		Success:    true,
		SavedPaths: paths,
		TokenUsage: usage,
	}
}

func (r *Reconciler) reconcile(ctx context.Context, raw []byte, spec OutputSpec) ([]string, *types.TokenUsage, error) {
	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(resp.Items) != spec.Count {
		return nil, nil, errors.NewResponseShapeError(
			fmt.Sprintf("provider returned %d images, expected %d", len(resp.Items), spec.Count), nil)
	}

	// 先把所有图片都取到内存，全部成功后才开始写盘
	payloads := make([]storage.Payload, 0, len(resp.Items))
	for i, item := range resp.Items {
		data, err := r.materialize(ctx, item)
		if err != nil {
			return nil, nil, errors.NewResponseShapeError(fmt.Sprintf("image %d", i+1), err)
		}
		path, err := filepath.Abs(filepath.Join(spec.SaveDir, FileName(spec, i)))
		if err != nil {
			return nil, nil, errors.NewFileWriteError(FileName(spec, i), err)
		}
		payloads = append(payloads, storage.Payload{Path: path, Data: data})
	}

	paths, err := storage.SaveAll(r.fs, payloads)
	if err != nil {
		return nil, nil, err
	}
	return paths, resp.Usage, nil
}

func (r *Reconciler) materialize(ctx context.Context, item types.ImageItem) ([]byte, error) {
	switch item.Kind {
	case types.ItemURL:
		if r.fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for url results")
		}
		return r.fetcher.FetchBytes(ctx, item.URL)
	case types.ItemInline:
		data, err := DecodeBase64(item.Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", item.Field, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown item kind %d", item.Kind)
	}
}

// FileName {base}{-N 仅在 count>1 时}.{format}
func FileName(spec OutputSpec, index int) string {
	suffix := ""
	if spec.Count > 1 {
		suffix = fmt.Sprintf("-%d", index+1)
	}
	return fmt.Sprintf("%s%s.%s", spec.FileNameBase, suffix, spec.OutputFormat)
}

// DecodeBase64 兼容 data URL 前缀和无填充写法
func DecodeBase64(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ","); idx >= 0 {
			s = s[idx+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(s)
		if rawErr != nil {
			return nil, err
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("decoded image is empty")
	}
	return data, nil
}
