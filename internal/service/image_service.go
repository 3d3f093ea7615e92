package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"
	"imagegen-mcp/internal/mask"
	"imagegen-mcp/internal/metrics"
	"imagegen-mcp/internal/openai"
	"imagegen-mcp/internal/options"
	"imagegen-mcp/internal/reconcile"
	"imagegen-mcp/internal/storage"
	"imagegen-mcp/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Provider 图像接口
type Provider interface {
	Model() string
	CreateImage(ctx context.Context, req types.ProviderRequest) ([]byte, error)
	EditImage(ctx context.Context, req types.ProviderRequest, image types.ImageFile, mask *types.ImageFile) ([]byte, error)
	EditImages(ctx context.Context, req types.ProviderRequest, images []types.ImageFile) ([]byte, error)
	ValidateKey(ctx context.Context) (openai.KeyStatus, error)
}

// Deps 服务依赖，全部显式注入
type Deps struct {
	Provider Provider
	Fetcher  reconcile.Fetcher
	FS       storage.FileSystem
	Resolver *storage.Resolver
	Metrics  *metrics.Collector

	// Getwd 和 Now 为空时使用 os.Getwd 和 time.Now
	Getwd func() (string, error)
	Now   func() time.Time
}

// ImageService 实现五个工具操作
//
// 每次调用独立完成：参数校验 → 保存目录解析 → 上游请求 → 响应落盘，
// 不重试，任何一步失败都只产生一个失败结果。
type ImageService struct {
	provider   Provider
	fs         storage.FileSystem
	resolver   *storage.Resolver
	reconciler *reconcile.Reconciler
	metrics    *metrics.Collector
	getwd      func() (string, error)
	now        func() time.Time
}

// NewImageService 创建图像服务实例
func NewImageService(deps Deps) *ImageService {
	s := &ImageService{
		provider:   deps.Provider,
		fs:         deps.FS,
		resolver:   deps.Resolver,
		reconciler: reconcile.NewReconciler(deps.Fetcher, deps.FS),
		metrics:    deps.Metrics,
		getwd:      deps.Getwd,
		now:        deps.Now,
	}
	if s.getwd == nil {
		s.getwd = os.Getwd
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GenerateImage 文生图
func (s *ImageService) GenerateImage(ctx context.Context, args map[string]any) Report {
	rep := Report{Operation: OpGenerate}
	defer s.observe(&rep, s.now())

	prompt, err := options.RequiredString(args, options.ArgPrompt)
	if err != nil {
		return rep.fail(err)
	}
	rep.Prompt = prompt

	opts, err := options.ParseOptions(args, "generated-image", s.now())
	if err != nil {
		return rep.fail(err)
	}

	dir, err := s.resolveSaveDir(opts.SaveDirPath)
	if err != nil {
		return rep.fail(err)
	}

	req := options.BuildRequest(prompt, s.provider.Model(), opts)
	raw, err := s.provider.CreateImage(ctx, req)
	if err != nil {
		return rep.fail(err)
	}

	rep.Result = s.finish(ctx, raw, dir, opts)
	return rep
}

// EditImage 单图编辑；mask 与 mask_shapes 互斥
func (s *ImageService) EditImage(ctx context.Context, args map[string]any) Report {
	rep := Report{Operation: OpEdit}
	defer s.observe(&rep, s.now())

	prompt, err := options.RequiredString(args, options.ArgPrompt)
	if err != nil {
		return rep.fail(err)
	}
	rep.Prompt = prompt

	imageArg, err := options.RequiredString(args, options.ArgImagePath)
	if err != nil {
		return rep.fail(err)
	}
	maskArg, err := options.OptionalStringStrict(args, options.ArgMask)
	if err != nil {
		return rep.fail(err)
	}
	rawShapes, err := options.OptionalList(args, options.ArgMaskShapes)
	if err != nil {
		return rep.fail(err)
	}
	if maskArg != "" && len(rawShapes) > 0 {
		return rep.fail(errors.NewConflictingArgsError(options.ArgMask, options.ArgMaskShapes))
	}

	imagePath, err := s.resolveInput(imageArg)
	if err != nil {
		return rep.fail(err)
	}
	rep.Inputs = []string{imagePath}

	var maskPath string
	if maskArg != "" {
		if maskPath, err = s.resolveInput(maskArg); err != nil {
			return rep.fail(err)
		}
		rep.Mask = maskPath
	}

	opts, err := options.ParseOptions(args, "edited-image", s.now())
	if err != nil {
		return rep.fail(err)
	}

	dir, err := s.resolveSaveDir(opts.SaveDirPath)
	if err != nil {
		return rep.fail(err)
	}

	image, err := s.loadImage(imagePath)
	if err != nil {
		return rep.fail(err)
	}

	var maskFile *types.ImageFile
	switch {
	case maskPath != "":
		f, err := s.loadImage(maskPath)
		if err != nil {
			return rep.fail(err)
		}
		maskFile = &f
	case len(rawShapes) > 0:
		f, warnings, err := s.renderMask(image, rawShapes)
		if err != nil {
			return rep.fail(err)
		}
		rep.Warnings = warnings
		rep.Mask = fmt.Sprintf("%d shape(s) rasterized", len(rawShapes)-len(warnings))
		maskFile = &f
	}

	req := options.BuildRequest(prompt, s.provider.Model(), opts)
	raw, err := s.provider.EditImage(ctx, req, image, maskFile)
	if err != nil {
		return rep.fail(err)
	}

	rep.Result = s.finish(ctx, raw, dir, opts)
	return rep
}

// ImageToImage 以一张图片为参考生成新图片
func (s *ImageService) ImageToImage(ctx context.Context, args map[string]any) Report {
	rep := Report{Operation: OpImageToImage}
	defer s.observe(&rep, s.now())

	imageArg, err := options.RequiredString(args, options.ArgImagePath)
	if err != nil {
		return rep.fail(err)
	}
	prompt, err := options.RequiredString(args, options.ArgPrompt)
	if err != nil {
		return rep.fail(err)
	}
	rep.Prompt = prompt

	imagePath, err := s.resolveInput(imageArg)
	if err != nil {
		return rep.fail(err)
	}
	rep.Inputs = []string{imagePath}

	opts, err := options.ParseOptions(args, "image-to-image", s.now())
	if err != nil {
		return rep.fail(err)
	}

	dir, err := s.resolveSaveDir(opts.SaveDirPath)
	if err != nil {
		return rep.fail(err)
	}

	image, err := s.loadImage(imagePath)
	if err != nil {
		return rep.fail(err)
	}

	req := options.BuildRequest(prompt, s.provider.Model(), opts)
	raw, err := s.provider.EditImage(ctx, req, image, nil)
	if err != nil {
		return rep.fail(err)
	}

	rep.Result = s.finish(ctx, raw, dir, opts)
	return rep
}

// MultiImageEdit 多张参考图片合成编辑
func (s *ImageService) MultiImageEdit(ctx context.Context, args map[string]any) Report {
	rep := Report{Operation: OpMultiEdit}
	defer s.observe(&rep, s.now())

	prompt, err := options.RequiredString(args, options.ArgPrompt)
	if err != nil {
		return rep.fail(err)
	}
	rep.Prompt = prompt

	pathArgs, err := options.RequiredStringSlice(args, options.ArgImagePaths)
	if err != nil {
		return rep.fail(err)
	}

	paths := make([]string, 0, len(pathArgs))
	for _, p := range pathArgs {
		abs, err := s.resolveInput(p)
		if err != nil {
			return rep.fail(err)
		}
		paths = append(paths, abs)
	}
	rep.Inputs = paths

	opts, err := options.ParseOptions(args, "multi-edit", s.now())
	if err != nil {
		return rep.fail(err)
	}

	dir, err := s.resolveSaveDir(opts.SaveDirPath)
	if err != nil {
		return rep.fail(err)
	}

	images := make([]types.ImageFile, 0, len(paths))
	for _, p := range paths {
		f, err := s.loadImage(p)
		if err != nil {
			return rep.fail(err)
		}
		images = append(images, f)
	}

	req := options.BuildRequest(prompt, s.provider.Model(), opts)
	raw, err := s.provider.EditImages(ctx, req, images)
	if err != nil {
		return rep.fail(err)
	}

	rep.Result = s.finish(ctx, raw, dir, opts)
	return rep
}

// ValidateAPIKey 检查密钥能否访问模型列表
func (s *ImageService) ValidateAPIKey(ctx context.Context) KeyReport {
	start := s.now()
	status, err := s.provider.ValidateKey(ctx)
	s.metrics.ObserveOperation(string(OpValidateKey), err == nil, s.now().Sub(start), 0)
	if err != nil {
		logger.Error("检查 API 密钥失败", zap.Error(err))
		return KeyReport{Err: err}
	}
	return KeyReport{Status: status}
}

// finish 解析响应并落盘，附带目录回退诊断
func (s *ImageService) finish(ctx context.Context, raw []byte, dir storage.Resolution, opts types.ImageGenerationOptions) types.ImageGenerationResult {
	result := s.reconciler.Reconcile(ctx, raw, reconcile.OutputSpec{
		SaveDir:      dir.Dir,
		FileNameBase: opts.FileNameBase,
		OutputFormat: opts.Extension(),
		Count:        opts.Count,
	})
	if result.Success && dir.FellBack {
		result.Fallback = &types.DirectoryFallback{
			Requested: dir.Requested,
			Used:      dir.Dir,
			Reason:    dir.Reason,
		}
	}
	return result
}

func (s *ImageService) resolveSaveDir(requested string) (storage.Resolution, error) {
	cwd, err := s.getwd()
	if err != nil {
		return storage.Resolution{}, errors.NewInternalError(fmt.Errorf("get working directory: %w", err))
	}
	res, err := s.resolver.Resolve(requested, cwd)
	if err != nil {
		return storage.Resolution{}, err
	}
	if res.FellBack {
		s.metrics.DirectoryFallback()
	}
	return res, nil
}

// resolveInput 把调用方给出的输入路径转为绝对路径并确认文件存在
func (s *ImageService) resolveInput(p string) (string, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		cwd, err := s.getwd()
		if err != nil {
			return "", errors.NewInternalError(fmt.Errorf("get working directory: %w", err))
		}
		abs = filepath.Join(cwd, p)
	}
	abs = filepath.Clean(abs)

	info, err := s.fs.Stat(abs)
	if err != nil {
		return "", errors.NewFileNotFoundError(abs, err)
	}
	if info.IsDir() {
		return "", errors.NewInvalidInputError(fmt.Sprintf("%s is a directory, expected an image file", abs), nil)
	}
	return abs, nil
}

func (s *ImageService) loadImage(path string) (types.ImageFile, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return types.ImageFile{}, errors.NewFileNotFoundError(path, err)
	}
	return types.ImageFile{Name: filepath.Base(path), Data: data}, nil
}

// renderMask 按上传图片的像素尺寸栅格化形状，经临时文件读回后删除临时文件
func (s *ImageService) renderMask(base types.ImageFile, rawShapes []any) (types.ImageFile, []string, error) {
	shapes, problems := mask.ParseShapes(rawShapes)
	warnings := make([]string, 0, len(problems))
	for _, p := range problems {
		logger.Warn("跳过无效的蒙版形状", zap.Error(p))
		warnings = append(warnings, p.Error())
	}

	width, height, err := mask.ImageSize(base.Data)
	if err != nil {
		return types.ImageFile{}, warnings, errors.NewMaskRenderError(err)
	}
	png, err := mask.Rasterize(shapes, width, height)
	if err != nil {
		return types.ImageFile{}, warnings, errors.NewMaskRenderError(err)
	}

	tmp, err := mask.WriteTemp(s.fs, png)
	if err != nil {
		return types.ImageFile{}, warnings, errors.NewMaskRenderError(err)
	}
	defer func() {
		if err := s.fs.Remove(tmp); err != nil {
			logger.Warn("删除临时蒙版失败", zap.String("path", tmp), zap.Error(err))
		}
	}()

	data, err := s.fs.ReadFile(tmp)
	if err != nil {
		return types.ImageFile{}, warnings, errors.NewMaskRenderError(err)
	}
	return types.ImageFile{Name: "mask-" + uuid.NewString()[:8] + ".png", ContentType: "image/png", Data: data}, warnings, nil
}

func (s *ImageService) observe(rep *Report, start time.Time) {
	duration := s.now().Sub(start)
	s.metrics.ObserveOperation(string(rep.Operation), rep.Result.Success, duration, len(rep.Result.SavedPaths))
	if rep.Result.Success {
		s.metrics.AddTokens(rep.Result.TokenUsage)
		logger.Info("操作完成",
			zap.String("operation", string(rep.Operation)),
			zap.Int("images", len(rep.Result.SavedPaths)),
			zap.Duration("latency", duration),
		)
	}
}
