package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"

	"go.uber.org/zap"
)

// Resolution 保存目录解析结果
type Resolution struct {
	// Dir 绝对路径，解析时已确认存在且可写
	Dir       string
	Requested string
	FellBack  bool
	Reason    string
}

// Resolver 将调用方给出的目录解析为可写的绝对路径
//
// fallback 策略下，目录无法创建或不可写时退回默认目录（默认目录为空则为 cwd），
// 并通过日志和 Resolution.FellBack 暴露；strict 策略下直接返回错误。
type Resolver struct {
	fs         FileSystem
	defaultDir string
	policy     string
}

// NewResolver 创建目录解析器
func NewResolver(fs FileSystem, defaultDir, policy string) *Resolver {
	if policy == "" {
		policy = config.DirPolicyFallback
	}
	return &Resolver{fs: fs, defaultDir: defaultDir, policy: policy}
}

// Resolve 解析 requested；为空时使用默认目录
func (r *Resolver) Resolve(requested, cwd string) (Resolution, error) {
	fallback := absJoin(cwd, r.defaultDir)
	if requested == "" {
		if err := r.prepare(fallback); err != nil {
			return Resolution{}, errors.NewSaveDirectoryError(fallback, err)
		}
		return Resolution{Dir: fallback}, nil
	}

	target := absJoin(cwd, requested)
	err := r.prepare(target)
	if err == nil {
		return Resolution{Dir: target, Requested: requested}, nil
	}

	if r.policy == config.DirPolicyStrict {
		return Resolution{}, errors.NewSaveDirectoryError(target, err)
	}

	logger.Warn("保存目录不可用，回退到默认目录",
		zap.String("requested", target),
		zap.String("fallback", fallback),
		zap.Error(err),
	)
	if ferr := r.prepare(fallback); ferr != nil {
		return Resolution{}, errors.NewSaveDirectoryError(fallback, ferr)
	}
	return Resolution{
		Dir:       fallback,
		Requested: requested,
		FellBack:  true,
		Reason:    err.Error(),
	}, nil
}

// prepare 按需创建目录并确认可写
func (r *Resolver) prepare(dir string) error {
	info, err := r.fs.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := r.fs.MkdirAll(dir); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s exists and is not a directory", dir)
	}

	if err := r.fs.CheckWritable(dir); err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	return nil
}

// absJoin 相对路径基于 cwd 解析，结果总是干净的绝对路径
func absJoin(cwd, p string) string {
	if p == "" {
		p = cwd
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
