package storage

import (
	"fmt"
	"path/filepath"

	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Payload 待写入的一张图片
type Payload struct {
	Path string
	Data []byte
}

// SaveAll 顺序写入所有图片，每个文件写完都会确认存在且非空
// 任意一张失败时删除本批已写入的文件，返回的路径只包含确认成功的文件
func SaveAll(fs FileSystem, payloads []Payload) ([]string, error) {
	saved := make([]string, 0, len(payloads))
	for _, p := range payloads {
		if err := saveOne(fs, p); err != nil {
			rollback(fs, saved)
			return nil, err
		}
		saved = append(saved, p.Path)
		logger.Debug("图片已保存",
			zap.String("path", p.Path),
			zap.Int("bytes", len(p.Data)),
			zap.String("xxhash", fmt.Sprintf("%016x", xxhash.Sum64(p.Data))),
		)
	}
	return saved, nil
}

func saveOne(fs FileSystem, p Payload) error {
	if !filepath.IsAbs(p.Path) {
		return errors.NewFileWriteError(p.Path, fmt.Errorf("path is not absolute"))
	}
	if len(p.Data) == 0 {
		return errors.NewFileWriteError(p.Path, fmt.Errorf("empty image data"))
	}
	if err := fs.WriteFileAtomic(p.Path, p.Data); err != nil {
		return errors.NewFileWriteError(p.Path, err)
	}
	info, err := fs.Stat(p.Path)
	if err != nil {
		return errors.NewFileWriteError(p.Path, err)
	}
	if info.Size() == 0 {
		return errors.NewFileWriteError(p.Path, fmt.Errorf("file is empty after write"))
	}
	return nil
}

func rollback(fs FileSystem, paths []string) {
	for _, p := range paths {
		if err := fs.Remove(p); err != nil {
			logger.Warn("回滚删除文件失败", zap.String("path", p), zap.Error(err))
		}
	}
}
