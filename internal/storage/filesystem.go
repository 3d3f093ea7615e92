package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// FileSystem 本地文件系统抽象，便于在测试中替换
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	MkdirAll(path string) error
	CheckWritable(dir string) error
	ReadFile(path string) ([]byte, error)
	WriteFileAtomic(path string, data []byte) error
	Remove(path string) error
	CreateTemp(pattern string, data []byte) (string, error)
}

type osFileSystem struct{}

// NewOSFileSystem 基于 os 包的实现
func NewOSFileSystem() FileSystem {
	return &osFileSystem{}
}

func (osFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (osFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// CheckWritable 写入并删除一个探测文件来确认目录可写
func (osFileSystem) CheckWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".write-probe-"+uuid.NewString())
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(probe)
}

func (osFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFileAtomic 先写临时文件再 rename，避免留下写了一半的图片
func (osFileSystem) WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, ".tmp-"+filepath.Base(path)+"-"+strconv.FormatInt(time.Now().UnixNano(), 10))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (osFileSystem) Remove(path string) error {
	return os.Remove(path)
}

// CreateTemp 在系统临时目录中创建文件并写入数据，返回绝对路径
func (osFileSystem) CreateTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return filepath.Abs(name)
}
