package mask

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"imagegen-mcp/internal/storage"

	_ "golang.org/x/image/webp"
)

// ImageSize 读取待上传图片的像素尺寸，只解析文件头
// 不按 EXIF 方向旋转：上游收到的是原始字节，蒙版必须与原始像素对齐
func ImageSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// WriteTemp 把渲染好的蒙版写入临时文件，调用方负责删除
func WriteTemp(fs storage.FileSystem, png []byte) (string, error) {
	return fs.CreateTemp("mask-*.png", png)
}
