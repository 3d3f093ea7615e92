package openai

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Fetcher 下载响应中以 URL 形式给出的图片
type Fetcher struct {
	rest *resty.Client
}

// NewFetcher 创建下载器
func NewFetcher(rest *resty.Client) *Fetcher {
	return &Fetcher{rest: rest}
}

// FetchBytes 下载 url 内容，非 2xx 或空内容视为失败
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.rest.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", url)
	}
	return resp.Body(), nil
}
