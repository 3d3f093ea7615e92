package openai

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"
	"imagegen-mcp/internal/options"
	"imagegen-mcp/internal/types"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	sdk "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	generationsPath = "/images/generations"
	editsPath       = "/images/edits"
)

// Client 图像接口客户端，所有调用都带上调用方的 context
type Client struct {
	rest    *resty.Client
	baseURL string
	apiKey  string
	org     string
	model   string
}

// KeyStatus API 密钥检查结果
type KeyStatus struct {
	Valid      bool
	ModelCount int
	Message    string
}

// NewClient 基于配置创建客户端
func NewClient(cfg config.OpenAIConfig, rest *resty.Client) *Client {
	return &Client{
		rest:    rest,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		org:     cfg.Organization,
		model:   cfg.Model,
	}
}

// Model 请求中使用的模型名
func (c *Client) Model() string {
	return c.model
}

// CreateImage 文生图，JSON 请求体
func (c *Client) CreateImage(ctx context.Context, req types.ProviderRequest) ([]byte, error) {
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("encode request: %w", err))
	}

	logger.Info("发送图像生成请求",
		zap.String("model", req.Model),
		zap.String("size", req.Size),
		zap.Int("n", req.N),
	)

	r := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	return c.do(r, generationsPath)
}

// EditImage 单图编辑，可附带蒙版
func (c *Client) EditImage(ctx context.Context, req types.ProviderRequest, image types.ImageFile, mask *types.ImageFile) ([]byte, error) {
	logger.Info("发送图像编辑请求",
		zap.String("model", req.Model),
		zap.String("image", image.Name),
		zap.Bool("has_mask", mask != nil),
		zap.Int("n", req.N),
	)

	r := c.request(ctx).SetFormData(options.FormFields(req))
	attach(r, "image", image)
	if mask != nil {
		attach(r, "mask", *mask)
	}
	return c.do(r, editsPath)
}

// EditImages 多图编辑，图片以重复的 image[] 字段上传
func (c *Client) EditImages(ctx context.Context, req types.ProviderRequest, images []types.ImageFile) ([]byte, error) {
	logger.Info("发送多图编辑请求",
		zap.String("model", req.Model),
		zap.Int("images", len(images)),
		zap.Int("n", req.N),
	)

	r := c.request(ctx).SetFormData(options.FormFields(req))
	for _, img := range images {
		attach(r, "image[]", img)
	}
	return c.do(r, editsPath)
}

// ValidateKey 通过模型列表接口检查密钥
// 401/403 视为密钥无效，不算错误；其他失败返回错误
func (c *Client) ValidateKey(ctx context.Context) (KeyStatus, error) {
	cfg := sdk.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.baseURL
	cfg.OrgID = c.org
	cfg.HTTPClient = c.rest.GetClient()

	list, err := sdk.NewClientWithConfig(cfg).ListModels(ctx)
	if err != nil {
		var apiErr *sdk.APIError
		if stderrors.As(err, &apiErr) &&
			(apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
			logger.Warn("API 密钥无效", zap.Int("status", apiErr.HTTPStatusCode))
			return KeyStatus{Valid: false, Message: apiErr.Message}, nil
		}
		return KeyStatus{}, errors.NewRequestFailedError("model listing request failed", err)
	}

	return KeyStatus{Valid: true, ModelCount: len(list.Models)}, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey)
	if c.org != "" {
		r.SetHeader("OpenAI-Organization", c.org)
	}
	return r
}

func (c *Client) do(r *resty.Request, path string) ([]byte, error) {
	resp, err := r.Post(c.baseURL + path)
	if err != nil {
		logger.Error("图像接口请求失败", zap.String("path", path), zap.Error(err))
		return nil, errors.NewRequestFailedError("image API request failed", err)
	}
	if resp.IsError() {
		appErr := providerError(resp.StatusCode(), resp.Body())
		logger.Error("图像接口返回错误",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.String("error_msg", appErr.Message),
		)
		return nil, appErr
	}
	return resp.Body(), nil
}

func attach(r *resty.Request, field string, f types.ImageFile) {
	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}
	r.SetMultipartField(field, f.Name, ct, bytes.NewReader(f.Data))
}

// providerError 尽量取出提供方自己的错误信息
func providerError(status int, body []byte) *errors.AppError {
	var structured sdk.ErrorResponse
	if err := sonic.Unmarshal(body, &structured); err == nil && structured.Error != nil && structured.Error.Message != "" {
		return errors.NewRequestFailedError(structured.Error.Message, nil)
	}

	var plain struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(body, &plain); err == nil && plain.Error != "" {
		return errors.NewRequestFailedError(plain.Error, nil)
	}

	return errors.NewRequestFailedError(fmt.Sprintf("image API returned status %d", status), nil)
}
