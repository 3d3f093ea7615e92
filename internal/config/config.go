package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	// ModeStdio 通过 stdin/stdout 提供工具调用
	ModeStdio = "stdio"
	// ModeHTTP 通过 HTTP 提供工具调用
	ModeHTTP = "http"

	// DirPolicyFallback 保存目录不可用时回退到默认目录
	DirPolicyFallback = "fallback"
	// DirPolicyStrict 保存目录不可用时直接报错
	DirPolicyStrict = "strict"
)

// Config 应用配置结构
type Config struct {
	// 服务器配置
	Server ServerConfig `yaml:"server" json:"server"`

	// OpenAI 图像接口配置
	OpenAI OpenAIConfig `yaml:"openai" json:"openai"`

	// 图片保存配置
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// 安全配置
	Security SecurityConfig `yaml:"security" json:"security"`

	// HTTP 客户端配置
	HTTPClient HTTPClientConfig `yaml:"http_client" json:"http_client"`

	// 日志配置
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Mode         string        `yaml:"mode" json:"mode"`
	Name         string        `yaml:"name" json:"name"`
	Version      string        `yaml:"version" json:"version"`
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// OpenAIConfig 图像服务提供方配置
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	Model        string `yaml:"model" json:"model"`
	Organization string `yaml:"organization" json:"organization"`
}

// StorageConfig 图片保存配置
type StorageConfig struct {
	// DefaultSaveDir 为空时使用进程工作目录
	DefaultSaveDir string `yaml:"default_save_dir" json:"default_save_dir"`
	DirPolicy      string `yaml:"dir_policy" json:"dir_policy"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	BearerToken      string        `yaml:"bearer_token" json:"bearer_token"`
	TLSSkipVerify    bool          `yaml:"tls_skip_verify" json:"tls_skip_verify"`
	RateLimitEnabled bool          `yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RateLimitRPS     int           `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// HTTPClientConfig HTTP 客户端配置
type HTTPClientConfig struct {
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host" json:"max_conns_per_host"`
	RetryCount          int           `yaml:"retry_count" json:"retry_count"`
	RetryWaitTime       time.Duration `yaml:"retry_wait_time" json:"retry_wait_time"`
	RetryMaxWaitTime    time.Duration `yaml:"retry_max_wait_time" json:"retry_max_wait_time"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level            string `yaml:"level" json:"level"`
	Format           string `yaml:"format" json:"format"`
	EnableRequestLog bool   `yaml:"enable_request_log" json:"enable_request_log"`
	MaskSensitive    bool   `yaml:"mask_sensitive" json:"mask_sensitive"`
}

// Load 加载配置，优先级：环境变量 > 配置文件 > 默认值
func Load() (*Config, error) {
	// 1. 设置默认配置
	config := Default()

	// 2. 尝试加载 .env 文件
	_ = godotenv.Load()

	// 3. 尝试加载配置文件
	if err := loadConfigFile(config); err != nil {
		// 配置文件缺失不是致命错误，继续使用环境变量和默认值
		// stdout 被协议占用，这里只能写 stderr
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config file: %v\n", err)
	}

	// 4. 环境变量覆盖
	overrideWithEnv(config)

	// 5. 验证配置
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return config, nil
}

// Default 获取默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Mode:         ModeStdio,
			Name:         "imagegen-mcp",
			Version:      "1.0.0",
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-image-1",
		},
		Storage: StorageConfig{
			DirPolicy: DirPolicyFallback,
		},
		Security: SecurityConfig{
			TLSSkipVerify:    false,
			RateLimitEnabled: false,
			RateLimitRPS:     0,
			RequestTimeout:   30 * time.Second,
		},
		HTTPClient: HTTPClientConfig{
			Timeout:             5 * time.Minute,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     50,
			RetryCount:          2,
			RetryWaitTime:       1 * time.Second,
			RetryMaxWaitTime:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "json",
			EnableRequestLog: true,
			MaskSensitive:    true,
		},
	}
}

// loadConfigFile 加载配置文件
func loadConfigFile(config *Config) error {
	// 环境变量指定的配置文件优先
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return LoadFromFile(configPath, config)
	}

	configPaths := []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"./configs/config.yaml",
		"./configs/config.yml",
		"./configs/config.json",
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFromFile(path, config)
		}
	}

	return fmt.Errorf("no config file found")
}

// LoadFromFile 从文件加载配置
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// overrideWithEnv 用环境变量覆盖配置
func overrideWithEnv(config *Config) {
	// 服务器配置
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		config.Server.Mode = strings.ToLower(mode)
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// OpenAI 配置
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.OpenAI.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_IMAGE_MODEL"); model != "" {
		config.OpenAI.Model = model
	}
	if org := os.Getenv("OPENAI_ORG_ID"); org != "" {
		config.OpenAI.Organization = org
	}

	// 保存目录配置
	if dir := os.Getenv("IMAGE_SAVE_DIR"); dir != "" {
		config.Storage.DefaultSaveDir = dir
	}
	if policy := os.Getenv("SAVE_DIR_POLICY"); policy != "" {
		config.Storage.DirPolicy = strings.ToLower(policy)
	}

	// 安全配置
	if token := os.Getenv("BEARER_TOKEN"); token != "" {
		config.Security.BearerToken = token
	}
	if skipVerify := os.Getenv("TLS_SKIP_VERIFY"); skipVerify != "" {
		if skip, err := strconv.ParseBool(skipVerify); err == nil {
			config.Security.TLSSkipVerify = skip
		}
	}
	if rateLimitEnabled := os.Getenv("RATE_LIMIT_ENABLED"); rateLimitEnabled != "" {
		if enabled, err := strconv.ParseBool(rateLimitEnabled); err == nil {
			config.Security.RateLimitEnabled = enabled
		}
	}
	if rateLimitRPS := os.Getenv("RATE_LIMIT_RPS"); rateLimitRPS != "" {
		if rps, err := strconv.Atoi(rateLimitRPS); err == nil {
			config.Security.RateLimitRPS = rps
		}
	}

	// HTTP 客户端配置
	if timeout := os.Getenv("HTTP_CLIENT_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			config.HTTPClient.Timeout = t
		}
	}

	// 日志配置
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errors []string

	if c.OpenAI.APIKey == "" {
		errors = append(errors, "OPENAI_API_KEY is required")
	}
	if c.OpenAI.BaseURL == "" {
		errors = append(errors, "OPENAI_BASE_URL must not be empty")
	}
	if c.OpenAI.Model == "" {
		errors = append(errors, "OPENAI_IMAGE_MODEL must not be empty")
	}

	if !lo.Contains([]string{ModeStdio, ModeHTTP}, c.Server.Mode) {
		errors = append(errors, "SERVER_MODE must be one of: stdio, http")
	}
	if !lo.Contains([]string{DirPolicyFallback, DirPolicyStrict}, c.Storage.DirPolicy) {
		errors = append(errors, "SAVE_DIR_POLICY must be one of: fallback, strict")
	}

	// HTTP 模式下才需要端口和令牌
	if c.Server.Mode == ModeHTTP {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errors = append(errors, "SERVER_PORT must be between 1 and 65535")
		}
		if c.Security.BearerToken == "" {
			errors = append(errors, "BEARER_TOKEN is required in http mode")
		}
	}

	if c.HTTPClient.Timeout < 0 {
		errors = append(errors, "HTTP_CLIENT_TIMEOUT must be positive")
	}
	if c.HTTPClient.RetryCount < 0 {
		errors = append(errors, "http_client.retry_count must not be negative")
	}

	// 验证限流配置
	if c.Security.RateLimitRPS <= 0 {
		// 如果RPS<=0，自动禁用限流
		c.Security.RateLimitEnabled = false
	}
	if c.Security.RateLimitRPS > 10000 {
		errors = append(errors, "RATE_LIMIT_RPS should not exceed 10000 for performance reasons")
	}

	// 验证日志级别
	validLevels := []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
	if !lo.Contains(validLevels, c.Logging.Level) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLevels, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// GetAddress 获取服务器监听地址
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
