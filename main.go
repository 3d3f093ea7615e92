package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imagegen-mcp/internal/apiserver"
	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/logger"
	"imagegen-mcp/internal/metrics"
	"imagegen-mcp/internal/middleware"
	"imagegen-mcp/internal/openai"
	"imagegen-mcp/internal/service"
	"imagegen-mcp/internal/storage"
	"imagegen-mcp/internal/tools"
	"imagegen-mcp/internal/utils"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 设置日志级别
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	defer logger.Sync()

	app := newApp(cfg)

	if cfg.Server.Mode == config.ModeHTTP {
		err = app.serveHTTP()
	} else {
		err = tools.ServeStdio(tools.NewMCPServer(app.registry, cfg.Server.Name, cfg.Server.Version))
	}
	if err != nil {
		logger.Fatal("服务异常退出", zap.Error(err))
	}
}

// App 应用实例
type App struct {
	config   *config.Config
	registry *tools.Registry
	metrics  *metrics.Collector
}

// newApp 组装依赖
func newApp(cfg *config.Config) *App {
	fs := storage.NewOSFileSystem()
	collector := metrics.NewCollector("imagegen")

	svc := service.NewImageService(service.Deps{
		Provider: openai.NewClient(cfg.OpenAI, utils.NewProviderClient(cfg)),
		Fetcher:  openai.NewFetcher(utils.NewFetchClient(cfg)),
		FS:       fs,
		Resolver: storage.NewResolver(fs, cfg.Storage.DefaultSaveDir, cfg.Storage.DirPolicy),
		Metrics:  collector,
	})

	logger.Info("工具已就绪",
		zap.String("mode", cfg.Server.Mode),
		zap.String("model", cfg.OpenAI.Model),
		zap.String("dir_policy", cfg.Storage.DirPolicy),
	)

	return &App{
		config:   cfg,
		registry: tools.NewRegistry(svc),
		metrics:  collector,
	}
}

// serveHTTP 启动 HTTP 服务，收到信号后优雅关闭
func (a *App) serveHTTP() error {
	e := echo.New()
	e.Logger.SetOutput(io.Discard)
	e.HideBanner = true
	e.HidePort = true

	// 配置服务器
	e.Server.ReadTimeout = a.config.Server.ReadTimeout
	e.Server.WriteTimeout = a.config.Server.WriteTimeout
	e.Server.IdleTimeout = a.config.Server.IdleTimeout

	limiter := middleware.NewToolLimiter(a.config)
	defer limiter.Close()

	// 添加基础中间件
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	if a.config.Security.RequestTimeout > 0 {
		e.Use(echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{Timeout: a.config.Security.RequestTimeout}))
	}

	// 注册路由
	apiserver.RegisterRoutes(e, a.config, a.registry, a.metrics, limiter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("启动服务器", zap.String("address", a.config.GetAddress()))
		if err := e.Start(a.config.GetAddress()); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务器")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
