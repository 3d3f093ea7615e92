package tools

import (
	"context"

	"imagegen-mcp/internal/logger"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// NewMCPServer 把注册表中的每个工具挂到 MCP server 上
func NewMCPServer(r *Registry, name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, t := range r.Tools() {
		toolName := t.Name
		s.AddTool(mcpTool(t), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res := r.Dispatch(ctx, toolName, req.GetArguments())
			if res.IsError {
				return mcp.NewToolResultError(res.Text), nil
			}
			return mcp.NewToolResultText(res.Text), nil
		})
	}
	return s
}

// ServeStdio 通过 stdin/stdout 提供服务，直到输入关闭或收到退出信号
func ServeStdio(s *server.MCPServer) error {
	logger.Info("MCP stdio 服务已启动")
	return server.ServeStdio(s, server.WithErrorLogger(zap.NewStdLog(logger.With(zap.String("component", "stdio")))))
}

func mcpTool(t Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for _, p := range t.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		if len(p.Enum) > 0 {
			props = append(props, mcp.Enum(p.Enum...))
		}

		switch p.Type {
		case TypeNumber:
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case TypeArray:
			if p.Items != nil {
				props = append(props, mcp.Items(p.Items))
			}
			opts = append(opts, mcp.WithArray(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}
