package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 定义错误码
type ErrorCode int

const (
	// 系统错误码 (1000-1999)
	ErrInternal ErrorCode = 1000 + iota
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrTimeout
	ErrRequestFailed
	ErrRateLimited
)

const (
	// 业务错误码 (2000-2999)
	ErrInvalidInput ErrorCode = 2000 + iota
	ErrConflictingArgs
	ErrFileNotFound
	ErrImageGeneration
	ErrResponseShape
	ErrSaveDirectory
	ErrFileWrite
	ErrMaskRender
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode // 错误码
	Message string    // 错误消息
	Err     error     // 原始错误
	Status  int       // HTTP状态码
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现errors.Unwrap接口
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsCallerError 参数类错误，不会触发任何上游请求
func (e *AppError) IsCallerError() bool {
	switch e.Code {
	case ErrInvalidInput, ErrConflictingArgs, ErrFileNotFound, ErrBadRequest:
		return true
	}
	return false
}

// HTTPResponse 生成HTTP响应
func (e *AppError) HTTPResponse() (int, map[string]any) {
	return e.Status, map[string]any{
		"error": map[string]any{
			"code":    e.Code,
			"message": e.Error(),
		},
	}
}

// As 从错误链中取出 AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// NewInternalError 创建内部错误
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
		Status:  http.StatusInternalServerError,
	}
}

// NewBadRequestError 创建请求错误
func NewBadRequestError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
		Status:  http.StatusBadRequest,
	}
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// NewRateLimitedError 调用方对某个工具的调用过于频繁
func NewRateLimitedError(tool string) *AppError {
	return &AppError{
		Code:    ErrRateLimited,
		Message: fmt.Sprintf("rate limit exceeded for tool %s", tool),
		Status:  http.StatusTooManyRequests,
	}
}

// NewInvalidInputError 创建无效输入错误
func NewInvalidInputError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrInvalidInput,
		Message: message,
		Err:     err,
		Status:  http.StatusBadRequest,
	}
}

// NewConflictingArgsError 两个互斥参数同时出现
func NewConflictingArgsError(a, b string) *AppError {
	return &AppError{
		Code:    ErrConflictingArgs,
		Message: fmt.Sprintf("%s and %s are mutually exclusive; provide only one", a, b),
		Status:  http.StatusBadRequest,
	}
}

// NewFileNotFoundError 创建本地文件不存在错误
func NewFileNotFoundError(path string, err error) *AppError {
	return &AppError{
		Code:    ErrFileNotFound,
		Message: fmt.Sprintf("file not found: %s", path),
		Err:     err,
		Status:  http.StatusBadRequest,
	}
}

// NewRequestFailedError 创建上游请求失败错误
func NewRequestFailedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrRequestFailed,
		Message: message,
		Err:     err,
		Status:  http.StatusBadGateway,
	}
}

// NewResponseShapeError 上游响应结构无法识别
func NewResponseShapeError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrResponseShape,
		Message: message,
		Err:     err,
		Status:  http.StatusBadGateway,
	}
}

// NewSaveDirectoryError 保存目录不可用
func NewSaveDirectoryError(dir string, err error) *AppError {
	return &AppError{
		Code:    ErrSaveDirectory,
		Message: fmt.Sprintf("save directory %q is not usable", dir),
		Err:     err,
		Status:  http.StatusInternalServerError,
	}
}

// NewFileWriteError 创建文件写入错误
func NewFileWriteError(path string, err error) *AppError {
	return &AppError{
		Code:    ErrFileWrite,
		Message: fmt.Sprintf("failed to write %s", path),
		Err:     err,
		Status:  http.StatusInternalServerError,
	}
}

// NewMaskRenderError 创建蒙版渲染错误
func NewMaskRenderError(err error) *AppError {
	return &AppError{
		Code:    ErrMaskRender,
		Message: "failed to render mask",
		Err:     err,
		Status:  http.StatusInternalServerError,
	}
}
