// Package errors 提供统一的错误处理机制
//
// 错误码用于 API 响应和日志分类；领域错误类型（domain.go）同样携带错误码，
// 可通过 GetCode / IsCode 在包装链中识别
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 错误码定义
const (
	// 认证相关
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// 资源不存在
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeAccountNotFound ErrorCode = "ACCOUNT_NOT_FOUND"

	// 资源冲突
	CodeAlreadyExists      ErrorCode = "ALREADY_EXISTS"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeTrialAlreadyUsed   ErrorCode = "TRIAL_ALREADY_USED"
	CodeActiveSubscription ErrorCode = "ACTIVE_SUBSCRIPTION"

	// 请求错误
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	CodeInvalidParam   ErrorCode = "INVALID_PARAM"
	CodeMissingParam   ErrorCode = "MISSING_PARAM"
	CodeInvalidState   ErrorCode = "INVALID_STATE"
	CodeConfigError    ErrorCode = "CONFIG_ERROR"
	CodeUnknownPlan    ErrorCode = "UNKNOWN_PLAN"

	// 权限错误
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeAccountBlocked ErrorCode = "ACCOUNT_BLOCKED"
	CodeNoSubscription ErrorCode = "NO_SUBSCRIPTION"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"

	// 系统错误
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
	CodeStorageError  ErrorCode = "STORAGE_ERROR"
	CodeNetworkError  ErrorCode = "NETWORK_ERROR"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeUnavailable   ErrorCode = "UNAVAILABLE"
	CodeNotConfigured ErrorCode = "NOT_CONFIGURED"
	CodeServiceClosed ErrorCode = "SERVICE_CLOSED"

	// 代理配置与执行
	CodeExecutionFailed      ErrorCode = "EXECUTION_FAILED"
	CodeConfigCorrupt        ErrorCode = "CONFIG_CORRUPT"
	CodeRestartFailed        ErrorCode = "RESTART_FAILED"
	CodeIncompleteLinkParams ErrorCode = "INCOMPLETE_LINK_PARAMS"
	CodeInvalidData          ErrorCode = "INVALID_DATA"
)

// Error 统一错误类型
type Error struct {
	Code    ErrorCode // 错误码
	Message string    // 错误消息
	Cause   error     // 原始错误
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 支持 errors.Is 进行错误码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// ErrorCode 返回错误码，供 GetCode 识别领域错误类型
func (e *Error) ErrorCode() ErrorCode {
	return e.Code
}

// New 创建新错误
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf 创建格式化错误
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf 格式化包装错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// coder 由携带错误码的错误类型实现
type coder interface {
	ErrorCode() ErrorCode
}

// GetCode 从错误链中提取第一个错误码
func GetCode(err error) ErrorCode {
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeInternal
}

// IsCode 检查错误链中是否存在指定错误码
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if c, ok := err.(coder); ok && c.ErrorCode() == code {
			return true
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if IsCode(inner, code) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return false
		}
	}
	return false
}

// Is 重导出 errors.Is
var Is = errors.Is

// As 重导出 errors.As
var As = errors.As

// Join 重导出 errors.Join
var Join = errors.Join
