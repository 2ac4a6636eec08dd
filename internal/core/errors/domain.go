package errors

import (
	"fmt"
	"strings"
)

// ExecutionError 命令或文件操作在执行后端上失败（非零退出、传输错误或超时）
type ExecutionError struct {
	Backend  string // local / remote
	Op       string // run / read / write
	Target   string // 命令或路径
	ExitCode int    // -1 表示未取得退出码
	Stderr   string
	Cause    error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s on %s backend", CodeExecutionFailed, e.Op, e.Target, e.Backend)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " exited with %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, " (stderr: %s)", s)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() error        { return e.Cause }
func (e *ExecutionError) ErrorCode() ErrorCode { return CodeExecutionFailed }
func (e *ExecutionError) Is(target error) bool { return matchCode(target, CodeExecutionFailed) }

// ConfigCorruptError 代理配置无法解析或缺少必需结构
type ConfigCorruptError struct {
	Path  string
	Cause error
}

func (e *ConfigCorruptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] proxy config %s is corrupt: %v", CodeConfigCorrupt, e.Path, e.Cause)
	}
	return fmt.Sprintf("[%s] proxy config %s is corrupt", CodeConfigCorrupt, e.Path)
}

func (e *ConfigCorruptError) Unwrap() error        { return e.Cause }
func (e *ConfigCorruptError) ErrorCode() ErrorCode { return CodeConfigCorrupt }
func (e *ConfigCorruptError) Is(target error) bool { return matchCode(target, CodeConfigCorrupt) }

// RestartError 配置已写入但代理重启失败（部分失败）
type RestartError struct {
	Command string
	Cause   error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("[%s] config written but proxy restart (%s) failed: %v", CodeRestartFailed, e.Command, e.Cause)
}

func (e *RestartError) Unwrap() error        { return e.Cause }
func (e *RestartError) ErrorCode() ErrorCode { return CodeRestartFailed }
func (e *RestartError) Is(target error) bool { return matchCode(target, CodeRestartFailed) }

// IncompleteLinkParamsError 生成连接链接所需参数缺失
type IncompleteLinkParamsError struct {
	Missing []string
}

func (e *IncompleteLinkParamsError) Error() string {
	return fmt.Sprintf("[%s] missing link parameters: %s", CodeIncompleteLinkParams, strings.Join(e.Missing, ", "))
}

func (e *IncompleteLinkParamsError) ErrorCode() ErrorCode { return CodeIncompleteLinkParams }
func (e *IncompleteLinkParamsError) Is(target error) bool {
	return matchCode(target, CodeIncompleteLinkParams)
}

// UnknownPlanError 未知的订阅套餐
type UnknownPlanError struct {
	Plan string
}

func (e *UnknownPlanError) Error() string {
	return fmt.Sprintf("[%s] unknown subscription plan %q", CodeUnknownPlan, e.Plan)
}

func (e *UnknownPlanError) ErrorCode() ErrorCode { return CodeUnknownPlan }
func (e *UnknownPlanError) Is(target error) bool { return matchCode(target, CodeUnknownPlan) }

func matchCode(target error, code ErrorCode) bool {
	if t, ok := target.(*Error); ok {
		return t.Code == code
	}
	return false
}
