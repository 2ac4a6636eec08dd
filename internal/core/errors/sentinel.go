package errors

// 预定义哨兵错误（用于 errors.Is 比较）
// 这些错误用于快速类型检查，不包含详细信息
var (
	// 认证相关
	ErrUnauthorized = New(CodeUnauthorized, "unauthorized")
	ErrInvalidToken = New(CodeInvalidToken, "invalid token")

	// 资源不存在
	ErrNotFound        = New(CodeNotFound, "resource not found")
	ErrAccountNotFound = New(CodeAccountNotFound, "vpn account not found")

	// 资源冲突
	ErrAlreadyExists      = New(CodeAlreadyExists, "resource already exists")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTrialAlreadyUsed   = New(CodeTrialAlreadyUsed, "trial already used")
	ErrActiveSubscription = New(CodeActiveSubscription, "active subscription exists")

	// 请求错误
	ErrInvalidRequest = New(CodeInvalidRequest, "invalid request")
	ErrInvalidParam   = New(CodeInvalidParam, "invalid parameter")
	ErrMissingParam   = New(CodeMissingParam, "missing required parameter")

	// 权限错误
	ErrAccountBlocked = New(CodeAccountBlocked, "vpn account is blocked")
	ErrNoSubscription = New(CodeNoSubscription, "no active subscription")
	ErrRateLimited    = New(CodeRateLimited, "rate limit exceeded")

	// 系统错误
	ErrInternal      = New(CodeInternal, "internal error")
	ErrStorageError  = New(CodeStorageError, "storage error")
	ErrTimeout       = New(CodeTimeout, "operation timeout")
	ErrUnavailable   = New(CodeUnavailable, "service unavailable")
	ErrNotConfigured = New(CodeNotConfigured, "not configured")
	ErrServiceClosed = New(CodeServiceClosed, "service closed")

	// 代理配置
	ErrFlowNotConfigured = New(CodeNotConfigured, "xray flow is not configured")
	ErrNoInbound         = New(CodeConfigCorrupt, "proxy config has no inbounds")
)
