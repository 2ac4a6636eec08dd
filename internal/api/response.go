package api

import (
	"encoding/json"
	"net/http"

	coreerrors "ghostline-core/internal/core/errors"
)

// ResponseData 统一响应结构
type ResponseData struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// LinkResponse 链接响应
type LinkResponse struct {
	Link string `json:"link"`
}

// RemovedResponse 撤销访问响应
type RemovedResponse struct {
	Removed bool `json:"removed"`
}

// AddedResponse 批量添加响应
type AddedResponse struct {
	Added []string `json:"added"`
}

// ClientResponse 客户端条目
type ClientResponse struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Flow  string `json:"flow,omitempty"`
}

// respondJSON 发送 JSON 响应
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ResponseData{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// respondErr 按错误码选择状态码
func respondErr(w http.ResponseWriter, err error) {
	code := coreerrors.GetCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(ResponseData{
		Success: false,
		Error:   err.Error(),
		Code:    string(code),
	})
}

func statusFor(code coreerrors.ErrorCode) int {
	switch code {
	case coreerrors.CodeNotFound, coreerrors.CodeAccountNotFound:
		return http.StatusNotFound
	case coreerrors.CodeAlreadyExists, coreerrors.CodeConflict,
		coreerrors.CodeTrialAlreadyUsed, coreerrors.CodeActiveSubscription:
		return http.StatusConflict
	case coreerrors.CodeInvalidRequest, coreerrors.CodeInvalidParam,
		coreerrors.CodeMissingParam, coreerrors.CodeUnknownPlan:
		return http.StatusBadRequest
	case coreerrors.CodeUnauthorized, coreerrors.CodeInvalidToken:
		return http.StatusUnauthorized
	case coreerrors.CodeForbidden, coreerrors.CodeAccountBlocked, coreerrors.CodeNoSubscription:
		return http.StatusForbidden
	case coreerrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case coreerrors.CodeExecutionFailed, coreerrors.CodeRestartFailed,
		coreerrors.CodeUnavailable, coreerrors.CodeTimeout, coreerrors.CodeServiceClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
