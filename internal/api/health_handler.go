package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ghostline-core/internal/health"
)

// HealthzResponse 健康检查响应
type HealthzResponse struct {
	Status     string                             `json:"status"`
	Timestamp  time.Time                          `json:"timestamp"`
	Info       *health.HealthInfo                 `json:"info,omitempty"`
	Components map[string]*health.ComponentHealth `json:"components,omitempty"`
}

// handleHealthz 进程存活即返回 200，组件状态只作参考
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := s.deps.Checker.Check(ctx)
	resp := HealthzResponse{
		Status:     string(report.Status),
		Timestamp:  time.Now(),
		Components: report.Components,
	}
	if s.deps.Health != nil {
		resp.Info = s.deps.Health.GetHealthInfo()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReadyz 关闭中或存储不可用时返回 503
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.deps.Health != nil && !s.deps.Health.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, HealthzResponse{
			Status:    string(s.deps.Health.GetStatus()),
			Timestamp: time.Now(),
		})
		return
	}

	report := s.deps.Checker.Check(ctx)
	status := http.StatusOK
	if report.Status == health.ComponentStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthzResponse{
		Status:     string(report.Status),
		Timestamp:  time.Now(),
		Components: report.Components,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
