package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware 记录请求并计数
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		_ = s.deps.Metrics.IncrementCounter(metrics.HTTPRequests, metrics.Labels(
			"route", route,
			"method", r.Method,
			"status", strconv.Itoa(rec.status),
		))
		s.logger.WithFields(corelog.Fields{
			"method":              r.Method,
			"route":               route,
			"status":              rec.status,
			corelog.FieldDuration: time.Since(start).String(),
		}).Debugf("HTTP request")
	})
}

// authMiddleware Bearer token 认证；未配置 token 时不校验
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.config.Token.Value()
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondErr(w, coreerrors.New(coreerrors.CodeUnauthorized, "missing authorization header"))
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			respondErr(w, coreerrors.New(coreerrors.CodeUnauthorized, "invalid authorization header format"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
			respondErr(w, coreerrors.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware 全局令牌桶限流
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			respondErr(w, coreerrors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Errorf("panic in %s %s: %v", r.Method, r.URL.Path, v)
				respondErr(w, coreerrors.ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
