package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostline-core/internal/config/schema"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/health"
	"ghostline-core/internal/provision"
	"ghostline-core/internal/repos"
	"ghostline-core/internal/subscription"
	"ghostline-core/internal/testutils"
	"ghostline-core/internal/xray/account"
	"ghostline-core/internal/xray/link"
	"ghostline-core/internal/xray/xrayconf"
)

const testToken = "s3cret-token"

type fixture struct {
	backend *testutils.FakeBackend
	metrics *metrics.PrometheusMetrics
	health  *health.HealthManager
	checker *health.CompositeHealthChecker
	server  *Server
}

func newFixture(t *testing.T, cfg schema.APIConfig) *fixture {
	t.Helper()
	backend := testutils.NewFakeBackend()
	backend.SetFile(testutils.ConfigPath, testutils.XrayConfig())

	loc, err := subscription.LoadLocation("")
	require.NoError(t, err)
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, loc))

	logger := corelog.NewTestLogger(t)
	store := xrayconf.NewStore(backend, testutils.ConfigPath, logger)
	syncer := account.New(account.Config{
		Backend:        backend,
		Store:          store,
		Flow:           testutils.Flow,
		RestartCommand: testutils.RestartCommand,
		Logger:         logger,
	})
	svc := provision.New(provision.Config{
		Accounts: repos.NewMemoryVpnAccountRepository(),
		Subscriptions: subscription.NewService(subscription.ServiceConfig{
			Subscriptions: repos.NewMemorySubscriptionRepository(),
			Location:      loc,
			Clock:         clock,
			Logger:        logger,
		}),
		Syncer: syncer,
		Links: link.NewGenerator(store, link.Options{
			Host:      "vpn.example.com",
			Flow:      testutils.Flow,
			PublicKey: testutils.PublicKey,
			Tag:       "Ghostline",
		}, logger),
		ProxyConfig: store,
		Logger:      logger,
	})

	m := metrics.NewPrometheusMetrics()
	hm := health.NewHealthManager("test", "dev", clock)
	checker := health.NewCompositeHealthChecker(time.Second)
	s := NewServer(cfg, Deps{
		Provision: svc,
		Clients:   syncer,
		Health:    hm,
		Checker:   checker,
		Metrics:   m,
		Logger:    logger,
	})
	return &fixture{backend: backend, metrics: m, health: hm, checker: checker, server: s}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, ResponseData) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var resp ResponseData
	if strings.HasPrefix(path, "/api/") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func linkOf(t *testing.T, resp ResponseData) string {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "unexpected data %#v", resp.Data)
	return data["link"].(string)
}

func TestActivateTrial_Flow(t *testing.T) {
	f := newFixture(t, schema.APIConfig{Token: testToken})
	id := uuid.NewString()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/users/"+id+"/trial", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(linkOf(t, resp), "vless://"+id+"@vpn.example.com:443?security=reality"))

	rec, resp = f.do(t, http.MethodPost, "/api/v1/users/"+id+"/trial", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(coreerrors.CodeTrialAlreadyUsed), resp.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/users/"+id+"/client", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, resp.Data.(map[string]interface{})["id"])

	rec, resp = f.do(t, http.MethodDelete, "/api/v1/users/"+id+"/access", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["removed"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/users/"+id+"/client", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 试用仍有效，可恢复访问
	rec, resp = f.do(t, http.MethodPost, "/api/v1/users/"+id+"/access", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, linkOf(t, resp), id)

	v, err := f.metrics.GetCounter(metrics.HTTPRequests, metrics.Labels(
		"route", "/api/v1/users/{userId}/trial", "method", "POST", "status", "409"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestActivatePaid(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	id := uuid.NewString()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/users/"+id+"/subscriptions", `{"plan":"1_month"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, linkOf(t, resp), id)

	tests := []struct {
		name   string
		body   string
		status int
		code   coreerrors.ErrorCode
	}{
		{"unknown plan", `{"plan":"lifetime"}`, http.StatusBadRequest, coreerrors.CodeUnknownPlan},
		{"numeric plan", `{"plan":6}`, http.StatusBadRequest, coreerrors.CodeInvalidRequest},
		{"trial via payment", `{"plan":"trial"}`, http.StatusBadRequest, coreerrors.CodeInvalidParam},
		{"missing plan", `{}`, http.StatusBadRequest, coreerrors.CodeMissingParam},
		{"unknown field", `{"plan":"1_month","coupon":"x"}`, http.StatusBadRequest, coreerrors.CodeInvalidRequest},
		{"malformed", `{`, http.StatusBadRequest, coreerrors.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := f.do(t, http.MethodPost, "/api/v1/users/"+id+"/subscriptions", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, string(tt.code), resp.Code)
		})
	}
}

func TestActivatePaid_PlanSpellings(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})

	for _, plan := range []string{"one_month", "six_months", "6_months"} {
		t.Run(plan, func(t *testing.T) {
			id := uuid.NewString()
			rec, resp := f.do(t, http.MethodPost, "/api/v1/users/"+id+"/subscriptions", `{"plan":"`+plan+`"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, linkOf(t, resp), id)
		})
	}
}

func TestActivateAccess_NoSubscription(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	rec, resp := f.do(t, http.MethodPost, "/api/v1/users/"+uuid.NewString()+"/access", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(coreerrors.CodeNoSubscription), resp.Code)
}

func TestInvalidUserID(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	rec, resp := f.do(t, http.MethodGet, "/api/v1/users/not-a-uuid/link", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(coreerrors.CodeInvalidParam), resp.Code)
	assert.Zero(t, f.backend.CommandCount(testutils.RestartCommand))
}

func TestRestartFailure_Accepted(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	f.backend.FailCommand(testutils.RestartCommand, 1)
	id := uuid.NewString()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/users/"+id+"/trial", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, string(coreerrors.CodeRestartFailed), resp.Code)
	assert.Contains(t, linkOf(t, resp), id)
}

func TestAddAccounts(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	a, b := uuid.NewString(), uuid.NewString()

	body, _ := json.Marshal(AddAccountsRequest{UserIDs: []string{a, b, a}})
	rec, resp := f.do(t, http.MethodPost, "/api/v1/accounts", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.ElementsMatch(t, []interface{}{a, b}, resp.Data.(map[string]interface{})["added"])

	// 再次添加是空操作
	rec, resp = f.do(t, http.MethodPost, "/api/v1/accounts", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Data.(map[string]interface{})["added"])
	assert.Equal(t, 1, f.backend.CommandCount(testutils.RestartCommand))

	rec, _ = f.do(t, http.MethodPost, "/api/v1/accounts", `{"user_ids":["bad"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, schema.APIConfig{Token: testToken})
	path := "/api/v1/users/" + uuid.NewString() + "/link"

	for name, header := range map[string]string{
		"missing":     "",
		"wrong token": "Bearer nope",
		"basic":       "Basic " + testToken,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	// 探针不需要认证
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, schema.APIConfig{RateLimitRPS: 0.001, RateLimitBurst: 2})
	path := "/api/v1/users/" + uuid.NewString() + "/client"

	var codes []int
	for i := 0; i < 3; i++ {
		rec, _ := f.do(t, http.MethodGet, path, "")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestReadyz(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	get := func(path string) int {
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/readyz"))

	storageErr := errors.New("connection refused")
	f.checker.RegisterChecker("storage", health.NewStorageHealthChecker(health.PingFunc(func(context.Context) error { return storageErr })))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/healthz"))

	f.checker.RegisterChecker("storage", health.NewStorageHealthChecker(health.PingFunc(func(context.Context) error { return nil })))
	f.health.MarkDraining()
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	f.do(t, http.MethodGet, "/api/v1/users/"+uuid.NewString()+"/client", "")

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), metrics.HTTPRequests)
}

func TestServe_Shutdown(t *testing.T) {
	f := newFixture(t, schema.APIConfig{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
