package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostline-core/internal/broker"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/models"
	"ghostline-core/internal/repos"
	"ghostline-core/internal/testutils"
	"ghostline-core/internal/xray/accesslog"
	"ghostline-core/internal/xray/account"
	"ghostline-core/internal/xray/xrayconf"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		ips     int
		limit   int
		blocked bool
		want    Action
	}{
		{"within limit", 1, 1, false, ActionNone},
		{"over limit", 2, 1, false, ActionBan},
		{"over limit already blocked", 3, 1, true, ActionNone},
		{"blocked back within limit", 1, 1, true, ActionUnban},
		{"blocked idle", 0, 3, true, ActionUnban},
		{"zero limit", 1, 0, false, ActionBan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.ips, tt.limit, tt.blocked))
		})
	}
}

type env struct {
	backend  *testutils.FakeBackend
	accounts *repos.MemoryVpnAccountRepository
	subs     *repos.MemorySubscriptionRepository
	clock    *quartz.Mock
	metrics  *metrics.MemoryMetrics
	broker   *broker.MemoryBroker
	monitor  *Monitor
}

func newEnv(t *testing.T, releaseIdle bool, clients ...string) *env {
	t.Helper()
	backend := testutils.NewFakeBackend()
	backend.SetFile(testutils.ConfigPath, testutils.XrayConfig(clients...))
	backend.SetFile(testutils.LogsPath, nil)

	logger := corelog.NewTestLogger(t)
	m := metrics.NewMemoryMetrics()
	b := broker.NewMemoryBroker("test", logger)
	t.Cleanup(func() { _ = b.Close() })

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	syncer := account.New(account.Config{
		Backend:        backend,
		Store:          xrayconf.NewStore(backend, testutils.ConfigPath, logger),
		Flow:           testutils.Flow,
		RestartCommand: testutils.RestartCommand,
		Logger:         logger,
		Metrics:        m,
	})

	e := &env{
		backend:  backend,
		accounts: repos.NewMemoryVpnAccountRepository(),
		subs:     repos.NewMemorySubscriptionRepository(),
		clock:    clock,
		metrics:  m,
		broker:   b,
	}
	e.monitor = New(Config{
		Backend:            backend,
		LogsPath:           testutils.LogsPath,
		Parser:             accesslog.NewRegexParser(time.UTC),
		Accounts:           e.accounts,
		Subscriptions:      e.subs,
		Syncer:             syncer,
		ReleaseIdleBlocked: releaseIdle,
		Clock:              clock,
		Logger:             logger,
		Metrics:            m,
		Publisher:          b,
	})
	return e
}

func (e *env) addAccount(t *testing.T, userID string, limit int, blocked bool) {
	t.Helper()
	require.NoError(t, e.accounts.Create(context.Background(), &models.VpnAccount{
		UserID: userID, Server: "h", Port: 443, DevicesLimit: limit, IsBlocked: blocked,
	}))
}

func (e *env) addSubscription(t *testing.T, userID string) {
	t.Helper()
	now := e.clock.Now()
	require.NoError(t, e.subs.Create(context.Background(), &models.Subscription{
		UserID: userID, Plan: models.PlanOneMonth, StartDate: now, EndDate: now.AddDate(0, 1, 0),
	}))
}

func (e *env) writeLog(lines ...string) {
	e.backend.SetFile(testutils.LogsPath, []byte(strings.Join(lines, "\n")+"\n"))
}

func (e *env) clientIDs(t *testing.T) []string {
	t.Helper()
	data, _ := e.backend.File(testutils.ConfigPath)
	cfg, err := xrayconf.Parse(testutils.ConfigPath, data)
	require.NoError(t, err)
	return cfg.ClientIDs()
}

func TestRunCycle_BansUserOverLimit(t *testing.T) {
	e := newEnv(t, false, "abc", "xyz")
	e.addAccount(t, "abc", 1, false)
	e.addAccount(t, "xyz", 1, false)

	events, err := e.broker.Subscribe(context.Background(), broker.TopicAccountBanned)
	require.NoError(t, err)

	e.writeLog(
		testutils.AccessLine("2024/05/01 11:58:00", "1.1.1.1:5000", "abc"),
		testutils.AccessLine("2024/05/01 11:58:10", "tcp:2.2.2.2:5001", "abc"),
		testutils.AccessLine("2024/05/01 11:58:20", "1.1.1.1:5002", "abc"),
		testutils.AccessLine("2024/05/01 11:58:30", "3.3.3.3:5003", "xyz"),
		"garbage line",
	)

	report, err := e.monitor.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Records)
	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 1, report.Count(ActionBan))
	assert.True(t, report.Truncated)

	acc, err := e.accounts.FindByUserID(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, acc.IsBlocked)
	assert.Equal(t, []string{"xyz"}, e.clientIDs(t))

	logData, _ := e.backend.File(testutils.LogsPath)
	assert.Empty(t, logData)

	bans, _ := e.metrics.GetCounter(metrics.MonitorBans, nil)
	assert.Equal(t, float64(1), bans)

	select {
	case msg := <-events:
		ev, err := broker.Decode[broker.AccountEvent](msg)
		require.NoError(t, err)
		assert.Equal(t, []string{"abc"}, ev.UserIDs)
		assert.Equal(t, 2, ev.IPs)
		assert.Equal(t, 1, ev.Limit)
	case <-time.After(time.Second):
		t.Fatal("no banned event")
	}
}

func TestRunCycle_UnbansWhenBackWithinLimit(t *testing.T) {
	e := newEnv(t, false)
	e.addAccount(t, "abc", 2, true)
	e.addSubscription(t, "abc")
	e.writeLog(testutils.AccessLine("2024/05/01 11:59:00", "1.1.1.1:5000", "abc"))

	report, err := e.monitor.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(ActionUnban))

	acc, _ := e.accounts.FindByUserID(context.Background(), "abc")
	assert.False(t, acc.IsBlocked)
	assert.Equal(t, []string{"abc"}, e.clientIDs(t))
}

func TestRunCycle_UnbanWithoutSubscriptionKeepsAccessRemoved(t *testing.T) {
	e := newEnv(t, false)
	e.addAccount(t, "abc", 2, true)
	e.writeLog(testutils.AccessLine("2024/05/01 11:59:00", "1.1.1.1:5000", "abc"))

	_, err := e.monitor.RunCycle(context.Background())
	require.NoError(t, err)

	acc, _ := e.accounts.FindByUserID(context.Background(), "abc")
	assert.False(t, acc.IsBlocked)
	assert.Empty(t, e.clientIDs(t))
	assert.Equal(t, 0, e.backend.CommandCount(testutils.RestartCommand))
}

func TestRunCycle_UnknownUserSkipped(t *testing.T) {
	e := newEnv(t, false)
	e.writeLog(testutils.AccessLine("2024/05/01 11:59:00", "1.1.1.1:5000", "ghost"))

	report, err := e.monitor.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, report.Skipped)
	assert.True(t, report.Truncated)
}

func TestRunCycle_FailureKeepsLog(t *testing.T) {
	e := newEnv(t, false, "abc")
	e.addAccount(t, "abc", 1, false)
	e.backend.FailWrite(testutils.ConfigPath, &coreerrors.ExecutionError{Backend: "fake", Op: "write", ExitCode: 1})

	lines := []string{
		testutils.AccessLine("2024/05/01 11:58:00", "1.1.1.1:5000", "abc"),
		testutils.AccessLine("2024/05/01 11:58:10", "2.2.2.2:5001", "abc"),
	}
	e.writeLog(lines...)
	before, _ := e.backend.File(testutils.LogsPath)

	report, err := e.monitor.RunCycle(context.Background())
	require.Error(t, err)
	assert.False(t, report.Truncated)

	after, _ := e.backend.File(testutils.LogsPath)
	assert.Equal(t, before, after)

	// 移除失败时不落封禁标记，下一轮重试
	acc, _ := e.accounts.FindByUserID(context.Background(), "abc")
	assert.False(t, acc.IsBlocked)

	failed, _ := e.metrics.GetCounter(metrics.MonitorCycles, metrics.Labels("result", metrics.ResultFailed))
	assert.Equal(t, float64(1), failed)
}

func TestRunCycle_ReadFailureKeepsLog(t *testing.T) {
	e := newEnv(t, false)
	e.backend.FailRead(testutils.LogsPath, &coreerrors.ExecutionError{Backend: "fake", Op: "read", ExitCode: -1})

	_, err := e.monitor.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, e.backend.WriteCount(testutils.LogsPath))
}

func TestRunCycle_RestartFailureStillBlocks(t *testing.T) {
	e := newEnv(t, false, "abc")
	e.addAccount(t, "abc", 1, false)
	e.backend.FailCommand(testutils.RestartCommand, 1)
	e.writeLog(
		testutils.AccessLine("2024/05/01 11:58:00", "1.1.1.1:5000", "abc"),
		testutils.AccessLine("2024/05/01 11:58:10", "2.2.2.2:5001", "abc"),
	)

	report, err := e.monitor.RunCycle(context.Background())
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeRestartFailed))
	assert.False(t, report.Truncated)

	acc, _ := e.accounts.FindByUserID(context.Background(), "abc")
	assert.True(t, acc.IsBlocked)
	assert.Empty(t, e.clientIDs(t))
}

func TestRunCycle_ReleaseIdleBlocked(t *testing.T) {
	e := newEnv(t, true)
	e.addAccount(t, "idle", 1, true)
	e.addSubscription(t, "idle")

	report, err := e.monitor.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(ActionUnban))

	acc, _ := e.accounts.FindByUserID(context.Background(), "idle")
	assert.False(t, acc.IsBlocked)
	assert.Equal(t, []string{"idle"}, e.clientIDs(t))
}

func TestRunCycle_IdleBlockedUntouchedByDefault(t *testing.T) {
	e := newEnv(t, false)
	e.addAccount(t, "idle", 1, true)

	report, err := e.monitor.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Decisions)

	acc, _ := e.accounts.FindByUserID(context.Background(), "idle")
	assert.True(t, acc.IsBlocked)
}

func TestRunCycle_Overlap(t *testing.T) {
	e := newEnv(t, false)
	e.monitor.running.Store(true)

	_, err := e.monitor.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)
}
