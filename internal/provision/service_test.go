package provision

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/models"
	"ghostline-core/internal/repos"
	"ghostline-core/internal/subscription"
	"ghostline-core/internal/testutils"
	"ghostline-core/internal/xray/account"
	"ghostline-core/internal/xray/link"
	"ghostline-core/internal/xray/xrayconf"
)

type fixture struct {
	backend  *testutils.FakeBackend
	clock    *quartz.Mock
	accounts *repos.MemoryVpnAccountRepository
	subs     *repos.MemorySubscriptionRepository
	service  *Service
}

func newFixture(t *testing.T, clients ...string) *fixture {
	t.Helper()
	backend := testutils.NewFakeBackend()
	backend.SetFile(testutils.ConfigPath, testutils.XrayConfig(clients...))

	loc, err := subscription.LoadLocation("")
	require.NoError(t, err)
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, loc))

	logger := corelog.NewTestLogger(t)
	store := xrayconf.NewStore(backend, testutils.ConfigPath, logger)
	accounts := repos.NewMemoryVpnAccountRepository()
	subs := repos.NewMemorySubscriptionRepository()
	syncer := account.New(account.Config{
		Backend:        backend,
		Store:          store,
		Flow:           testutils.Flow,
		RestartCommand: testutils.RestartCommand,
		Logger:         logger,
	})

	svc := New(Config{
		Accounts:      accounts,
		Subscriptions: subscription.NewService(subscription.ServiceConfig{Subscriptions: subs, Location: loc, Clock: clock, Logger: logger}),
		Syncer:        syncer,
		Links: link.NewGenerator(store, link.Options{
			Host:      "vpn.example.com",
			Flow:      testutils.Flow,
			PublicKey: testutils.PublicKey,
			Tag:       "Ghostline",
		}, logger),
		ProxyConfig: store,
		Defaults: AccountDefaults{
			Server:    "vpn.example.com",
			Port:      443,
			PublicKey: testutils.PublicKey,
			SNI:       "fallback.example.com",
			Flow:      testutils.Flow,
		},
		Logger: logger,
	})

	return &fixture{backend: backend, clock: clock, accounts: accounts, subs: subs, service: svc}
}

func (f *fixture) clientIDs(t *testing.T) []string {
	t.Helper()
	data, ok := f.backend.File(testutils.ConfigPath)
	require.True(t, ok)
	cfg, err := xrayconf.Parse(testutils.ConfigPath, data)
	require.NoError(t, err)
	return cfg.ClientIDs()
}

func TestActivateTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uri, err := f.service.ActivateTrial(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "vless://u1@vpn.example.com:443?security=reality&flow="+testutils.Flow+
		"&pbk="+testutils.PublicKey+"&sid="+testutils.ShortID+"&sni="+testutils.ServerName+
		"&encryption=none&type=tcp#Ghostline", uri)
	assert.Equal(t, []string{"u1"}, f.clientIDs(t))
	assert.Equal(t, 1, f.backend.CommandCount(testutils.RestartCommand))

	acc, err := f.accounts.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, testutils.ServerName, acc.SNI)
	assert.Equal(t, 3, acc.DevicesLimit)
	assert.False(t, acc.IsBlocked)

	_, err = f.service.ActivateTrial(ctx, "u1")
	assert.ErrorIs(t, err, coreerrors.ErrTrialAlreadyUsed)
	assert.Equal(t, 1, f.backend.CommandCount(testutils.RestartCommand))
}

func TestActivatePaid_Renewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ActivatePaid(ctx, "u1", models.PlanOneMonth)
	require.NoError(t, err)
	_, err = f.service.ActivatePaid(ctx, "u1", models.PlanSixMonth)
	require.NoError(t, err)

	// 续费不重复写入客户端，也不重复重启
	assert.Equal(t, []string{"u1"}, f.clientIDs(t))
	assert.Equal(t, 1, f.backend.CommandCount(testutils.RestartCommand))

	all, err := f.accounts.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.service.ActivatePaid(ctx, "u1", "lifetime")
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeUnknownPlan))
}

func TestActivateAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ActivateAccess(ctx, "u1")
	assert.ErrorIs(t, err, coreerrors.ErrNoSubscription)
	assert.Empty(t, f.clientIDs(t))

	_, err = f.service.ActivateAccess(ctx, " ")
	assert.ErrorIs(t, err, coreerrors.ErrMissingParam)

	_, err = f.service.ActivatePaid(ctx, "u1", models.PlanOneMonth)
	require.NoError(t, err)
	_, err = f.service.Deprovision(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, f.clientIDs(t))

	uri, err := f.service.ActivateAccess(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, uri, "vless://u1@")
	assert.Equal(t, []string{"u1"}, f.clientIDs(t))
}

func TestActivateAccess_BlockedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ActivatePaid(ctx, "u1", models.PlanOneMonth)
	require.NoError(t, err)
	_, err = f.service.Deprovision(ctx, "u1")
	require.NoError(t, err)
	_, err = f.accounts.ToggleBlock(ctx, "u1", true)
	require.NoError(t, err)

	_, err = f.service.ActivateAccess(ctx, "u1")
	assert.ErrorIs(t, err, coreerrors.ErrAccountBlocked)
	assert.Empty(t, f.clientIDs(t))
}

func TestActivatePaid_LiftsBan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ActivateTrial(ctx, "u1")
	require.NoError(t, err)

	// 监控封禁：移出客户端列表并标记 blocked
	_, err = f.service.Deprovision(ctx, "u1")
	require.NoError(t, err)
	_, err = f.accounts.ToggleBlock(ctx, "u1", true)
	require.NoError(t, err)
	assert.Empty(t, f.clientIDs(t))

	uri, err := f.service.ActivatePaid(ctx, "u1", models.PlanOneMonth)
	require.NoError(t, err)
	assert.Contains(t, uri, "vless://u1@vpn.example.com:443?")

	acc, err := f.accounts.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, acc.IsBlocked)
	assert.Equal(t, []string{"u1"}, f.clientIDs(t))
}

func TestActivate_RestartFailureStillReturnsLink(t *testing.T) {
	f := newFixture(t)
	f.backend.FailCommand(testutils.RestartCommand, 1)

	uri, err := f.service.ActivateTrial(context.Background(), "u1")
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeRestartFailed))
	assert.Contains(t, uri, "vless://u1@")
	assert.Equal(t, []string{"u1"}, f.clientIDs(t))
}

func TestActivate_SNIFallback(t *testing.T) {
	f := newFixture(t)
	f.backend.SetFile(testutils.ConfigPath, []byte(`{"inbounds":[{"protocol":"vless","settings":{"clients":[]},"streamSettings":{"security":"reality","realitySettings":{"shortIds":["ab"]}}}]}`))
	ctx := context.Background()

	// 配置缺少 serverNames，链接生成失败但账户记录使用回退 SNI
	_, err := f.service.ActivateTrial(ctx, "u1")
	var incomplete *coreerrors.IncompleteLinkParamsError
	require.ErrorAs(t, err, &incomplete)
	assert.Contains(t, incomplete.Missing, "sni")

	acc, err := f.accounts.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "fallback.example.com", acc.SNI)
}

func TestSyncFromStore(t *testing.T) {
	f := newFixture(t, "stale")
	ctx := context.Background()

	_, err := f.service.ActivatePaid(ctx, "paid", models.PlanOneMonth)
	require.NoError(t, err)
	_, err = f.service.ActivateTrial(ctx, "blocked")
	require.NoError(t, err)
	_, err = f.accounts.ToggleBlock(ctx, "blocked", true)
	require.NoError(t, err)
	require.NoError(t, f.accounts.Create(ctx, &models.VpnAccount{UserID: "nosub", DevicesLimit: 3}))

	// 配置被外部覆盖后从库恢复
	require.NoError(t, f.backend.WriteFile(ctx, testutils.ConfigPath, testutils.XrayConfig("stale")))

	result, err := f.service.SyncFromStore(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"paid"}, result.Added)
	assert.ElementsMatch(t, []string{"stale", "paid"}, f.clientIDs(t))

	result, err = f.service.SyncFromStore(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, result.Removed)
	assert.Equal(t, []string{"paid"}, f.clientIDs(t))
}
