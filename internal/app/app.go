package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/monitor"
	"ghostline-core/internal/subscription"
	"ghostline-core/internal/xray/account"
)

const shutdownTimeout = 30 * time.Second

// App 已组装的应用
type App struct {
	deps   *Dependencies
	logger corelog.Logger
}

// Deps 返回依赖容器
func (a *App) Deps() *Dependencies {
	return a.deps
}

// Run 启动调度器和 HTTP API，阻塞到 ctx 取消后优雅关闭
func (a *App) Run(ctx context.Context) error {
	d := a.deps
	g, gctx := errgroup.WithContext(ctx)

	if d.Scheduler != nil {
		d.Scheduler.Start(gctx, d.Config.Scheduler.RunOnStart)
	}
	if d.API != nil {
		g.Go(func() error { return d.API.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Infof("shutting down")
		if d.Health != nil {
			d.Health.MarkDraining()
		}
		if d.Scheduler == nil {
			return nil
		}
		// 等待正在运行的任务结束，配置写入不会被中途打断
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return d.Scheduler.Stop(stopCtx)
	})

	a.logger.Infof("ghostline started (instance %s)", d.Instance)
	return g.Wait()
}

// Close 按初始化的逆序释放资源
func (a *App) Close() error {
	d := a.deps
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.fn(); err != nil {
			a.logger.WithError(err).Warnf("close %s failed", c.name)
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return coreerrors.Join(errs...)
}

// SyncFromStore 按库中数据校正代理配置
func (a *App) SyncFromStore(ctx context.Context, prune bool) (*account.ReconcileResult, error) {
	if err := mustHave(a.deps.Provision != nil, "provision"); err != nil {
		return nil, err
	}
	return a.deps.Provision.SyncFromStore(ctx, prune)
}

// RunMonitorCycle 执行一次设备数检查
func (a *App) RunMonitorCycle(ctx context.Context) (*monitor.CycleReport, error) {
	if err := mustHave(a.deps.Monitor != nil, "monitor"); err != nil {
		return nil, err
	}
	return a.deps.Monitor.RunCycle(ctx)
}

// RunExpiryScan 执行一次到期扫描
func (a *App) RunExpiryScan(ctx context.Context) (*subscription.ExpiryReport, error) {
	if err := mustHave(a.deps.Expiry != nil, "expiry"); err != nil {
		return nil, err
	}
	return a.deps.Expiry.Scan(ctx)
}
