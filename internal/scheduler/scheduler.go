// Package scheduler 定时任务调度
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
)

// Job 定时任务
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Every 生成固定间隔的调度表达式
func Every(d time.Duration) string {
	return "@every " + d.String()
}

type registered struct {
	spec string
	job  Job
	id   cron.EntryID
}

// Scheduler 基于 cron 的调度器
//
// 同一任务不会与自己重叠执行（SkipIfStillRunning），任务 panic 被恢复并记录。
type Scheduler struct {
	cron    *cron.Cron
	logger  corelog.Logger
	metrics metrics.Metrics

	mu      sync.Mutex
	jobs    []*registered
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New 创建调度器，任务按 loc 时区调度
func New(loc *time.Location, logger corelog.Logger, m metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = corelog.Default()
	}
	if m == nil {
		m = metrics.NewMemoryMetrics()
	}
	logger = logger.WithField(corelog.FieldComponent, "scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		metrics: m,
	}
}

// Register 注册任务；必须在 Start 之前调用
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return coreerrors.New(coreerrors.CodeInvalidState, "scheduler already started")
	}
	r := &registered{spec: spec, job: job}
	id, err := s.cron.AddFunc(spec, func() { s.execute(r.job) })
	if err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeConfigError, "invalid schedule %q for job %s", spec, job.Name())
	}
	r.id = id
	s.jobs = append(s.jobs, r)
	s.logger.WithField(corelog.FieldJob, job.Name()).Infof("job registered: %s", spec)
	return nil
}

// Start 启动调度；runOnStart 时每个任务立即在后台执行一次
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()

	if runOnStart {
		for _, r := range s.jobs {
			s.wg.Add(1)
			go func(job Job) {
				defer s.wg.Done()
				s.execute(job)
			}(r.job)
		}
	}
	s.logger.Infof("scheduler started with %d jobs", len(s.jobs))
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infof("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Entries 已注册任务的下一次执行时间
func (s *Scheduler) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.jobs))
	for _, r := range s.jobs {
		out[r.job.Name()] = s.cron.Entry(r.id).Next
	}
	return out
}

func (s *Scheduler) execute(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	logger := s.logger.WithField(corelog.FieldJob, job.Name())
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	// 启动时的一次性执行与定时执行撞上时，任务自身的防重入会返回 CONFLICT
	if coreerrors.IsCode(err, coreerrors.CodeConflict) {
		logger.Debugf("job skipped: %v", err)
		return
	}

	_ = s.metrics.IncrementCounter(metrics.JobRuns, metrics.Labels("job", job.Name(), "result", metrics.Result(err)))
	if err != nil {
		logger.WithError(err).WithField(corelog.FieldDuration, elapsed.String()).Errorf("job failed")
		return
	}
	logger.WithField(corelog.FieldDuration, elapsed.String()).Debugf("job finished")
}

// cronLogger 把 cron 的日志转到 Logger
type cronLogger struct {
	logger corelog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debugf("cron: %s", msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Errorf("cron: %s", msg)
}

func kvFields(kv []interface{}) corelog.Fields {
	fields := make(corelog.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
