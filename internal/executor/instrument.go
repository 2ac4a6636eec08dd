package executor

import (
	"context"
	"time"

	"ghostline-core/internal/core/metrics"
)

// instrumented records call counts and latency per backend operation
type instrumented struct {
	Backend
	m metrics.Metrics
}

// Instrument wraps b so every call is counted and timed
func Instrument(b Backend, m metrics.Metrics) Backend {
	return &instrumented{Backend: b, m: m}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	labels := metrics.Labels("backend", i.Backend.Name(), "op", op)
	_ = i.m.ObserveHistogram(metrics.ExecutorDuration, time.Since(start).Seconds(), labels)
	_ = i.m.IncrementCounter(metrics.ExecutorCommands,
		metrics.Labels("backend", i.Backend.Name(), "op", op, "result", metrics.Result(err)))
}

func (i *instrumented) RunCommand(ctx context.Context, cmd string) (string, error) {
	start := time.Now()
	out, err := i.Backend.RunCommand(ctx, cmd)
	i.observe("run", start, err)
	return out, err
}

func (i *instrumented) ReadFile(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := i.Backend.ReadFile(ctx, path)
	i.observe("read", start, err)
	return data, err
}

func (i *instrumented) WriteFile(ctx context.Context, path string, content []byte) error {
	start := time.Now()
	err := i.Backend.WriteFile(ctx, path, content)
	i.observe("write", start, err)
	return err
}
