// Package testutils 测试辅助：脚本化的执行后端和代理配置样例
package testutils

import (
	"context"
	"io/fs"
	"sort"
	"sync"

	coreerrors "ghostline-core/internal/core/errors"
	"ghostline-core/internal/executor"
)

var _ executor.Backend = (*FakeBackend)(nil)

// FakeBackend 内存文件系统 + 可编排的命令结果
//
// 未编排的命令返回空输出和 nil 错误。
type FakeBackend struct {
	mu       sync.Mutex
	files    map[string][]byte
	commands []string
	writes   map[string]int

	cmdErr   map[string]error
	cmdOut   map[string]string
	readErr  map[string]error
	writeErr map[string]error

	// OnWrite 在写入成功后回调，用于模拟写入与读取之间的并发修改
	OnWrite func(path string, content []byte)
	// OnRead 在读取开始时回调（早于 ctx 检查），可用来让读取停住
	OnRead func(path string)
}

// NewFakeBackend 创建空的 FakeBackend
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		files:    make(map[string][]byte),
		writes:   make(map[string]int),
		cmdErr:   make(map[string]error),
		cmdOut:   make(map[string]string),
		readErr:  make(map[string]error),
		writeErr: make(map[string]error),
	}
}

func (f *FakeBackend) Name() string { return "fake" }

func (f *FakeBackend) Close() error { return nil }

// SetFile 设置文件内容
func (f *FakeBackend) SetFile(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), content...)
}

// File 返回文件内容和是否存在
func (f *FakeBackend) File(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path]
	return append([]byte(nil), b...), ok
}

// SetCommandOutput 编排命令输出
func (f *FakeBackend) SetCommandOutput(cmd, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmdOut[cmd] = out
}

// FailCommand 让命令以 ExecutionError 失败；exitCode 为 0 时恢复正常
func (f *FakeBackend) FailCommand(cmd string, exitCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exitCode == 0 {
		delete(f.cmdErr, cmd)
		return
	}
	f.cmdErr[cmd] = &coreerrors.ExecutionError{Backend: "fake", Op: "run", Target: cmd, ExitCode: exitCode, Stderr: "scripted failure"}
}

// FailRead 让读取 path 返回 err
func (f *FakeBackend) FailRead(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.readErr, path)
		return
	}
	f.readErr[path] = err
}

// FailWrite 让写入 path 返回 err
func (f *FakeBackend) FailWrite(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.writeErr, path)
		return
	}
	f.writeErr[path] = err
}

// Commands 已执行的命令（按顺序）
func (f *FakeBackend) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// CommandCount 指定命令被执行的次数
func (f *FakeBackend) CommandCount(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

// WriteCount 对 path 的成功写入次数
func (f *FakeBackend) WriteCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[path]
}

// Paths 所有已知文件
func (f *FakeBackend) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.files))
	for p := range f.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (f *FakeBackend) RunCommand(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &coreerrors.ExecutionError{Backend: "fake", Op: "run", Target: cmd, ExitCode: -1, Cause: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if err := f.cmdErr[cmd]; err != nil {
		return "", err
	}
	return f.cmdOut[cmd], nil
}

func (f *FakeBackend) ReadFile(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	hook := f.OnRead
	f.mu.Unlock()
	if hook != nil {
		hook(path)
	}

	if err := ctx.Err(); err != nil {
		return nil, &coreerrors.ExecutionError{Backend: "fake", Op: "read", Target: path, ExitCode: -1, Cause: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[path]; err != nil {
		return nil, err
	}
	b, ok := f.files[path]
	if !ok {
		return nil, &coreerrors.ExecutionError{Backend: "fake", Op: "read", Target: path, ExitCode: -1, Cause: fs.ErrNotExist}
	}
	return append([]byte(nil), b...), nil
}

func (f *FakeBackend) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return &coreerrors.ExecutionError{Backend: "fake", Op: "write", Target: path, ExitCode: -1, Cause: err}
	}
	f.mu.Lock()
	if err := f.writeErr[path]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.files[path] = append([]byte(nil), content...)
	f.writes[path]++
	hook := f.OnWrite
	f.mu.Unlock()

	if hook != nil {
		hook(path, content)
	}
	return nil
}
