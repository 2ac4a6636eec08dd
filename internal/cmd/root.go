// Package cmd 提供 ghostline 的命令行入口
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"ghostline-core/internal/app"
	"ghostline-core/internal/config/loader"
	"ghostline-core/internal/config/schema"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/version"
)

// options 全局标志
type options struct {
	configFile string
	logLevel   string
	appEnv     string
}

// NewRootCommand 创建根命令及全部子命令
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ghostline",
		Short: "Ghostline - VPN access provisioning for Xray",
		Long: `Ghostline provisions VLESS/Reality access on an Xray proxy and enforces
subscriptions and device limits.

Quick Start:
  ghostline serve               Run scheduler and provisioning API
  ghostline link <userId>       Print the connection link for a user
  ghostline sync --prune        Rebuild the proxy client list from the database
  ghostline monitor             Run one device-limit check`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&opts.appEnv, "env", "", "Application environment, selects .env.{env}")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newLinkCmd(opts),
		newClientsCmd(opts),
		newMonitorCmd(opts),
		newExpireCmd(opts),
		newMigrateCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute 执行根命令
func Execute() {
	// 全局 panic recovery
	defer func() {
		if r := recover(); r != nil {
			corelog.Default().Errorf("FATAL: main goroutine panic recovered: %v", r)
			corelog.Default().Errorf("Stack trace:\n%s", string(debug.Stack()))
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(debug.Stack()))
			os.Exit(2)
		}
	}()

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		corelog.Close()
		os.Exit(1)
	}
	corelog.Close()
}

// loadConfig 加载配置并初始化日志
func (o *options) loadConfig() (*schema.Root, corelog.Logger, error) {
	cfg, err := loader.NewLoaderBuilder().
		WithConfigFile(o.configFile).
		WithAppEnv(o.appEnv).
		Build().
		Load()
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := corelog.Init(corelog.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withApp 组装应用、执行 fn 并释放资源
func (o *options) withApp(ctx context.Context, wire func(*app.Builder) *app.Builder, fn func(*app.App) error) error {
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return err
	}
	a, err := wire(app.NewBuilder(cfg, logger)).Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.WithError(cerr).Warnf("shutdown incomplete")
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
