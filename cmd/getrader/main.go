package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"getrader/internal/app"
	grcfg "getrader/internal/config"
	"getrader/internal/logger"
	"getrader/internal/registry"
	"getrader/internal/session"
	"getrader/internal/store"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "getrader",
		Short:         "GE-tax aware trading decision loop",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("GETRADER_CONFIG"), "config file path (env GETRADER_CONFIG)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and trading loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	})
	root.AddCommand(newSimulateCmd(&cfgPath))
	root.AddCommand(newModelsCmd(&cfgPath))
	return root
}

func newSimulateCmd(cfgPath *string) *cobra.Command {
	var (
		cycles   int
		seed     int64
		name     string
		training bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one session offline and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer closeLog()
			if cmd.Flags().Changed("seed") {
				cfg.Feed.Seed = seed
				cfg.Simulation.Seed = seed
			}
			ctx := cmd.Context()
			a, err := app.NewAppBuilder(cfg, app.WithoutHTTP()).Build(ctx)
			if err != nil {
				return fmt.Errorf("初始化应用失败: %w", err)
			}
			defer a.Close()
			rep, err := a.Engine().Simulate(ctx, session.CreateRequest{Name: name, Training: training}, cycles)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 10, "number of decision cycles")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override feed and simulation seeds")
	cmd.Flags().StringVar(&name, "name", "simulation", "session name")
	cmd.Flags().BoolVar(&training, "training", false, "bypass confidence and profit gates")
	return cmd
}

func newModelsCmd(cfgPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models ranked by efficiency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer closeLog()
			stores, err := store.Open(cfg.Store.Driver, cfg.Store.Path, cfg.Store.LearningLogPath)
			if err != nil {
				return err
			}
			defer stores.Close()
			list, err := registry.New(stores.Models, nil, nil).GetModelPerformanceComparison(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "max models to list")
	return cmd
}

func runServe(parent context.Context, cfgPath string) error {
	cfg, closeLog, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	defer closeLog()
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfg, cfgPath)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	return a.Run(ctx)
}

// loadConfig 读取配置；未指定路径时使用内置默认值。
func loadConfig(path string) (*grcfg.Config, func(), error) {
	var (
		cfg *grcfg.Config
		err error
	)
	if strings.TrimSpace(path) == "" {
		cfg = grcfg.Default()
	} else if cfg, err = grcfg.Load(path); err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	if path != "" {
		logger.Infof("✓ 配置加载成功（环境=%s，路径=%s）", cfg.App.Env, path)
	}
	closeLog := func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	return cfg, closeLog, nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
