package config

import (
	"context"
	"fmt"
	"path/filepath"

	"getrader/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch 监听配置文件变更，每次写入后重新 Load 并回调 onChange。
// 解析失败时保留旧配置，只记录告警。阻塞直到 ctx 结束。
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if onChange == nil {
		return fmt.Errorf("config watch requires a callback")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigFile(abs)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", abs, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(abs)
		if err != nil {
			logger.Warnf("[config] reload %s ignored: %v", e.Name, err)
			return
		}
		logger.Infof("[config] reloaded %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	<-ctx.Done()
	return nil
}
