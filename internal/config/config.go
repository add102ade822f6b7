package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取配置文件（含 include 链），应用默认值并校验。
// include 中的文件先于引用方合并，后合并的键覆盖先合并的键。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	chain := &includeChain{visited: make(map[string]bool), active: make(map[string]bool)}
	if err := chain.walk(abs); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range chain.files {
		if err := v.MergeConfigMap(chain.settings[file]); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	explicit := make(keySet)
	for _, key := range v.AllKeys() {
		explicit.mark(key)
	}
	cfg.applyDefaults(explicit)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// includeChain 深度优先展开 include，files 按合并顺序排列。
type includeChain struct {
	files    []string
	settings map[string]map[string]any
	visited  map[string]bool
	active   map[string]bool
}

func (c *includeChain) walk(path string) error {
	path = filepath.Clean(path)
	if c.active[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if c.visited[path] {
		return nil
	}
	c.active[path] = true
	defer delete(c.active, path)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	for _, inc := range v.GetStringSlice("include") {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := c.walk(inc); err != nil {
			return err
		}
	}

	settings := v.AllSettings()
	delete(settings, "include")
	if c.settings == nil {
		c.settings = make(map[string]map[string]any)
	}
	c.settings[path] = settings
	c.visited[path] = true
	c.files = append(c.files, path)
	return nil
}
