package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/model-collapse/panoptic-prep/cache"
	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
	"github.com/model-collapse/panoptic-prep/pipeline"
)

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

type ConvertConfig struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

type Config struct {
	Variant          string        `mapstructure:"variant"`
	Workers          int           `mapstructure:"workers"`
	LabelSuffix      string        `mapstructure:"label_suffix"`
	Input            string        `mapstructure:"input"`
	PolygonTolerance float64       `mapstructure:"polygon_tolerance"`
	Log              LogConfig     `mapstructure:"log"`
	Cache            cache.Config  `mapstructure:"cache"`
	Serve            ServeConfig   `mapstructure:"serve"`
	Convert          ConvertConfig `mapstructure:"convert"`
}

var GConf Config

// LoadConfig fills GConf from defaults, the optional YAML file at path and
// PANOPTIC_* environment variables, in increasing precedence.
func LoadConfig(path string) (err error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("panoptic")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err = v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err = v.Unmarshal(&GConf); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("variant", string(labels.RUGD))
	v.SetDefault("workers", 0)
	v.SetDefault("label_suffix", pipeline.DefaultLabelSuffix)
	v.SetDefault("input", string(pipeline.InputColor))
	v.SetDefault("polygon_tolerance", panoptic.DefaultTolerance)

	v.SetDefault("log.mode", "debug")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("serve.addr", "0.0.0.0:8093")

	v.SetDefault("convert.from", string(labels.RUGD))
	v.SetDefault("convert.to", string(labels.RELLIS))
}

func (c *Config) Validate() error {
	if _, err := labels.ParseVariant(c.Variant); err != nil {
		return err
	}
	if _, err := pipeline.ParseInput(c.Input); err != nil {
		return err
	}
	if c.PolygonTolerance < 0 {
		return errors.New("polygon_tolerance must not be negative")
	}
	if c.LabelSuffix == "" {
		return errors.New("label_suffix must not be empty")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when the cache is enabled")
	}
	return nil
}
