// internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the whole application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Viewport ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Layout   LayoutConfig   `mapstructure:"layout" yaml:"layout"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ViewportConfig describes the initial window a rendered page targets.
type ViewportConfig struct {
	Width            float32 `mapstructure:"width" yaml:"width"`
	Height           float32 `mapstructure:"height" yaml:"height"`
	DevicePixelRatio float32 `mapstructure:"device_pixel_ratio" yaml:"device_pixel_ratio"`
}

// LayoutConfig tunes the layout pipeline.
type LayoutConfig struct {
	// ChannelBuffer sizes each layout task's message channel.
	ChannelBuffer int `mapstructure:"channel_buffer" yaml:"channel_buffer"`
}

// setDefaults registers every default on v so a missing config file still
// yields a usable configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "servo")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)

	v.SetDefault("viewport.width", 800)
	v.SetDefault("viewport.height", 600)
	v.SetDefault("viewport.device_pixel_ratio", 1.0)

	v.SetDefault("layout.channel_buffer", 16)
}

// Load reads the configuration from cfgFile (or ./config.yaml when empty),
// layered under SERVO_* environment overrides and built-in defaults. A
// missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SERVO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration, with no file or environment
// input.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshalling pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
