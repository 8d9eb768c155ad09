// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/log"
)

// GlobalConfig is the top-level static configuration. Maps to the `schc:`
// root key in YAML; env vars use the SCHC_ prefix (e.g. SCHC_LOG_LEVEL).
type GlobalConfig struct {
	Rules   RulesConfig      `mapstructure:"rules"`
	Capture CaptureConfig    `mapstructure:"capture"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
	Log     log.LoggerConfig `mapstructure:"log"`
}

// RulesConfig locates the shared rule set.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// CaptureConfig configures the packet source feeding the compressor.
type CaptureConfig struct {
	Source    string `mapstructure:"source"`    // file | afpacket
	File      string `mapstructure:"file"`      // pcap path when source=file
	Interface string `mapstructure:"interface"` // device when source=afpacket
	SnapLen   int    `mapstructure:"snaplen"`
	Ports     []int  `mapstructure:"ports"`     // UDP ports admitted by the filter; empty = all UDP
	Direction string `mapstructure:"direction"` // up | down
	Stack     string `mapstructure:"stack"`     // ipv6-udp-coap | ipv4-udp
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// configRoot is the top-level wrapper matching the YAML structure `schc: ...`.
type configRoot struct {
	SCHC GlobalConfig `mapstructure:"schc"`
}

// Load loads configuration from file, merging environment overrides and
// defaults, and validates the result.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// The `schc.` key prefix maps to SCHC_ env vars through the key replacer
	// (e.g. key "schc.log.level" -> env "SCHC_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.SCHC

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values. All keys use the "schc." prefix to match
// the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("schc.log.level", "info")
	v.SetDefault("schc.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("schc.log.time", "2006-01-02 15:04:05.000")

	v.SetDefault("schc.metrics.enabled", true)
	v.SetDefault("schc.metrics.listen", ":9091")
	v.SetDefault("schc.metrics.path", "/metrics")

	v.SetDefault("schc.capture.source", "file")
	v.SetDefault("schc.capture.snaplen", 65535)
	v.SetDefault("schc.capture.direction", "up")
	v.SetDefault("schc.capture.stack", "ipv6-udp-coap")
}

// Validate checks cross-field constraints after unmarshalling.
func (cfg *GlobalConfig) Validate() error {
	if cfg.Rules.Path == "" {
		return fmt.Errorf("%w: rules.path is required", core.ErrConfigInvalid)
	}
	switch cfg.Capture.Source {
	case "file":
		if cfg.Capture.File == "" {
			return fmt.Errorf("%w: capture.file is required when capture.source=file", core.ErrConfigInvalid)
		}
	case "afpacket":
		if cfg.Capture.Interface == "" {
			return fmt.Errorf("%w: capture.interface is required when capture.source=afpacket", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown capture.source %q (must be file or afpacket)", core.ErrConfigInvalid, cfg.Capture.Source)
	}
	switch cfg.Capture.Direction {
	case "up", "down":
	default:
		return fmt.Errorf("%w: unknown capture.direction %q (must be up or down)", core.ErrConfigInvalid, cfg.Capture.Direction)
	}
	switch cfg.Capture.Stack {
	case "ipv6-udp-coap", "ipv4-udp":
	default:
		return fmt.Errorf("%w: unknown capture.stack %q", core.ErrConfigInvalid, cfg.Capture.Stack)
	}
	for _, p := range cfg.Capture.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("%w: capture port %d out of range", core.ErrConfigInvalid, p)
		}
	}
	return nil
}
