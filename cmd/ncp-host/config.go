package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"zigbee-ncp-host/internal/coordinator"
	"zigbee-ncp-host/internal/ezsp"
)

type Config struct {
	NCP struct {
		Port            string        `yaml:"port"`
		Baud            int           `yaml:"baud"`
		ResponseTimeout time.Duration `yaml:"response_timeout"`
		ResetTimeout    time.Duration `yaml:"reset_timeout"`
		AckTimeout      time.Duration `yaml:"ack_timeout"`
		MaxRetransmits  int           `yaml:"max_retransmits"`
		TickInterval    time.Duration `yaml:"tick_interval"`
		ProtocolVersion uint8         `yaml:"protocol_version"`
	} `yaml:"ncp"`
	Network struct {
		Channel          uint8         `yaml:"channel"`
		PanID            uint16        `yaml:"pan_id"`
		ExtPanID         string        `yaml:"extended_pan_id"`
		TxPower          int8          `yaml:"tx_power"`
		NetworkKey       string        `yaml:"network_key"`
		ManufacturerCode uint16        `yaml:"manufacturer_code"`
		UpTimeout        time.Duration `yaml:"up_timeout"`
	} `yaml:"network"`
	Stack struct {
		Config   map[string]uint16 `yaml:"config"`
		Policies map[string]uint8  `yaml:"policies"`
	} `yaml:"stack"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		Metrics        bool     `yaml:"metrics"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`
		Discovery   bool   `yaml:"discovery"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   struct {
			Path       string `yaml:"path"`
			MaxSizeMB  int    `yaml:"max_size_mb"`
			MaxBackups int    `yaml:"max_backups"`
			MaxAgeDays int    `yaml:"max_age_days"`
			Compress   bool   `yaml:"compress"`
		} `yaml:"file"`
	} `yaml:"log"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if c.NCP.Port == "" {
		return fmt.Errorf("ncp.port is required")
	}
	if c.NCP.Baud <= 0 {
		return fmt.Errorf("ncp.baud must be positive, got %d", c.NCP.Baud)
	}
	if c.Network.Channel < 11 || c.Network.Channel > 26 {
		return fmt.Errorf("network.channel must be 11-26, got %d", c.Network.Channel)
	}
	if c.Network.PanID == 0 || c.Network.PanID == 0xFFFF {
		return fmt.Errorf("network.pan_id must not be 0x0000 or 0xFFFF")
	}
	if _, err := c.coordinatorConfig(); err != nil {
		return err
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// coordinatorConfig translates the network and stack sections.
func (c *Config) coordinatorConfig() (coordinator.Config, error) {
	cfg := coordinator.Config{
		Channel:          c.Network.Channel,
		PanID:            c.Network.PanID,
		TxPower:          c.Network.TxPower,
		ProtocolVersion:  c.NCP.ProtocolVersion,
		ManufacturerCode: c.Network.ManufacturerCode,
		NetworkUpTimeout: c.Network.UpTimeout,
	}

	if c.Network.ExtPanID != "" {
		ext, err := ezsp.ParseEUI64(c.Network.ExtPanID)
		if err != nil {
			return cfg, fmt.Errorf("network.extended_pan_id: %w", err)
		}
		cfg.ExtPanID = ext
	}
	if c.Network.NetworkKey != "" {
		key, err := coordinator.ParseNetworkKey(c.Network.NetworkKey)
		if err != nil {
			return cfg, fmt.Errorf("network.network_key: %w", err)
		}
		cfg.NetworkKey = &key
	}

	if len(c.Stack.Config) > 0 {
		cfg.StackConfig = make(map[ezsp.ConfigID]uint16, len(c.Stack.Config))
		for name, v := range c.Stack.Config {
			id, ok := ezsp.ParseConfigID(name)
			if !ok {
				return cfg, fmt.Errorf("stack.config: unknown config value %q", name)
			}
			cfg.StackConfig[id] = v
		}
	}
	if len(c.Stack.Policies) > 0 {
		cfg.Policies = make(map[ezsp.PolicyID]ezsp.DecisionID, len(c.Stack.Policies))
		for name, v := range c.Stack.Policies {
			id, ok := ezsp.ParsePolicyID(name)
			if !ok {
				return cfg, fmt.Errorf("stack.policies: unknown policy %q", name)
			}
			cfg.Policies[id] = ezsp.DecisionID(v)
		}
	}
	return cfg, nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.NCP.Baud == 0 {
		cfg.NCP.Baud = 115200
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "ncp-host.db"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "ncp-host"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.File.MaxSizeMB == 0 {
		cfg.Log.File.MaxSizeMB = 10
	}
	return &cfg, nil
}

// newLogger builds the process logger. With log.file.path set, output goes
// to stderr and a size-rotated file.
func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.Log.File.Path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Log.File.Path,
			MaxSize:    cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAge:     cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		})
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
