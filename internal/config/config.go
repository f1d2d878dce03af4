// Package config loads ZedLink settings from a YAML or JSON file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	RoleController = "controller"
	RoleTarget     = "target"
)

// Config is the root application configuration.
type Config struct {
	// Role is "controller" (owns the physical mouse) or "target" (receives
	// events and moves its own cursor).
	Role string `mapstructure:"role" yaml:"role"`

	// Name identifies this machine in handshakes and the status API.
	Name string `mapstructure:"name" yaml:"name"`

	Edge    EdgeConfig    `mapstructure:"edge" yaml:"edge"`
	Hotkey  HotkeyConfig  `mapstructure:"hotkey" yaml:"hotkey"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`

	// Tray shows the system tray icon.
	Tray bool `mapstructure:"tray" yaml:"tray"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// EdgeConfig controls when pointer control crosses to the target.
type EdgeConfig struct {
	// TriggerEdge is top, bottom, left or right.
	TriggerEdge    string `mapstructure:"trigger_edge" yaml:"trigger_edge"`
	TriggerDelayMS int    `mapstructure:"trigger_delay_ms" yaml:"trigger_delay_ms"`
	// ReturnMethod is opposite_edge or same_edge.
	ReturnMethod string `mapstructure:"return_method" yaml:"return_method"`
	ThresholdPX  int    `mapstructure:"threshold_px" yaml:"threshold_px"`
	SampleHz     int    `mapstructure:"sample_hz" yaml:"sample_hz"`
	StallAfterMS int    `mapstructure:"stall_after_ms" yaml:"stall_after_ms"`
}

func (e EdgeConfig) Delay() time.Duration { return ms(e.TriggerDelayMS) }

func (e EdgeConfig) Tick() time.Duration { return time.Second / time.Duration(e.SampleHz) }

func (e EdgeConfig) StallAfter() time.Duration { return ms(e.StallAfterMS) }

type HotkeyConfig struct {
	// Toggle is a combination such as "Ctrl+Alt+M". Escape is always bound.
	Toggle  string `mapstructure:"toggle" yaml:"toggle"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type NetworkConfig struct {
	// TargetHost and TargetPort name the target a controller dials.
	TargetHost string `mapstructure:"target_host" yaml:"target_host"`
	TargetPort int    `mapstructure:"target_port" yaml:"target_port"`

	// ListenAddr is where a target accepts its controller.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// Codec is json or cbor.
	Codec       string `mapstructure:"codec" yaml:"codec"`
	AutoConnect bool   `mapstructure:"auto_connect" yaml:"auto_connect"`

	ConnectTimeoutMS int `mapstructure:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	BackoffInitialMS int `mapstructure:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffMaxMS     int `mapstructure:"backoff_max_ms" yaml:"backoff_max_ms"`
	BackoffJitterMS  int `mapstructure:"backoff_jitter_ms" yaml:"backoff_jitter_ms"`

	// QueueSize bounds the outbound event queue.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// HeartbeatMS is how often an idle controller proves it is alive;
	// IdleTimeoutMS is how long a target waits before dropping a silent one.
	HeartbeatMS   int `mapstructure:"heartbeat_ms" yaml:"heartbeat_ms"`
	IdleTimeoutMS int `mapstructure:"idle_timeout_ms" yaml:"idle_timeout_ms"`

	// Takeover is reject or replace: what a target does with a second controller.
	Takeover string `mapstructure:"takeover" yaml:"takeover"`
}

// TargetAddr returns host:port of the configured target.
func (n NetworkConfig) TargetAddr() string {
	if n.TargetHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", n.TargetHost, n.TargetPort)
}

func (n NetworkConfig) ConnectTimeout() time.Duration { return ms(n.ConnectTimeoutMS) }

func (n NetworkConfig) Heartbeat() time.Duration { return ms(n.HeartbeatMS) }

func (n NetworkConfig) IdleTimeout() time.Duration { return ms(n.IdleTimeoutMS) }

type InputConfig struct {
	// MoveMode is absolute or relative.
	MoveMode    string  `mapstructure:"move_mode" yaml:"move_mode"`
	Sensitivity float64 `mapstructure:"sensitivity" yaml:"sensitivity"`
	// Grab selects the capture backend: auto, evdev, rawinput, eventtap or
	// warp. auto tries the native grabs available here, then warp.
	Grab string `mapstructure:"grab" yaml:"grab"`
	// Pointer selects the edge sampling source: robotgo or x11.
	Pointer string `mapstructure:"pointer" yaml:"pointer"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr or file paths
	Outputs     []string       `mapstructure:"outputs" yaml:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	host, _ := os.Hostname()
	return &Config{
		Role: RoleController,
		Name: host,
		Edge: EdgeConfig{
			TriggerEdge:    "right",
			TriggerDelayMS: 100,
			ReturnMethod:   "opposite_edge",
			ThresholdPX:    2,
			SampleHz:       100,
			StallAfterMS:   2000,
		},
		Hotkey: HotkeyConfig{
			Toggle:  "Ctrl+Alt+M",
			Enabled: true,
		},
		Network: NetworkConfig{
			TargetPort:       9876,
			ListenAddr:       ":9876",
			Codec:            "json",
			AutoConnect:      true,
			ConnectTimeoutMS: 5000,
			BackoffInitialMS: 500,
			BackoffMaxMS:     30000,
			BackoffJitterMS:  250,
			QueueSize:        1024,
			HeartbeatMS:      2000,
			IdleTimeoutMS:    10000,
			Takeover:         "reject",
		},
		Input: InputConfig{
			MoveMode:    "absolute",
			Sensitivity: 1.0,
			Grab:        "auto",
			Pointer:     "robotgo",
		},
		API: APIConfig{
			Enabled: true,
			Port:    18080,
		},
		Tray: true,
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				Filename:   "logs/zedlink.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// DefaultDir returns the per-user configuration directory.
func DefaultDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "ZedLink"), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "zedlink"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "zedlink"), nil
	}
}

// Load reads configuration from path when non-empty, otherwise it searches
// ./zedlink.yaml and the user config directory. Environment variables use the
// prefix ZEDLINK with dots replaced by underscores, e.g.
// ZEDLINK_NETWORK_TARGET_HOST.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ZEDLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	seedDefaults(v, cfg)

	if path == "" {
		path = os.Getenv("ZEDLINK_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "json" {
			v.SetConfigType("json")
		}
	} else {
		v.SetConfigName("zedlink")
		v.AddConfigPath(".")
		if dir, err := DefaultDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedDefaults registers every key with viper so env-only overrides work.
func seedDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("role", c.Role)
	v.SetDefault("name", c.Name)
	v.SetDefault("edge.trigger_edge", c.Edge.TriggerEdge)
	v.SetDefault("edge.trigger_delay_ms", c.Edge.TriggerDelayMS)
	v.SetDefault("edge.return_method", c.Edge.ReturnMethod)
	v.SetDefault("edge.threshold_px", c.Edge.ThresholdPX)
	v.SetDefault("edge.sample_hz", c.Edge.SampleHz)
	v.SetDefault("edge.stall_after_ms", c.Edge.StallAfterMS)
	v.SetDefault("hotkey.toggle", c.Hotkey.Toggle)
	v.SetDefault("hotkey.enabled", c.Hotkey.Enabled)
	v.SetDefault("network.target_host", c.Network.TargetHost)
	v.SetDefault("network.target_port", c.Network.TargetPort)
	v.SetDefault("network.listen_addr", c.Network.ListenAddr)
	v.SetDefault("network.codec", c.Network.Codec)
	v.SetDefault("network.auto_connect", c.Network.AutoConnect)
	v.SetDefault("network.connect_timeout_ms", c.Network.ConnectTimeoutMS)
	v.SetDefault("network.backoff_initial_ms", c.Network.BackoffInitialMS)
	v.SetDefault("network.backoff_max_ms", c.Network.BackoffMaxMS)
	v.SetDefault("network.backoff_jitter_ms", c.Network.BackoffJitterMS)
	v.SetDefault("network.queue_size", c.Network.QueueSize)
	v.SetDefault("network.heartbeat_ms", c.Network.HeartbeatMS)
	v.SetDefault("network.idle_timeout_ms", c.Network.IdleTimeoutMS)
	v.SetDefault("network.takeover", c.Network.Takeover)
	v.SetDefault("input.move_mode", c.Input.MoveMode)
	v.SetDefault("input.sensitivity", c.Input.Sensitivity)
	v.SetDefault("input.grab", c.Input.Grab)
	v.SetDefault("input.pointer", c.Input.Pointer)
	v.SetDefault("api.enabled", c.API.Enabled)
	v.SetDefault("api.port", c.API.Port)
	v.SetDefault("api.token", c.API.Token)
	v.SetDefault("tray", c.Tray)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.outputs", c.Log.Outputs)
	v.SetDefault("log.development", c.Log.Development)
	v.SetDefault("log.rotation.enable", c.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", c.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", c.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", c.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", c.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", c.Log.Rotation.Compress)
}

// Validate normalizes enumerations and checks numeric ranges.
func (c *Config) Validate() error {
	c.Role = lower(c.Role)
	c.Edge.TriggerEdge = lower(c.Edge.TriggerEdge)
	c.Edge.ReturnMethod = lower(c.Edge.ReturnMethod)
	c.Network.Codec = lower(c.Network.Codec)
	c.Network.Takeover = lower(c.Network.Takeover)
	c.Input.MoveMode = lower(c.Input.MoveMode)
	c.Input.Grab = lower(c.Input.Grab)
	c.Input.Pointer = lower(c.Input.Pointer)

	if err := oneOf("role", c.Role, RoleController, RoleTarget); err != nil {
		return err
	}
	if err := oneOf("edge.trigger_edge", c.Edge.TriggerEdge, "top", "bottom", "left", "right"); err != nil {
		return err
	}
	if err := oneOf("edge.return_method", c.Edge.ReturnMethod, "opposite_edge", "same_edge"); err != nil {
		return err
	}
	if err := between("edge.trigger_delay_ms", c.Edge.TriggerDelayMS, 50, 500); err != nil {
		return err
	}
	if err := between("edge.threshold_px", c.Edge.ThresholdPX, 1, 50); err != nil {
		return err
	}
	if err := between("edge.sample_hz", c.Edge.SampleHz, 100, 1000); err != nil {
		return err
	}
	if err := between("edge.stall_after_ms", c.Edge.StallAfterMS, 100, 60000); err != nil {
		return err
	}
	if err := between("network.target_port", c.Network.TargetPort, 1024, 65535); err != nil {
		return err
	}
	if err := between("network.connect_timeout_ms", c.Network.ConnectTimeoutMS, 1000, 30000); err != nil {
		return err
	}
	if c.Network.BackoffInitialMS <= 0 || c.Network.BackoffMaxMS < c.Network.BackoffInitialMS {
		return fmt.Errorf("invalid network backoff: initial %dms, max %dms",
			c.Network.BackoffInitialMS, c.Network.BackoffMaxMS)
	}
	if c.Network.BackoffJitterMS < 0 {
		return fmt.Errorf("invalid network.backoff_jitter_ms: %d", c.Network.BackoffJitterMS)
	}
	if err := between("network.queue_size", c.Network.QueueSize, 16, 65536); err != nil {
		return err
	}
	if err := between("network.heartbeat_ms", c.Network.HeartbeatMS, 250, 30000); err != nil {
		return err
	}
	if c.Network.IdleTimeoutMS < 2*c.Network.HeartbeatMS {
		return fmt.Errorf("invalid network.idle_timeout_ms: %d must be at least twice heartbeat_ms (%d)",
			c.Network.IdleTimeoutMS, c.Network.HeartbeatMS)
	}
	if err := oneOf("network.codec", c.Network.Codec, "json", "cbor"); err != nil {
		return err
	}
	if err := oneOf("network.takeover", c.Network.Takeover, "reject", "replace"); err != nil {
		return err
	}
	if err := oneOf("input.move_mode", c.Input.MoveMode, "absolute", "relative"); err != nil {
		return err
	}
	if c.Input.Sensitivity < 0.1 || c.Input.Sensitivity > 5.0 {
		return fmt.Errorf("invalid input.sensitivity: %g (want 0.1-5.0)", c.Input.Sensitivity)
	}
	if err := oneOf("input.grab", c.Input.Grab, "auto", "evdev", "rawinput", "eventtap", "warp"); err != nil {
		return err
	}
	if err := oneOf("input.pointer", c.Input.Pointer, "robotgo", "x11"); err != nil {
		return err
	}
	if c.API.Enabled {
		if err := between("api.port", c.API.Port, 1024, 65535); err != nil {
			return err
		}
	}

	switch lower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (want one of %s)", key, val, strings.Join(allowed, ", "))
}

func between(key string, val, lo, hi int) error {
	if val < lo || val > hi {
		return fmt.Errorf("invalid %s: %d (want %d-%d)", key, val, lo, hi)
	}
	return nil
}
