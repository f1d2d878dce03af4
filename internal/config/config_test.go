package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid, got %v", err)
	}
	if cfg.Edge.Delay() != 100*time.Millisecond {
		t.Errorf("Expected 100ms delay, got %v", cfg.Edge.Delay())
	}
	if cfg.Edge.Tick() != 10*time.Millisecond {
		t.Errorf("Expected 10ms tick, got %v", cfg.Edge.Tick())
	}
	if cfg.Network.TargetAddr() != "" {
		t.Errorf("Expected empty target address, got %q", cfg.Network.TargetAddr())
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"delay too short", func(c *Config) { c.Edge.TriggerDelayMS = 49 }, "edge.trigger_delay_ms"},
		{"delay too long", func(c *Config) { c.Edge.TriggerDelayMS = 501 }, "edge.trigger_delay_ms"},
		{"delay lower bound", func(c *Config) { c.Edge.TriggerDelayMS = 50 }, ""},
		{"delay upper bound", func(c *Config) { c.Edge.TriggerDelayMS = 500 }, ""},
		{"threshold zero", func(c *Config) { c.Edge.ThresholdPX = 0 }, "edge.threshold_px"},
		{"threshold too big", func(c *Config) { c.Edge.ThresholdPX = 51 }, "edge.threshold_px"},
		{"sample rate too slow", func(c *Config) { c.Edge.SampleHz = 99 }, "edge.sample_hz"},
		{"sample rate lower bound", func(c *Config) { c.Edge.SampleHz = 100 }, ""},
		{"sample rate too fast", func(c *Config) { c.Edge.SampleHz = 1001 }, "edge.sample_hz"},
		{"heartbeat too fast", func(c *Config) { c.Network.HeartbeatMS = 100 }, "network.heartbeat_ms"},
		{"idle shorter than two heartbeats", func(c *Config) { c.Network.IdleTimeoutMS = 3000 }, "network.idle_timeout_ms"},
		{"privileged port", func(c *Config) { c.Network.TargetPort = 80 }, "network.target_port"},
		{"sensitivity low", func(c *Config) { c.Input.Sensitivity = 0.05 }, "input.sensitivity"},
		{"sensitivity high", func(c *Config) { c.Input.Sensitivity = 5.5 }, "input.sensitivity"},
		{"bad edge", func(c *Config) { c.Edge.TriggerEdge = "middle" }, "edge.trigger_edge"},
		{"edge case folded", func(c *Config) { c.Edge.TriggerEdge = " Left " }, ""},
		{"bad return", func(c *Config) { c.Edge.ReturnMethod = "any" }, "edge.return_method"},
		{"bad codec", func(c *Config) { c.Network.Codec = "xml" }, "network.codec"},
		{"bad takeover", func(c *Config) { c.Network.Takeover = "share" }, "network.takeover"},
		{"bad role", func(c *Config) { c.Role = "host" }, "role"},
		{"bad backoff", func(c *Config) { c.Network.BackoffMaxMS = 10 }, "backoff"},
		{"bad grab", func(c *Config) { c.Input.Grab = "uinput" }, "input.grab"},
		{"rawinput grab", func(c *Config) { c.Input.Grab = "rawinput" }, ""},
		{"eventtap grab", func(c *Config) { c.Input.Grab = "eventtap" }, ""},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"api port ignored when disabled", func(c *Config) { c.API.Enabled = false; c.API.Port = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zedlink.yaml")
	data := `
role: controller
edge:
  trigger_edge: left
  trigger_delay_ms: 200
network:
  target_host: 10.0.0.2
  codec: cbor
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ZEDLINK_NETWORK_TARGET_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Edge.TriggerEdge != "left" {
		t.Errorf("Expected left, got %s", cfg.Edge.TriggerEdge)
	}
	if cfg.Edge.Delay() != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %v", cfg.Edge.Delay())
	}
	if cfg.Network.Codec != "cbor" {
		t.Errorf("Expected cbor, got %s", cfg.Network.Codec)
	}
	if got := cfg.Network.TargetAddr(); got != "10.0.0.2:9999" {
		t.Errorf("Expected 10.0.0.2:9999, got %s", got)
	}
	if cfg.Edge.ThresholdPX != 2 {
		t.Errorf("Expected default threshold 2, got %d", cfg.Edge.ThresholdPX)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("edge:\n  trigger_delay_ms: 5000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for 5000ms delay")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "zedlink.yaml")
	cfg := Default()
	cfg.Network.TargetHost = "192.168.1.100"
	cfg.Input.MoveMode = "relative"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Network.TargetHost != "192.168.1.100" {
		t.Errorf("Expected target host to survive, got %q", loaded.Network.TargetHost)
	}
	if loaded.Input.MoveMode != "relative" {
		t.Errorf("Expected relative, got %s", loaded.Input.MoveMode)
	}
}
