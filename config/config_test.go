package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":50051" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.PoolSize != 8 {
		t.Errorf("PoolSize = %d", cfg.PoolSize)
	}
	if cfg.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %s", cfg.CallTimeout)
	}
	if cfg.GracePeriod != 5*time.Second {
		t.Errorf("GracePeriod = %s", cfg.GracePeriod)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log settings = %q %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CALCRPC_ADDR", ":6000")
	t.Setenv("CALCRPC_POOL_SIZE", "4")
	t.Setenv("CALCRPC_STREAM_PACE", "250ms")
	t.Setenv("CALCRPC_LOG_FORMAT", "json")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":6000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("PoolSize = %d", cfg.PoolSize)
	}
	if cfg.StreamPace != 250*time.Millisecond {
		t.Errorf("StreamPace = %s", cfg.StreamPace)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}
