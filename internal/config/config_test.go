package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":1935"
  log_level: debug
session:
  chunk_size: 4096
  window_ack_size: 2500000
  peer_bandwidth: 2500000
  fms_version: "FMS/5,0,17,0"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("expected log_level debug, got %q", cfg.Server.LogLevel)
	}
	if cfg.Session.ChunkSize != 4096 {
		t.Fatalf("expected chunk_size 4096, got %d", cfg.Session.ChunkSize)
	}
	sc := cfg.Session.ToSessionConfig()
	if sc.WindowAckSize != 2500000 {
		t.Fatalf("expected window ack size 2500000, got %d", sc.WindowAckSize)
	}
}

func TestLoad_DefaultsAppliedToServerOnly(t *testing.T) {
	path := writeConfig(t, `
session:
  chunk_size: 128
  window_ack_size: 5000000
  peer_bandwidth: 5000000
  fms_version: "FMS/5,0,17,0"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":1935" {
		t.Fatalf("expected default listen_addr, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Fatalf("expected default log_level, got %q", cfg.Server.LogLevel)
	}
}

func TestLoad_MissingRequiredSessionFieldsErrors(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":1935"
session:
  chunk_size: 4096
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing required session fields")
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, `
session:
  chunk_size: 4096
  window_ack_size: 2500000
  peer_bandwidth: 2500000
  fms_version: "FMS/5,0,17,0"
  bogus_field: true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field with KnownFields(true)")
	}
}

func TestLoad_InvalidBandwidthLimitTypeErrors(t *testing.T) {
	path := writeConfig(t, `
session:
  chunk_size: 4096
  window_ack_size: 2500000
  peer_bandwidth: 2500000
  peer_bandwidth_limit_type: 9
  fms_version: "FMS/5,0,17,0"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range peer_bandwidth_limit_type")
	}
}
