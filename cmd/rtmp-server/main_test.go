package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildServerConfig_FlagsOnly(t *testing.T) {
	cfg := &cliConfig{
		listenAddr: ":1936",
		logLevel:   "debug",
		recordDir:  "recordings",
		chunkSize:  8192,
	}

	srvCfg, err := buildServerConfig(cfg)
	if err != nil {
		t.Fatalf("buildServerConfig: %v", err)
	}
	if srvCfg.ListenAddr != ":1936" {
		t.Fatalf("expected listen addr from flags, got %q", srvCfg.ListenAddr)
	}
	if srvCfg.ChunkSize != 8192 {
		t.Fatalf("expected chunk size from flags, got %d", srvCfg.ChunkSize)
	}
	if srvCfg.WindowAckSize == 0 || srvCfg.PeerBandwidth == 0 || srvCfg.FMSVersion == "" {
		t.Fatalf("expected protocol defaults to be filled, got %+v", srvCfg)
	}
}

func TestBuildServerConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  listen_addr: ":1940"
  log_level: "warn"
session:
  chunk_size: 2048
  window_ack_size: 1000000
  peer_bandwidth: 1000000
  peer_bandwidth_limit_type: 1
  fms_version: "FMS/5,0,17,0"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := &cliConfig{
		configFile: path,
		recordAll:  true,
		recordDir:  "custom-recordings",
	}

	srvCfg, err := buildServerConfig(cfg)
	if err != nil {
		t.Fatalf("buildServerConfig: %v", err)
	}
	if srvCfg.ListenAddr != ":1940" {
		t.Fatalf("expected listen addr from file, got %q", srvCfg.ListenAddr)
	}
	if srvCfg.ChunkSize != 2048 {
		t.Fatalf("expected chunk size from file, got %d", srvCfg.ChunkSize)
	}
	if srvCfg.LogLevel != "warn" {
		t.Fatalf("expected log level from file, got %q", srvCfg.LogLevel)
	}
	if !srvCfg.RecordAll || srvCfg.RecordDir != "custom-recordings" {
		t.Fatalf("expected recording settings to stay CLI-driven, got %+v", srvCfg)
	}
}

func TestBuildServerConfig_CarriesRelayDestinations(t *testing.T) {
	cfg := &cliConfig{
		listenAddr:        ":1936",
		relayDestinations: []string{"rtmp://backup.example.com/live/key"},
	}

	srvCfg, err := buildServerConfig(cfg)
	if err != nil {
		t.Fatalf("buildServerConfig: %v", err)
	}
	if len(srvCfg.RelayDestinations) != 1 || srvCfg.RelayDestinations[0] != "rtmp://backup.example.com/live/key" {
		t.Fatalf("expected relay destinations carried through, got %v", srvCfg.RelayDestinations)
	}
}

func TestBuildServerConfig_MissingFile(t *testing.T) {
	cfg := &cliConfig{configFile: "/nonexistent/path/config.yaml"}
	if _, err := buildServerConfig(cfg); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestParseFlags_ConfigFlag(t *testing.T) {
	cfg, err := parseFlags([]string{"-config", "/tmp/foo.yaml"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.configFile != "/tmp/foo.yaml" {
		t.Fatalf("expected configFile set from flag, got %q", cfg.configFile)
	}
}
