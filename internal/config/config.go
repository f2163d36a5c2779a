// Package config loads the server's YAML configuration file: everything the
// session processor needs (chunk size, window acknowledgement size, peer
// bandwidth, FMS version string) plus the ambient server settings (listen
// address, log level) that don't belong in the protocol layer.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alxayo/go-rtmp/internal/rtmp/session"
)

// Config holds the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
}

// ServerConfig defines process-level settings that have sane defaults —
// nothing here changes wire behavior, so it's fine to fall back quietly.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// SessionConfig mirrors session.Config field-for-field. Every field is
// required: the protocol layer has no safe default for chunk size, window
// acknowledgement size, peer bandwidth, or the advertised FMS version, so an
// absent field is a configuration error rather than something to paper over.
type SessionConfig struct {
	ChunkSize              uint32 `yaml:"chunk_size"`
	WindowAckSize          uint32 `yaml:"window_ack_size"`
	PeerBandwidth          uint32 `yaml:"peer_bandwidth"`
	PeerBandwidthLimitType uint8  `yaml:"peer_bandwidth_limit_type"`
	FMSVersion             string `yaml:"fms_version"`
}

// ToSessionConfig converts the loaded configuration into the type
// internal/rtmp/session and internal/rtmp/engine actually consume.
func (s SessionConfig) ToSessionConfig() session.Config {
	return session.Config{
		ChunkSize:              s.ChunkSize,
		WindowAckSize:          s.WindowAckSize,
		PeerBandwidth:          s.PeerBandwidth,
		PeerBandwidthLimitType: s.PeerBandwidthLimitType,
		FMSVersion:             s.FMSVersion,
	}
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Server.setDefaults()
	if err := cfg.Session.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServerConfig) setDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":1935"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (s SessionConfig) validate() error {
	var missing []string
	if s.ChunkSize == 0 {
		missing = append(missing, "session.chunk_size")
	}
	if s.WindowAckSize == 0 {
		missing = append(missing, "session.window_ack_size")
	}
	if s.PeerBandwidth == 0 {
		missing = append(missing, "session.peer_bandwidth")
	}
	if s.FMSVersion == "" {
		missing = append(missing, "session.fms_version")
	}
	if s.PeerBandwidthLimitType > 2 {
		return fmt.Errorf("config: session.peer_bandwidth_limit_type must be 0 (hard), 1 (soft), or 2 (dynamic), got %d", s.PeerBandwidthLimitType)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
