// Package server ties a listening socket, the stream registry, and the
// engine-backed conn.Connection bridge together into a runnable RTMP
// server: every accepted connection gets its own engine/session pair and a
// policy that answers connect/publish/play requests by consulting the
// registry (single publisher per stream key, onStatus responses already
// built by the session package).
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/alxayo/go-rtmp/internal/logger"
	iclient "github.com/alxayo/go-rtmp/internal/rtmp/client"
	iconn "github.com/alxayo/go-rtmp/internal/rtmp/conn"
	"github.com/alxayo/go-rtmp/internal/rtmp/relay"
	"github.com/alxayo/go-rtmp/internal/rtmp/server/hooks"
	"github.com/alxayo/go-rtmp/internal/rtmp/session"
)

// Config holds server configuration knobs: everything session.Config needs
// plus the ambient settings (listen address, recording, log level) that sit
// above the protocol layer.
type Config struct {
	ListenAddr             string
	ChunkSize              uint32
	WindowAckSize          uint32
	PeerBandwidth          uint32
	PeerBandwidthLimitType uint8
	FMSVersion             string
	RecordAll              bool
	RecordDir              string
	LogLevel               string

	// HookStdioFormat, when "json" or "env", echoes every lifecycle event
	// (connect, publish, play, disconnect) to stderr in that format.
	HookStdioFormat string
	// HookWebhookURLs receives an HTTP POST of every lifecycle event, one
	// registered hook per URL.
	HookWebhookURLs []string

	// RelayDestinations are rtmp:// URLs every published stream's audio and
	// video is additionally pushed to, alongside this server's own
	// subscribers.
	RelayDestinations []string
}

// applyDefaults fills zero values with sensible defaults. Matches
// internal/config's split: ambient fields default quietly, protocol fields
// get the same defaults cmd/rtmp-server's flags already assumed.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":1935"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 4096
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = 2_500_000
	}
	if c.PeerBandwidth == 0 {
		c.PeerBandwidth = 2_500_000
	}
	if c.PeerBandwidthLimitType == 0 {
		c.PeerBandwidthLimitType = 2 // dynamic
	}
	if c.FMSVersion == "" {
		c.FMSVersion = "FMS/5,0,17,0"
	}
	if c.RecordDir == "" {
		c.RecordDir = "recordings"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c Config) sessionConfig() session.Config {
	return session.Config{
		ChunkSize:              c.ChunkSize,
		WindowAckSize:          c.WindowAckSize,
		PeerBandwidth:          c.PeerBandwidth,
		PeerBandwidthLimitType: c.PeerBandwidthLimitType,
		FMSVersion:             c.FMSVersion,
	}
}

// Server encapsulates listener + active connection tracking.
type Server struct {
	cfg   Config
	l     net.Listener
	log   *logger.Entry
	reg   *Registry
	hooks *hooks.HookManager

	relay *relay.DestinationManager

	mu          sync.RWMutex
	conns       map[string]*iconn.Connection
	acceptingWg sync.WaitGroup
	closing     bool
}

// New creates a new, unstarted Server instance.
func New(cfg Config) *Server {
	cfg.applyDefaults()
	log := logger.Logger().With("component", "rtmp_server")

	hookCfg := hooks.DefaultHookConfig()
	hookCfg.StdioFormat = cfg.HookStdioFormat
	hm := hooks.NewHookManager(hookCfg, log)
	for i, url := range cfg.HookWebhookURLs {
		hook := hooks.NewWebhookHook(fmt.Sprintf("webhook-%d", i), url, 10*time.Second)
		for _, evt := range lifecycleEventTypes {
			_ = hm.RegisterHook(evt, hook)
		}
	}

	var rm *relay.DestinationManager
	if len(cfg.RelayDestinations) > 0 {
		rm, _ = relay.NewDestinationManager(cfg.RelayDestinations, log, func(url string) (relay.RTMPClient, error) {
			return iclient.New(url)
		})
	}

	return &Server{
		cfg:   cfg,
		reg:   NewRegistry(),
		conns: make(map[string]*iconn.Connection),
		log:   log,
		hooks: hm,
		relay: rm,
	}
}

var lifecycleEventTypes = []hooks.EventType{
	hooks.EventConnectionAccept,
	hooks.EventConnectionClose,
	hooks.EventPublishStart,
	hooks.EventPublishStop,
	hooks.EventPlayStart,
	hooks.EventPlayStop,
}

// Start begins listening and launches the accept loop. Safe to call only
// once; repeated calls return an error.
func (s *Server) Start() error {
	if s == nil {
		return errors.New("nil server")
	}
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.l = ln
	s.mu.Unlock()

	s.log.Info("RTMP server listening", "addr", ln.Addr().String())
	s.acceptingWg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.acceptingWg.Done()
	for {
		s.mu.RLock()
		l := s.l
		s.mu.RUnlock()
		if l == nil {
			return
		}
		raw, err := l.Accept()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			return
		}

		st := newConnState(s.reg, &s.cfg, s.hooks, s.relay, s.log)
		c := iconn.New(raw, s.cfg.sessionConfig(), st.handle, s.log)
		st.conn = c

		s.mu.Lock()
		s.conns[c.ID()] = c
		s.mu.Unlock()
		s.log.Info("connection accepted", "conn_id", c.ID(), "remote", raw.RemoteAddr().String())
		s.hooks.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventConnectionAccept).WithConnID(c.ID()))

		go s.watchClose(c, st)
	}
}

// watchClose removes the connection from the registry once it disconnects.
func (s *Server) watchClose(c *iconn.Connection, st *connState) {
	<-c.Done()
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
	st.onDisconnect()
	s.hooks.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventConnectionClose).WithConnID(c.ID()))
}

// Stop gracefully shuts down the server: stops accepting new connections,
// closes all active ones, waits for the accept loop to exit.
func (s *Server) Stop() error {
	if s == nil {
		return errors.New("nil server")
	}
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	s.l = nil
	s.mu.Unlock()
	_ = l.Close()

	s.mu.RLock()
	for id, c := range s.conns {
		_ = c.Close()
		delete(s.conns, id)
	}
	s.mu.RUnlock()
	s.acceptingWg.Wait()
	_ = s.hooks.Close()
	if s.relay != nil {
		_ = s.relay.Close()
	}
	s.log.Info("RTMP server stopped")
	return nil
}

// Addr returns the bound listener address (nil if not started).
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// ConnectionCount returns the current number of tracked active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
