package server

// connState holds the per-connection bookkeeping the server layer needs on
// top of session.State: which stream this connection is publishing (if
// any), its media counters, and its codec detector. Everything about
// connect/createStream/publish/play negotiation itself — onStatus payloads,
// stage tracking — already lives in internal/rtmp/session; this type only
// decides what the registry should do once a request is accepted.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alxayo/go-rtmp/internal/logger"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
	iconn "github.com/alxayo/go-rtmp/internal/rtmp/conn"
	"github.com/alxayo/go-rtmp/internal/rtmp/media"
	"github.com/alxayo/go-rtmp/internal/rtmp/relay"
	"github.com/alxayo/go-rtmp/internal/rtmp/server/hooks"
	"github.com/alxayo/go-rtmp/internal/rtmp/session"
)

type connState struct {
	reg   *Registry
	cfg   *Config
	hooks *hooks.HookManager
	relay *relay.DestinationManager
	log   *logger.Entry

	conn *iconn.Connection

	app           string
	streamKey     string
	mediaLogger   *MediaLogger
	codecDetector *media.CodecDetector
}

func newConnState(reg *Registry, cfg *Config, hm *hooks.HookManager, rm *relay.DestinationManager, log *logger.Entry) *connState {
	return &connState{
		reg:           reg,
		cfg:           cfg,
		hooks:         hm,
		relay:         rm,
		log:           log,
		codecDetector: &media.CodecDetector{},
	}
}

// handle is the conn.EventHandler installed on every accepted connection.
func (st *connState) handle(c *iconn.Connection, ev session.Event) {
	switch ev.Kind {
	case session.EventConnectionRequested:
		st.app = ev.AppName
		c.Accept(ev.RequestID)

	case session.EventPublishRequested:
		st.handlePublish(c, ev)

	case session.EventPlayRequested:
		st.handlePlay(c, ev)

	case session.EventPeerChunkSizeChanged:
		st.log.Debug("peer chunk size changed", "conn_id", c.ID(), "size", ev.Size)

	case session.EventMediaFrame:
		st.handleMediaFrame(ev)
	}
}

func (st *connState) handlePublish(c *iconn.Connection, ev session.Event) {
	stream, _ := st.reg.CreateStream(ev.StreamKey)
	if stream == nil {
		c.Reject(ev.RequestID, "failed to create stream")
		return
	}
	if err := stream.SetPublisher(c); err != nil {
		c.Reject(ev.RequestID, err.Error())
		return
	}

	st.streamKey = ev.StreamKey
	st.mediaLogger = NewMediaLogger(c.ID(), st.log, 30*time.Second)
	c.Accept(ev.RequestID)
	st.hooks.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventPublishStart).WithConnID(c.ID()).WithStreamKey(ev.StreamKey))

	if st.cfg.RecordAll {
		if err := initRecorder(stream, st.cfg.RecordDir, st.log); err != nil {
			st.log.Error("failed to create recorder", "error", err, "stream_key", ev.StreamKey)
		} else {
			st.log.Info("recording started", "stream_key", ev.StreamKey, "record_dir", st.cfg.RecordDir)
		}
	}
}

func (st *connState) handlePlay(c *iconn.Connection, ev session.Event) {
	stream := st.reg.GetStream(ev.StreamKey)
	if stream == nil || stream.Publisher == nil {
		c.Reject(ev.RequestID, fmt.Sprintf("Stream %s not found.", ev.StreamKey))
		return
	}
	stream.AddSubscriber(c)
	st.streamKey = ev.StreamKey
	c.Accept(ev.RequestID)
	st.hooks.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventPlayStart).WithConnID(c.ID()).WithStreamKey(ev.StreamKey))

	if stream.VideoSequenceHeader != nil {
		_ = c.SendMessage(stream.VideoSequenceHeader)
	}
	if stream.AudioSequenceHeader != nil {
		_ = c.SendMessage(stream.AudioSequenceHeader)
	}
}

func (st *connState) handleMediaFrame(ev session.Event) {
	msg := &chunk.Message{
		CSID:            mediaCSID(ev.MediaTypeID),
		TypeID:          ev.MediaTypeID,
		Timestamp:       ev.MediaTime,
		MessageStreamID: ev.MediaStreamID,
		MessageLength:   uint32(len(ev.MediaPayload)),
		Payload:         ev.MediaPayload,
	}

	if st.mediaLogger != nil {
		st.mediaLogger.ProcessMessage(msg)
	}

	if st.streamKey == "" {
		return
	}
	stream := st.reg.GetStream(st.streamKey)
	if stream == nil {
		return
	}
	if stream.Recorder != nil {
		stream.Recorder.WriteMessage(msg)
	}
	stream.BroadcastMessage(st.codecDetector, msg, st.log)
	if st.relay != nil {
		st.relay.RelayMessage(msg)
	}
}

// onDisconnect clears this connection's publisher/subscriber registrations
// and stops its media logger. Called once by server.watchClose.
func (st *connState) onDisconnect() {
	wasPublisher := st.mediaLogger != nil
	if st.mediaLogger != nil {
		st.mediaLogger.Stop()
	}
	if st.streamKey == "" || st.conn == nil {
		return
	}
	stream := st.reg.GetStream(st.streamKey)
	if stream == nil {
		return
	}
	stream.mu.Lock()
	if stream.Publisher == st.conn {
		stream.Publisher = nil
	}
	stream.mu.Unlock()
	stream.RemoveSubscriber(st.conn)
	if stream.Publisher == nil {
		cleanupRecorder(st.reg, st.streamKey, st.log)
	}

	evt := hooks.EventPlayStop
	if wasPublisher {
		evt = hooks.EventPublishStop
	}
	st.hooks.TriggerEvent(context.Background(), *hooks.NewEvent(evt).WithConnID(st.conn.ID()).WithStreamKey(st.streamKey))
}

// mediaCSID picks the chunk stream for a relayed media message: audio (8)
// uses 4, video (9) uses 6. This differs from
// internal/rtmp/message.DefaultChunkStreamID, which puts video on 5.
func mediaCSID(typeID uint8) uint32 {
	if typeID == 8 {
		return 4
	}
	return 6
}

// initRecorder creates and initializes a recorder for the given stream.
func initRecorder(stream *Stream, recordDir string, log *logger.Entry) error {
	if stream == nil {
		return fmt.Errorf("nil stream")
	}
	if err := os.MkdirAll(recordDir, 0755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	safeKey := strings.ReplaceAll(stream.Key, "/", "_")
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.flv", safeKey, timestamp)
	path := filepath.Join(recordDir, filename)

	recorder, err := media.NewRecorder(path, log)
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}

	stream.mu.Lock()
	stream.Recorder = recorder
	stream.mu.Unlock()

	log.Info("recorder initialized", "stream_key", stream.Key, "file", path)
	return nil
}

// cleanupRecorder closes and removes the recorder for the given stream key.
func cleanupRecorder(reg *Registry, streamKey string, log *logger.Entry) {
	if reg == nil || streamKey == "" {
		return
	}
	stream := reg.GetStream(streamKey)
	if stream == nil {
		return
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.Recorder != nil {
		if err := stream.Recorder.Close(); err != nil {
			log.Error("recorder close error", "error", err, "stream_key", streamKey)
		} else {
			log.Info("recorder closed", "stream_key", streamKey)
		}
		stream.Recorder = nil
	}
}
