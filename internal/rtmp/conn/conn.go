// Package conn bridges a net.Conn to an internal/rtmp/engine.Engine: it owns
// the socket, the engine owns everything about the RTMP protocol. Handshake,
// control burst, and command dispatch all now live inside engine/session —
// this package's only job is pumping bytes in one direction and out the
// other, and applying a policy to the requests the engine surfaces for
// application decision.
package conn

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/go-rtmp/internal/logger"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmp/internal/rtmp/engine"
	"github.com/alxayo/go-rtmp/internal/rtmp/session"
)

// EventHandler reacts to engine events for one connection. It's invoked from
// the connection's own event pump goroutine, never concurrently with itself.
// Implementations that need to answer a request (accept/reject) call back
// into the *Connection passed alongside — see DefaultPolicy for the
// accept-everything behavior a bare server installs absent anything fancier.
type EventHandler func(c *Connection, ev session.Event)

// DefaultPolicy accepts every connect/publish/play request unconditionally
// and logs media frames and peer chunk-size changes at debug level. It's the
// policy cmd/rtmp-server wires in until an application supplies its own.
func DefaultPolicy(c *Connection, ev session.Event) {
	switch ev.Kind {
	case session.EventConnectionRequested:
		c.log.Info("accepting connect", "app", ev.AppName)
		c.Accept(ev.RequestID)
	case session.EventPublishRequested:
		c.log.Info("accepting publish", "stream_key", ev.StreamKey, "type", ev.PublishingType)
		c.Accept(ev.RequestID)
	case session.EventPlayRequested:
		c.log.Info("accepting play", "stream_key", ev.StreamKey)
		c.Accept(ev.RequestID)
	case session.EventPeerChunkSizeChanged:
		c.log.Debug("peer chunk size changed", "size", ev.Size)
	case session.EventMediaFrame:
		c.log.Debug("media frame", "stream_id", ev.MediaStreamID, "type_id", ev.MediaTypeID, "bytes", len(ev.MediaPayload))
	}
}

// Connection is one accepted RTMP connection: a socket, the engine driving
// it, and the goroutines pumping bytes and events between them.
type Connection struct {
	id         string
	netConn    net.Conn
	remoteAddr net.Addr
	acceptedAt time.Time
	log        *logger.Entry

	eng     *engine.Engine
	handler EventHandler

	writeMu sync.Mutex
	sendCh  chan []*chunk.Message

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// ID returns the logical connection id.
func (c *Connection) ID() string { return c.id }

// NetConn exposes the underlying net.Conn.
func (c *Connection) NetConn() net.Conn { return c.netConn }

// RemoteAddr reports the peer's address.
func (c *Connection) RemoteAddr() net.Addr { return c.remoteAddr }

// AcceptedAt reports when the connection was accepted.
func (c *Connection) AcceptedAt() time.Time { return c.acceptedAt }

// Engine exposes the underlying engine, mostly useful for tests.
func (c *Connection) Engine() *engine.Engine { return c.eng }

// Done reports when the connection has fully torn down (Close called, or a
// read/write failure triggered it internally).
func (c *Connection) Done() <-chan struct{} { return c.done }

// Accept accepts a pending request surfaced as an event and writes the
// resulting response bytes straight to the socket.
func (c *Connection) Accept(requestID uint64) {
	msgs, err := c.eng.AcceptRequest(requestID)
	if err != nil {
		c.log.Warn("accept_request failed", "request_id", requestID, "error", err)
		return
	}
	c.flushMessages(msgs)
}

// Reject rejects a pending request and writes the resulting response bytes.
func (c *Connection) Reject(requestID uint64, reason string) {
	msgs, err := c.eng.RejectRequest(requestID, reason)
	if err != nil {
		c.log.Warn("reject_request failed", "request_id", requestID, "error", err)
		return
	}
	c.flushMessages(msgs)
}

func (c *Connection) flushMessages(msgs []*chunk.Message) {
	if len(msgs) == 0 {
		return
	}
	if err := c.SendMessages(msgs...); err != nil {
		c.log.Warn("send failed", "error", err)
	}
}

// SendMessage chunks and writes a single message to the peer, blocking up to
// sendTimeout. It's the exact method media.Subscriber requires, so a
// *Connection can sit directly in a server.Stream's subscriber list.
func (c *Connection) SendMessage(msg *chunk.Message) error {
	return c.SendMessages(msg)
}

// SendMessages is SendMessage's batch form, used to flush an
// AcceptRequest/RejectRequest result (often more than one *chunk.Message) as
// a single write.
func (c *Connection) SendMessages(msgs ...*chunk.Message) error {
	select {
	case c.sendCh <- msgs:
	case <-time.After(sendTimeout):
		return fmt.Errorf("conn %s: send timed out after %s", c.id, sendTimeout)
	case <-c.done:
		return fmt.Errorf("conn %s: closed", c.id)
	}
	return nil
}

// TrySendMessage is the non-blocking counterpart media.TrySendMessage
// prefers when relaying to many subscribers: a slow reader drops the frame
// instead of stalling the publisher's relay loop.
func (c *Connection) TrySendMessage(msg *chunk.Message) bool {
	select {
	case c.sendCh <- []*chunk.Message{msg}:
		return true
	default:
		return false
	}
}

const sendTimeout = 200 * time.Millisecond

func (c *Connection) sendPump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msgs := <-c.sendCh:
			data, err := c.eng.WriteAndDrain(msgs)
			if err != nil {
				c.log.Warn("write_and_drain failed", "error", err)
				continue
			}
			c.writeRaw(data)
		}
	}
}

func (c *Connection) writeRaw(data []byte) {
	if len(data) == 0 {
		return
	}
	c.writeMu.Lock()
	_, err := c.netConn.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn("write failed", "error", err)
		c.Close()
	}
}

// Close tears down the connection: closes the engine (unblocking any
// goroutine feeding or reading it) and the socket, then waits for the pump
// goroutines to exit.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.eng.Close()
		err = c.netConn.Close()
	})
	c.wg.Wait()
	return err
}

// New wraps an already-accepted net.Conn with an engine and starts the read
// pump (net.Conn -> engine.FeedInbound), the write pump
// (engine.OutboundReady -> net.Conn.Write), and the event pump
// (engine.Events -> handler). Handshake bytes queued by engine.New are
// flushed to the socket before New returns.
func New(nc net.Conn, cfg session.Config, handler EventHandler, log *logger.Entry) *Connection {
	if log == nil {
		log = logger.Logger()
	}
	if handler == nil {
		handler = DefaultPolicy
	}
	id := nextID()
	clog := logger.WithConn(log, id, nc.RemoteAddr().String())

	c := &Connection{
		id:         id,
		netConn:    nc,
		remoteAddr: nc.RemoteAddr(),
		acceptedAt: time.Now(),
		log:        clog,
		eng:        engine.New(cfg, clog),
		handler:    handler,
		sendCh:     make(chan []*chunk.Message, 256),
		done:       make(chan struct{}),
	}

	c.writeRaw(c.eng.DrainOutbound())

	c.wg.Add(4)
	go c.readPump()
	go c.writePump()
	go c.eventPump()
	go c.sendPump()

	return c
}

func (c *Connection) readPump() {
	defer c.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, err := c.netConn.Read(buf)
		if n > 0 {
			if ferr := c.eng.FeedInbound(buf[:n]); ferr != nil {
				c.log.Warn("feed_inbound failed", "error", ferr)
				c.Close()
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				c.log.Debug("read failed", "error", err)
			}
			c.Close()
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *Connection) writePump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			c.writeRaw(c.eng.DrainOutbound())
			return
		case <-c.eng.OutboundReady():
			c.writeRaw(c.eng.DrainOutbound())
		}
	}
}

func (c *Connection) eventPump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.eng.Events():
			if !ok {
				return
			}
			c.handler(c, ev)
		}
	}
}

func nextID() string { return uuid.NewString() }
