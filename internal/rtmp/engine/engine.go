// Package engine composes the handshake FSM, the chunk deframer/framer, and
// the session processor into the transport-agnostic driver an RTMP server
// (or client) is built on: feed it inbound bytes, drain outbound bytes, read
// application events off a channel. The engine never touches a net.Conn —
// that's internal/rtmp/conn's job once it's wired to this package.
//
// Internally one goroutine owns the chunk read side exactly the way
// internal/rtmp/conn's readLoop owns a net.Conn: it blocks reading complete
// messages and only ever touches session.State itself. FeedInbound and the
// application's AcceptRequest/RejectRequest calls reach that state through a
// mutex instead of conn.go's "accessed only by readLoop" comment convention,
// since here the goroutine can't select on a command channel while blocked
// inside chunk.Reader.ReadMessage().
package engine

import (
	"bytes"
	"io"
	"sync"

	serrors "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/logger"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmp/internal/rtmp/handshake"
	"github.com/alxayo/go-rtmp/internal/rtmp/session"
)

// lockedBuffer is a concurrency-safe io.Writer/drain sink. Both the
// handshake phase (driven from FeedInbound's caller goroutine) and the
// message phase (driven from the read loop goroutine) write to the same
// outbound byte stream, so plain bytes.Buffer isn't safe to share directly.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() == 0 {
		return nil
	}
	out := append([]byte(nil), b.buf.Bytes()...)
	b.buf.Reset()
	return out
}

// countingReader tallies bytes as they're read off the pipe. It's only ever
// touched by the read loop goroutine, so it needs no locking of its own.
type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}

// Engine drives a single RTMP session end to end. Construct with New, feed
// it bytes as they arrive over whatever transport the caller owns, and drain
// outbound bytes after every FeedInbound call (and pass AcceptRequest or
// RejectRequest responses through WriteAndDrain).
type Engine struct {
	log *logger.Entry
	cfg session.Config

	out *lockedBuffer

	hsMu    sync.Mutex
	fsm     *handshake.FSM
	hsDone  bool
	pw *io.PipeWriter

	sessMu sync.Mutex
	sess   *session.State

	// writerMu guards every e.writer.WriteMessage call: readLoop writes acks
	// and responses as it processes inbound messages, while WriteAndDrain is
	// called from whatever goroutine drives AcceptRequest/RejectRequest
	// (conn.Connection's sendPump), concurrently with readLoop. chunk.Writer
	// itself isn't safe for concurrent use.
	writerMu sync.Mutex
	writer   *chunk.Writer

	events chan session.Event
	ready  chan struct{}
	closed chan struct{}
	closeOnce sync.Once

	fatalMu sync.Mutex
	fatal   error
}

// New constructs an Engine and immediately queues the server's S0+S1
// handshake bytes for DrainOutbound — the handshake starts the moment a
// session exists, before any byte has been fed in.
func New(cfg session.Config, log *logger.Entry) *Engine {
	if log == nil {
		log = logger.Logger()
	}
	fsm, initial := handshake.NewFSM()
	e := &Engine{
		log:    log,
		cfg:    cfg,
		out:    &lockedBuffer{},
		fsm:    fsm,
		sess:   session.New(cfg),
		events: make(chan session.Event, 64),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	e.writer = chunk.NewWriter(e.out, cfg.ChunkSize)
	e.out.Write(initial)
	e.signalReady()
	return e
}

// Events returns the channel of application-visible events (connection
// requests, publish/play requests, media frames, chunk-size changes). The
// caller is expected to drain it continuously; a full buffer slows the
// engine's internal read loop rather than dropping events.
func (e *Engine) Events() <-chan session.Event { return e.events }

// OutboundReady fires at least once after DrainOutbound would return a
// non-empty slice. It's a dirty flag, not a queue — a transport loop should
// drain fully on each signal rather than assume one signal means one batch.
func (e *Engine) OutboundReady() <-chan struct{} { return e.ready }

func (e *Engine) signalReady() {
	select {
	case e.ready <- struct{}{}:
	default:
	}
}

// Err returns the reason the engine stopped processing, if a fatal
// handshake or chunk-stream protocol violation occurred. Returns nil while
// the session is healthy.
func (e *Engine) Err() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatal
}

// DrainOutbound returns and clears all outbound bytes accumulated since the
// last call. Returns nil when there is nothing to send.
func (e *Engine) DrainOutbound() []byte {
	return e.out.drain()
}

// FeedInbound hands the engine raw bytes read from the transport, in order.
// During the handshake this drives the FSM directly; once the handshake has
// completed it forwards bytes into the pipe the read loop goroutine blocks
// on, so FeedInbound may briefly block until the read loop has consumed
// what was just written (exactly the "waiting for more inbound bytes"
// suspension point).
func (e *Engine) FeedInbound(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	e.hsMu.Lock()
	if !e.hsDone {
		res := e.fsm.ProcessBytes(data)
		if len(res.BytesToSend) > 0 {
			e.out.Write(res.BytesToSend)
			e.signalReady()
		}
		switch res.Outcome {
		case handshake.OutcomeIncomplete:
			e.hsMu.Unlock()
			return nil
		case handshake.OutcomeFailure:
			e.hsMu.Unlock()
			e.fail(serrors.NewHandshakeError("engine.handshake", res.Err))
			return res.Err
		default: // OutcomeSuccess
			e.hsDone = true
			pr, pw := io.Pipe()
			e.pw = pw
			e.hsMu.Unlock()
			e.wgStart(pr)
			if len(res.Remaining) > 0 {
				if _, err := e.pw.Write(res.Remaining); err != nil {
					return nil // pipe closed under us; read loop already reported the failure
				}
			}
			return nil
		}
	}
	pw := e.pw
	e.hsMu.Unlock()

	if _, err := pw.Write(data); err != nil {
		// The read loop has exited (fatal error or Close); nothing more to feed.
		return nil
	}
	return nil
}

// wgStart launches the single read loop goroutine that owns the chunk
// deframer and drives session.State for the lifetime of the connection.
func (e *Engine) wgStart(pr *io.PipeReader) {
	go e.readLoop(pr)
}

func (e *Engine) readLoop(pr *io.PipeReader) {
	cr := &countingReader{r: pr}
	reader := chunk.NewReader(cr, e.cfg.ChunkSize)
	var lastCounted uint64

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if err == io.EOF {
				e.closeEngine()
				return
			}
			e.fail(serrors.NewChunkError("engine.read_loop", err))
			return
		}

		delta := cr.n - lastCounted
		lastCounted = cr.n

		e.sessMu.Lock()
		acks := e.sess.NotifyBytesReceived(uint32(delta))
		responses, events, herr := e.sess.Handle(msg)
		e.sessMu.Unlock()

		if herr != nil {
			e.fail(serrors.NewProtocolError("engine.read_loop.handle", herr))
			return
		}

		// reader already applies inbound Set Chunk Size to itself
		// (chunk.Reader.maybeHandleControl); session.Handle separately
		// surfaces PeerChunkSizeChanged for the application's benefit.

		e.writerMu.Lock()
		writeErr := e.writeMessagesLocked(acks)
		if writeErr == nil {
			writeErr = e.writeMessagesLocked(responses)
		}
		e.writerMu.Unlock()
		if writeErr != nil {
			e.fail(serrors.NewChunkError("engine.write_loop", writeErr))
			return
		}
		if len(acks) > 0 || len(responses) > 0 {
			e.signalReady()
		}
		for _, ev := range events {
			e.emit(ev)
		}

		select {
		case <-e.closed:
			return
		default:
		}
	}
}

// writeMessagesLocked writes msgs through e.writer. Callers must hold
// writerMu.
func (e *Engine) writeMessagesLocked(msgs []*chunk.Message) error {
	for _, m := range msgs {
		if err := e.writer.WriteMessage(m); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emit(ev session.Event) {
	select {
	case e.events <- ev:
	case <-e.closed:
	}
}

func (e *Engine) fail(err error) {
	e.fatalMu.Lock()
	if e.fatal == nil {
		e.fatal = err
	}
	e.fatalMu.Unlock()
	e.log.Warn("session closed on fatal error", "err", err)
	e.closeEngine()
}

func (e *Engine) closeEngine() {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.hsMu.Lock()
		if e.pw != nil {
			_ = e.pw.Close()
		}
		e.hsMu.Unlock()
	})
}

// Close tears down the engine: any goroutine blocked feeding or reading
// unblocks, and Stage reports closed.
func (e *Engine) Close() {
	e.closeEngine()
}

// AcceptRequest accepts a previously surfaced ConnectionRequested,
// PublishRequested or PlayRequested event, returning the responses to send
// to the peer. The responses are not written to the outbound buffer; pass
// them to WriteAndDrain to get the wire bytes.
func (e *Engine) AcceptRequest(requestID uint64) ([]*chunk.Message, error) {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	return e.sess.AcceptRequest(requestID)
}

// RejectRequest mirrors AcceptRequest for the rejection path.
func (e *Engine) RejectRequest(requestID uint64, reason string) ([]*chunk.Message, error) {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	return e.sess.RejectRequest(requestID, reason)
}

// WriteAndDrain chunks msgs through the engine's writer and returns the
// resulting outbound bytes in one call — the usual way to turn an
// AcceptRequest/RejectRequest result into wire bytes.
func (e *Engine) WriteAndDrain(msgs []*chunk.Message) ([]byte, error) {
	e.writerMu.Lock()
	err := e.writeMessagesLocked(msgs)
	e.writerMu.Unlock()
	if err != nil {
		return nil, serrors.NewChunkError("engine.write_and_drain", err)
	}
	return e.DrainOutbound(), nil
}

// Stage reports the session's current lifecycle stage; once the engine has
// been closed (by Close or a fatal error) it reports StageClosed.
func (e *Engine) Stage() session.Stage {
	select {
	case <-e.closed:
		return session.StageClosed
	default:
	}
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	return e.sess.Stage()
}
