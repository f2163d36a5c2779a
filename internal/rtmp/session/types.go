// Package session implements the RTMP session processor: the state machine
// that sits between the chunk stream (internal/rtmp/chunk) and the
// application. It owns connect/createStream/publish/play negotiation,
// window-acknowledgement backpressure, and nothing about sockets — it is fed
// already-reassembled *chunk.Message values and returns the *chunk.Message
// responses to write back plus Events for the application to react to.
package session

import (
	"github.com/alxayo/go-rtmp/internal/logger"
)

// Stage mirrors the session's current_stage. handshaking is included for
// completeness (it names the phase the engine drives before session.State
// is ever constructed) even though State itself is only ever constructed
// already past that point; awaitingConnectDecision separates the moment a
// connect command is parsed from the moment the application has decided,
// since commands other than accept/reject are illegal to act on meanwhile.
type Stage int

const (
	StageHandshaking Stage = iota
	StageStarted
	StageAwaitingConnectDecision
	StageConnected
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageHandshaking:
		return "handshaking"
	case StageStarted:
		return "started"
	case StageAwaitingConnectDecision:
		return "awaiting-application-decision"
	case StageConnected:
		return "connected"
	case StageClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config is the caller-supplied, required-with-no-defaults configuration
// announced to the peer once a connect request is accepted.
type Config struct {
	ChunkSize              uint32
	WindowAckSize          uint32
	PeerBandwidth          uint32
	PeerBandwidthLimitType uint8 // 0=hard, 1=soft, 2=dynamic; connect always announces hard
	FMSVersion             string
}

// EventKind discriminates the Event union the application consumes.
type EventKind int

const (
	EventConnectionRequested EventKind = iota
	EventPeerChunkSizeChanged
	EventPublishRequested
	EventPlayRequested
	EventMediaFrame
)

// Event is the tagged union of everything the Application contract can
// observe coming out of Handle. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind EventKind

	RequestID uint64 // ConnectionRequested, PublishRequested, PlayRequested

	AppName        string // ConnectionRequested
	StreamKey      string // PublishRequested, PlayRequested
	PublishingType string // PublishRequested
	StreamName     string // PlayRequested

	Size uint32 // PeerChunkSizeChanged

	MediaStreamID uint32 // MediaFrame
	MediaTypeID   uint8  // MediaFrame
	MediaTime     uint32 // MediaFrame
	MediaPayload  []byte // MediaFrame
}

// requestKind discriminates the pending-request descriptors held in
// activeRequests. All three kinds share the same accept/reject mechanism.
type requestKind int

const (
	requestConnect requestKind = iota
	requestPublish
	requestPlay
)

// pendingRequest is the descriptor recorded in activeRequests: enough
// context from the original command to build the eventual accept/reject
// response without re-decoding the triggering message.
type pendingRequest struct {
	kind requestKind

	transactionID float64

	// connect
	appName string

	// publish / play
	messageStreamID uint32
	streamKey       string
	streamName      string
	publishingType  string
}

// State is the session processor's entire mutable state. One instance per
// RTMP connection; not safe for concurrent use (the engine that owns it
// serialises every call behind a mutex).
type State struct {
	cfg   Config
	stage Stage
	log   *logger.Entry

	appName string

	lastRequestID  uint64
	activeRequests map[uint64]*pendingRequest

	nextMessageStreamID uint32

	// messageStreamID -> streamKey, populated once a publish request is
	// accepted; used to recognize which incoming AudioData/VideoData
	// messages belong to an active publish and should surface as MediaFrame.
	publishingStreams map[uint32]string

	peerChunkSize     uint32
	peerWindowAckSize uint32
	peerBytesReceived uint64
	lastAckSentAt     uint64
}

// New constructs a session processor already past the handshake, in stage
// started — handshaking is the handshake FSM's concern (internal/rtmp/handshake),
// not this package's.
func New(cfg Config) *State {
	return &State{
		cfg:                cfg,
		stage:              StageStarted,
		log:                logger.Logger().With("component", "session"),
		activeRequests:     make(map[uint64]*pendingRequest),
		publishingStreams:  make(map[uint32]string),
		nextMessageStreamID: 1,
	}
}

// Stage reports the session's current stage.
func (s *State) Stage() Stage { return s.stage }

// AppName reports the application name negotiated by an accepted connect
// request, or "" before that.
func (s *State) AppName() string { return s.appName }
