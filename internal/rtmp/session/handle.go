package session

import (
	"fmt"

	serrors "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/rtmp/amf"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmp/internal/rtmp/control"
	"github.com/alxayo/go-rtmp/internal/rtmp/message"
	"github.com/alxayo/go-rtmp/internal/rtmp/rpc"
)

// commandMessageAMF0TypeID mirrors message.TypeCommandAMF0 (RTMP type 20).
// Only AMF0 commands are actually dispatched here: connect validates
// objectEncoding==0 (internal/rtmp/rpc.ParseConnectCommand), so a peer
// negotiating AMF3 commands never gets this far — message.Parse already
// classifies type 17 (AMF3 command) under the same Kind, but this package
// only builds responses shaped for the AMF0 wire form.
const commandMessageAMF0TypeID = message.TypeCommandAMF0

// audioDataTypeID mirrors message.TypeAudio (RTMP type 8).
const audioDataTypeID = message.TypeAudio

// NotifyBytesReceived accounts for n more raw inbound bytes and returns any
// Acknowledgement responses owed to the peer as a result. It is driven by
// the engine directly off the byte stream, independently of Handle, since
// acknowledgement cadence is a function of total bytes, not of message
// boundaries.
func (s *State) NotifyBytesReceived(n uint32) []*chunk.Message {
	s.peerBytesReceived += uint64(n)
	if s.peerWindowAckSize == 0 {
		return nil
	}
	var out []*chunk.Message
	for s.peerBytesReceived-s.lastAckSentAt >= uint64(s.peerWindowAckSize) {
		s.lastAckSentAt += uint64(s.peerWindowAckSize)
		out = append(out, control.EncodeAcknowledgement(uint32(s.lastAckSentAt)))
	}
	return out
}

// Handle dispatches a single reassembled message and returns, in order, the
// responses to write back and the events the application should observe.
// Malformed payloads and commands arriving in an unsupported stage are
// dropped (logged, no error) per the failure semantics; only arguments that
// indicate a programming error (nil message) return err.
func (s *State) Handle(msg *chunk.Message) ([]*chunk.Message, []Event, error) {
	if msg == nil {
		return nil, nil, serrors.NewProtocolError("session.handle", fmt.Errorf("nil message"))
	}

	parsed, err := message.Parse(msg)
	if err != nil {
		s.log.Warn("dropping unparseable message", "type_id", msg.TypeID, "err", err)
		return nil, nil, nil
	}

	switch parsed.Kind {
	case message.KindControl:
		return s.handleControl(parsed)
	case message.KindCommand:
		if msg.TypeID != commandMessageAMF0TypeID {
			s.log.Warn("dropping AMF3 command message: only AMF0 commands are supported")
			return nil, nil, nil
		}
		return s.handleCommand(msg, parsed)
	case message.KindAudio, message.KindVideo:
		return s.handleMediaFrame(msg)
	case message.KindData:
		// Opaque metadata (e.g. onMetaData): not interpreted by the core.
		return nil, nil, nil
	default:
		s.log.Warn("dropping unknown message kind", "type_id", msg.TypeID)
		return nil, nil, nil
	}
}

func (s *State) handleControl(parsed message.Parsed) ([]*chunk.Message, []Event, error) {
	switch v := parsed.Control.(type) {
	case *control.SetChunkSize:
		s.peerChunkSize = v.Size
		return nil, []Event{{Kind: EventPeerChunkSizeChanged, Size: v.Size}}, nil
	case *control.WindowAcknowledgementSize:
		s.peerWindowAckSize = v.Size
		return nil, nil, nil
	default:
		// AbortMessage, Acknowledgement, SetPeerBandwidth, UserControl:
		// already validated by message.Parse; none of these require a
		// session response or application-visible event.
		return nil, nil, nil
	}
}

func (s *State) handleCommand(msg *chunk.Message, parsed message.Parsed) ([]*chunk.Message, []Event, error) {
	if len(parsed.Values) == 0 {
		s.log.Warn("dropping empty command message")
		return nil, nil, nil
	}
	name, ok := parsed.Values[0].(string)
	if !ok {
		s.log.Warn("dropping command message: first value is not a command name string")
		return nil, nil, nil
	}

	switch name {
	case "connect":
		return s.handleConnect(msg)
	case "createStream":
		return s.handleCreateStream(msg)
	case "publish":
		return s.handlePublish(msg)
	case "play":
		return s.handlePlay(msg)
	default:
		s.log.Warn("unsupported command in current stage", "command", name, "stage", s.stage.String())
		return nil, nil, nil
	}
}

func (s *State) handleConnect(msg *chunk.Message) ([]*chunk.Message, []Event, error) {
	if s.stage != StageStarted {
		s.log.Warn("dropping connect: wrong stage", "stage", s.stage.String())
		return nil, nil, nil
	}
	cc, err := rpc.ParseConnectCommand(msg)
	if err != nil {
		s.log.Warn("dropping malformed connect", "err", err)
		return nil, nil, nil
	}

	responses := []*chunk.Message{
		control.EncodeSetPeerBandwidth(s.cfg.PeerBandwidth, 0), // hard
		control.EncodeWindowAcknowledgementSize(s.cfg.WindowAckSize),
		control.EncodeSetChunkSize(s.cfg.ChunkSize),
		control.EncodeUserControlStreamBegin(0),
	}

	s.lastRequestID++
	id := s.lastRequestID
	s.activeRequests[id] = &pendingRequest{kind: requestConnect, transactionID: cc.TransactionID, appName: cc.App}
	s.stage = StageAwaitingConnectDecision

	return responses, []Event{{Kind: EventConnectionRequested, RequestID: id, AppName: cc.App}}, nil
}

func (s *State) handleCreateStream(msg *chunk.Message) ([]*chunk.Message, []Event, error) {
	if s.stage != StageConnected {
		s.log.Warn("dropping createStream: wrong stage", "stage", s.stage.String())
		return nil, nil, nil
	}
	cs, err := rpc.ParseCreateStreamCommand(msg)
	if err != nil {
		s.log.Warn("dropping malformed createStream", "err", err)
		return nil, nil, nil
	}

	streamID := s.nextMessageStreamID
	s.nextMessageStreamID++

	payload, err := amf.EncodeAllValues0(
		amf.String("_result"),
		amf.Number(cs.TransactionID),
		amf.Null(),
		amf.Number(float64(streamID)),
	)
	if err != nil {
		return nil, nil, serrors.NewAMFError("session.createstream.encode", err)
	}
	resp := &chunk.Message{
		CSID:            message.DefaultChunkStreamID(commandMessageAMF0TypeID),
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}
	return []*chunk.Message{resp}, nil, nil
}

func (s *State) handlePublish(msg *chunk.Message) ([]*chunk.Message, []Event, error) {
	if s.stage != StageConnected {
		s.log.Warn("dropping publish: wrong stage", "stage", s.stage.String())
		return nil, nil, nil
	}
	pc, err := rpc.ParsePublishCommand(s.appName, msg)
	if err != nil {
		s.log.Warn("dropping malformed publish", "err", err)
		return nil, nil, nil
	}

	s.lastRequestID++
	id := s.lastRequestID
	s.activeRequests[id] = &pendingRequest{
		kind:            requestPublish,
		messageStreamID: msg.MessageStreamID,
		streamKey:       pc.StreamKey,
		publishingType:  pc.PublishingType,
	}

	return nil, []Event{{
		Kind:           EventPublishRequested,
		RequestID:      id,
		StreamKey:      pc.StreamKey,
		PublishingType: pc.PublishingType,
	}}, nil
}

func (s *State) handlePlay(msg *chunk.Message) ([]*chunk.Message, []Event, error) {
	if s.stage != StageConnected {
		s.log.Warn("dropping play: wrong stage", "stage", s.stage.String())
		return nil, nil, nil
	}
	pc, err := rpc.ParsePlayCommand(msg, s.appName)
	if err != nil {
		s.log.Warn("dropping malformed play", "err", err)
		return nil, nil, nil
	}

	s.lastRequestID++
	id := s.lastRequestID
	s.activeRequests[id] = &pendingRequest{
		kind:            requestPlay,
		messageStreamID: msg.MessageStreamID,
		streamKey:       pc.StreamKey,
		streamName:      pc.StreamName,
	}

	return nil, []Event{{
		Kind:       EventPlayRequested,
		RequestID:  id,
		StreamKey:  pc.StreamKey,
		StreamName: pc.StreamName,
	}}, nil
}

func (s *State) handleMediaFrame(msg *chunk.Message) ([]*chunk.Message, []Event, error) {
	if _, publishing := s.publishingStreams[msg.MessageStreamID]; !publishing {
		// No accepted publisher on this stream yet; drop silently rather
		// than surfacing frames the application never asked to receive.
		return nil, nil, nil
	}
	return nil, []Event{{
		Kind:          EventMediaFrame,
		MediaStreamID: msg.MessageStreamID,
		MediaTypeID:   msg.TypeID,
		MediaTime:     msg.Timestamp,
		MediaPayload:  msg.Payload,
	}}, nil
}
