package session

import (
	"fmt"

	serrors "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/rtmp/amf"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmp/internal/rtmp/control"
)

// statusCommandCSID is the chunk stream commonly used by simple servers for
// onStatus/_result/_error notifications outside the initial connect
// handshake (grounded on the teacher's publish/play handlers, which use 5).
const statusCommandCSID = 5

// connectCommandCSID is the conventional connection-command channel (same
// one internal/rtmp/message.DefaultChunkStreamID picks for AMF0 commands).
const connectCommandCSID = 3

// AcceptRequest accepts a pending request by id, atomically removing it from
// activeRequests, and returns the resulting response(s). A second call with
// the same id fails since the id no longer exists.
func (s *State) AcceptRequest(requestID uint64) ([]*chunk.Message, error) {
	req, ok := s.activeRequests[requestID]
	if !ok {
		return nil, serrors.NewProtocolError("session.accept_request", fmt.Errorf("unknown request id %d", requestID))
	}
	delete(s.activeRequests, requestID)

	switch req.kind {
	case requestConnect:
		return s.acceptConnect(req)
	case requestPublish:
		return s.acceptPublish(req)
	case requestPlay:
		return s.acceptPlay(req)
	default:
		return nil, serrors.NewProtocolError("session.accept_request", fmt.Errorf("unhandled request kind %d", req.kind))
	}
}

// RejectRequest rejects a pending request by id, atomically removing it, and
// returns the symmetric failure response(s).
func (s *State) RejectRequest(requestID uint64, reason string) ([]*chunk.Message, error) {
	req, ok := s.activeRequests[requestID]
	if !ok {
		return nil, serrors.NewProtocolError("session.reject_request", fmt.Errorf("unknown request id %d", requestID))
	}
	delete(s.activeRequests, requestID)

	switch req.kind {
	case requestConnect:
		return s.rejectConnect(req, reason)
	case requestPublish:
		return s.rejectPublish(req, reason)
	case requestPlay:
		return s.rejectPlay(req, reason)
	default:
		return nil, serrors.NewProtocolError("session.reject_request", fmt.Errorf("unhandled request kind %d", req.kind))
	}
}

func (s *State) acceptConnect(req *pendingRequest) ([]*chunk.Message, error) {
	s.stage = StageConnected
	s.appName = req.appName

	payload, err := amf.EncodeAllValues0(
		amf.String("_result"),
		amf.Number(req.transactionID),
		amf.Object(
			amf.P("fmsVer", amf.String(s.cfg.FMSVersion)),
			amf.P("capabilities", amf.Number(31)),
		),
		amf.Object(
			amf.P("level", amf.String("status")),
			amf.P("code", amf.String("NetConnection.Connect.Success")),
			amf.P("description", amf.String("Connection succeeded")),
			amf.P("objectEncoding", amf.Number(0)),
		),
	)
	if err != nil {
		return nil, serrors.NewAMFError("session.accept_request.connect.encode", err)
	}
	return []*chunk.Message{{
		CSID:            connectCommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}}, nil
}

func (s *State) rejectConnect(req *pendingRequest, reason string) ([]*chunk.Message, error) {
	s.stage = StageClosed

	payload, err := amf.EncodeAllValues0(
		amf.String("_error"),
		amf.Number(req.transactionID),
		amf.Null(),
		amf.Object(
			amf.P("level", amf.String("error")),
			amf.P("code", amf.String("NetConnection.Connect.Rejected")),
			amf.P("description", amf.String(reason)),
		),
	)
	if err != nil {
		return nil, serrors.NewAMFError("session.reject_request.connect.encode", err)
	}
	return []*chunk.Message{{
		CSID:            connectCommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}}, nil
}

func (s *State) acceptPublish(req *pendingRequest) ([]*chunk.Message, error) {
	s.publishingStreams[req.messageStreamID] = req.streamKey

	payload, err := amf.EncodeAllValues0(
		amf.String("onStatus"),
		amf.Number(0),
		amf.Null(),
		amf.Object(
			amf.P("level", amf.String("status")),
			amf.P("code", amf.String("NetStream.Publish.Start")),
			amf.P("description", amf.String(fmt.Sprintf("Publishing %s.", req.streamKey))),
			amf.P("details", amf.String(req.streamKey)),
		),
	)
	if err != nil {
		return nil, serrors.NewAMFError("session.accept_request.publish.encode", err)
	}
	return []*chunk.Message{{
		CSID:            statusCommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: req.messageStreamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}}, nil
}

func (s *State) rejectPublish(req *pendingRequest, reason string) ([]*chunk.Message, error) {
	payload, err := amf.EncodeAllValues0(
		amf.String("onStatus"),
		amf.Number(0),
		amf.Null(),
		amf.Object(
			amf.P("level", amf.String("error")),
			amf.P("code", amf.String("NetStream.Publish.BadName")),
			amf.P("description", amf.String(reason)),
			amf.P("details", amf.String(req.streamKey)),
		),
	)
	if err != nil {
		return nil, serrors.NewAMFError("session.reject_request.publish.encode", err)
	}
	return []*chunk.Message{{
		CSID:            statusCommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: req.messageStreamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}}, nil
}

func (s *State) acceptPlay(req *pendingRequest) ([]*chunk.Message, error) {
	uc := control.EncodeUserControlStreamBegin(req.messageStreamID)

	payload, err := amf.EncodeAllValues0(
		amf.String("onStatus"),
		amf.Number(0),
		amf.Null(),
		amf.Object(
			amf.P("level", amf.String("status")),
			amf.P("code", amf.String("NetStream.Play.Start")),
			amf.P("description", amf.String(fmt.Sprintf("Started playing %s.", req.streamKey))),
			amf.P("details", amf.String(req.streamKey)),
		),
	)
	if err != nil {
		return nil, serrors.NewAMFError("session.accept_request.play.encode", err)
	}
	started := &chunk.Message{
		CSID:            statusCommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: req.messageStreamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}
	return []*chunk.Message{uc, started}, nil
}

func (s *State) rejectPlay(req *pendingRequest, reason string) ([]*chunk.Message, error) {
	payload, err := amf.EncodeAllValues0(
		amf.String("onStatus"),
		amf.Number(0),
		amf.Null(),
		amf.Object(
			amf.P("level", amf.String("error")),
			amf.P("code", amf.String("NetStream.Play.StreamNotFound")),
			amf.P("description", amf.String(reason)),
			amf.P("details", amf.String(req.streamKey)),
		),
	)
	if err != nil {
		return nil, serrors.NewAMFError("session.reject_request.play.encode", err)
	}
	return []*chunk.Message{{
		CSID:            statusCommandCSID,
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: req.messageStreamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}}, nil
}
