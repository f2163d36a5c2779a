package session

import (
	"testing"

	"github.com/alxayo/go-rtmp/internal/rtmp/amf"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmp/internal/rtmp/control"
)

func testConfig() Config {
	return Config{
		ChunkSize:     4096,
		WindowAckSize: 2500000,
		PeerBandwidth: 2500000,
		FMSVersion:    "FMS/3,5,7,7009",
	}
}

func connectMessage(t *testing.T, trxID float64, app string) *chunk.Message {
	t.Helper()
	payload, err := amf.EncodeAll("connect", trxID, map[string]interface{}{
		"app":            app,
		"flashVer":       "LNX 9,0,124,2",
		"tcUrl":          "rtmp://localhost:1935/" + app,
		"objectEncoding": 0.0,
	})
	if err != nil {
		t.Fatalf("encode connect: %v", err)
	}
	return &chunk.Message{TypeID: commandMessageAMF0TypeID, Payload: payload}
}

func TestHandleConnect_EmitsFourResponsesAndEvent(t *testing.T) {
	s := New(testConfig())
	responses, events, err := s.Handle(connectMessage(t, 1, "live"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(responses) != 4 {
		t.Fatalf("expected 4 responses, got %d", len(responses))
	}
	wantTypes := []uint8{control.TypeSetPeerBandwidth, control.TypeWindowAcknowledgement, control.TypeSetChunkSize, control.TypeUserControl}
	for i, want := range wantTypes {
		if responses[i].TypeID != want {
			t.Fatalf("response[%d] type = %d, want %d", i, responses[i].TypeID, want)
		}
	}
	if len(events) != 1 || events[0].Kind != EventConnectionRequested {
		t.Fatalf("expected single ConnectionRequested event, got %+v", events)
	}
	if events[0].AppName != "live" {
		t.Fatalf("unexpected app name %q", events[0].AppName)
	}
	if s.Stage() != StageAwaitingConnectDecision {
		t.Fatalf("expected stage awaiting-application-decision, got %v", s.Stage())
	}
}

func TestAcceptRequest_Connect_TransitionsAndRespondsResult(t *testing.T) {
	s := New(testConfig())
	_, events, err := s.Handle(connectMessage(t, 1, "live"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	reqID := events[0].RequestID

	responses, err := s.AcceptRequest(reqID)
	if err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected one response, got %d", len(responses))
	}
	if s.Stage() != StageConnected {
		t.Fatalf("expected stage connected, got %v", s.Stage())
	}
	if s.AppName() != "live" {
		t.Fatalf("expected app name live, got %q", s.AppName())
	}

	vals, err := amf.DecodeAll(responses[0].Payload)
	if err != nil {
		t.Fatalf("decode _result: %v", err)
	}
	if vals[0].(string) != "_result" {
		t.Fatalf("expected _result, got %v", vals[0])
	}
	if vals[1].(float64) != 1 {
		t.Fatalf("expected echoed transaction id 1, got %v", vals[1])
	}
	props := vals[2].(map[string]interface{})
	if props["fmsVer"] != testConfig().FMSVersion || props["capabilities"] != 31.0 {
		t.Fatalf("unexpected command_object: %#v", props)
	}
	info := vals[3].(map[string]interface{})
	if info["code"] != "NetConnection.Connect.Success" || info["objectEncoding"] != 0.0 {
		t.Fatalf("unexpected info object: %#v", info)
	}

	// A second accept of the same (now-removed) id must fail.
	if _, err := s.AcceptRequest(reqID); err == nil {
		t.Fatalf("expected error accepting an already-resolved request id")
	}
}

func TestRejectRequest_Connect_EmitsError(t *testing.T) {
	s := New(testConfig())
	_, events, _ := s.Handle(connectMessage(t, 1, "live"))
	reqID := events[0].RequestID

	responses, err := s.RejectRequest(reqID, "application denied")
	if err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected one response, got %d", len(responses))
	}
	vals, err := amf.DecodeAll(responses[0].Payload)
	if err != nil {
		t.Fatalf("decode _error: %v", err)
	}
	if vals[0].(string) != "_error" {
		t.Fatalf("expected _error, got %v", vals[0])
	}
	if vals[1].(float64) != 1 {
		t.Fatalf("expected echoed transaction id 1, got %v", vals[1])
	}
	info := vals[3].(map[string]interface{})
	if info["description"] != "application denied" {
		t.Fatalf("unexpected description: %#v", info)
	}
}

func TestNotifyBytesReceived_AcknowledgementCadence(t *testing.T) {
	s := New(testConfig())
	wc, err := control.Decode(control.TypeWindowAcknowledgement, mustEncodeU32(2500000))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s.peerWindowAckSize = wc.(*control.WindowAcknowledgementSize).Size

	var acks []*chunk.Message
	for _, n := range []uint32{1000000, 1000000, 500000, 2500000, 2500000} {
		acks = append(acks, s.NotifyBytesReceived(n)...)
	}
	if len(acks) != 3 {
		t.Fatalf("expected 3 acknowledgements for 7_500_000 bytes over a 2_500_000 window, got %d", len(acks))
	}
	want := []uint32{2500000, 5000000, 7500000}
	for i, w := range want {
		seq, err := control.Decode(control.TypeAcknowledgement, acks[i].Payload)
		if err != nil {
			t.Fatalf("decode ack %d: %v", i, err)
		}
		if got := seq.(*control.Acknowledgement).SequenceNumber; got != w {
			t.Fatalf("ack[%d] sequence = %d, want %d", i, got, w)
		}
	}
}

func TestHandleSetChunkSize_EmitsEvent(t *testing.T) {
	s := New(testConfig())
	msg := control.EncodeSetChunkSize(8192)
	responses, events, err := s.Handle(msg)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(responses) != 0 {
		t.Fatalf("expected no responses, got %d", len(responses))
	}
	if len(events) != 1 || events[0].Kind != EventPeerChunkSizeChanged || events[0].Size != 8192 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestFullLifecycle_ConnectCreateStreamPublishPlay(t *testing.T) {
	s := New(testConfig())

	_, events, err := s.Handle(connectMessage(t, 1, "live"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := s.AcceptRequest(events[0].RequestID); err != nil {
		t.Fatalf("accept connect: %v", err)
	}

	csPayload, _ := amf.EncodeAll("createStream", 2.0, nil)
	csResponses, _, err := s.Handle(&chunk.Message{TypeID: commandMessageAMF0TypeID, Payload: csPayload})
	if err != nil {
		t.Fatalf("createStream: %v", err)
	}
	if len(csResponses) != 1 {
		t.Fatalf("expected one createStream response, got %d", len(csResponses))
	}
	vals, _ := amf.DecodeAll(csResponses[0].Payload)
	if vals[0].(string) != "_result" {
		t.Fatalf("expected _result for createStream, got %v", vals[0])
	}
	streamID := uint32(vals[3].(float64))
	if streamID == 0 {
		t.Fatalf("expected nonzero allocated stream id")
	}

	pubPayload, _ := amf.EncodeAll("publish", 0.0, nil, "mystream", "live")
	_, pubEvents, err := s.Handle(&chunk.Message{TypeID: commandMessageAMF0TypeID, MessageStreamID: streamID, Payload: pubPayload})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pubEvents) != 1 || pubEvents[0].Kind != EventPublishRequested {
		t.Fatalf("expected PublishRequested event, got %+v", pubEvents)
	}
	if pubEvents[0].StreamKey != "live/mystream" {
		t.Fatalf("unexpected stream key %q", pubEvents[0].StreamKey)
	}

	pubResponses, err := s.AcceptRequest(pubEvents[0].RequestID)
	if err != nil {
		t.Fatalf("accept publish: %v", err)
	}
	if len(pubResponses) != 1 {
		t.Fatalf("expected one onStatus response, got %d", len(pubResponses))
	}
	statusVals, _ := amf.DecodeAll(pubResponses[0].Payload)
	info := statusVals[3].(map[string]interface{})
	if info["code"] != "NetStream.Publish.Start" {
		t.Fatalf("unexpected publish status code: %#v", info)
	}

	// An audio frame on the now-publishing stream surfaces as MediaFrame.
	audioMsg := &chunk.Message{TypeID: audioDataTypeID, MessageStreamID: streamID, Timestamp: 42, Payload: []byte{0xAF, 0x01}}
	_, mediaEvents, err := s.Handle(audioMsg)
	if err != nil {
		t.Fatalf("media frame: %v", err)
	}
	if len(mediaEvents) != 1 || mediaEvents[0].Kind != EventMediaFrame {
		t.Fatalf("expected MediaFrame event, got %+v", mediaEvents)
	}
	if mediaEvents[0].MediaStreamID != streamID || mediaEvents[0].MediaTime != 42 {
		t.Fatalf("unexpected media frame fields: %+v", mediaEvents[0])
	}

	// A play request on a different stream id against an unpublished stream.
	playPayload, _ := amf.EncodeAll("play", 0.0, nil, "missing")
	_, playEvents, err := s.Handle(&chunk.Message{TypeID: commandMessageAMF0TypeID, MessageStreamID: streamID + 1, Payload: playPayload})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(playEvents) != 1 || playEvents[0].Kind != EventPlayRequested {
		t.Fatalf("expected PlayRequested event, got %+v", playEvents)
	}

	rejResponses, err := s.RejectRequest(playEvents[0].RequestID, "stream not found")
	if err != nil {
		t.Fatalf("reject play: %v", err)
	}
	if len(rejResponses) != 1 {
		t.Fatalf("expected one rejection response, got %d", len(rejResponses))
	}
	rejVals, _ := amf.DecodeAll(rejResponses[0].Payload)
	rejInfo := rejVals[3].(map[string]interface{})
	if rejInfo["code"] != "NetStream.Play.StreamNotFound" {
		t.Fatalf("unexpected rejection code: %#v", rejInfo)
	}
}

func TestHandle_CommandBeforeConnectIsDropped(t *testing.T) {
	s := New(testConfig())
	csPayload, _ := amf.EncodeAll("createStream", 1.0, nil)
	responses, events, err := s.Handle(&chunk.Message{TypeID: commandMessageAMF0TypeID, Payload: csPayload})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(responses) != 0 || len(events) != 0 {
		t.Fatalf("expected createStream before connected to be silently dropped, got responses=%v events=%v", responses, events)
	}
	if s.Stage() != StageStarted {
		t.Fatalf("expected stage to remain started, got %v", s.Stage())
	}
}

func mustEncodeU32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
