package message

import (
	serrors "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/rtmp/amf"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
)

// NewCommandMessage builds an AMF0 command message (type 20): command name
// first, followed by whatever additional values the caller supplies (a
// transaction id, a command/info object, etc — this layer doesn't know the
// per-command shape, only how to carry it).
func NewCommandMessage(streamID uint32, name string, values ...interface{}) (*chunk.Message, error) {
	all := append([]interface{}{name}, values...)
	payload, err := amf.EncodeAll(all...)
	if err != nil {
		return nil, serrors.NewAMFError("message.encode.command", err)
	}
	return &chunk.Message{
		CSID:            DefaultChunkStreamID(TypeCommandAMF0),
		TypeID:          TypeCommandAMF0,
		MessageStreamID: streamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// NewDataMessage builds an AMF0 data message (type 18), e.g. onMetaData.
func NewDataMessage(streamID uint32, values ...interface{}) (*chunk.Message, error) {
	payload, err := amf.EncodeAll(values...)
	if err != nil {
		return nil, serrors.NewAMFError("message.encode.data", err)
	}
	return &chunk.Message{
		CSID:            DefaultChunkStreamID(TypeDataAMF0),
		TypeID:          TypeDataAMF0,
		MessageStreamID: streamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// NewAudioMessage wraps an opaque audio payload (type 8) with no
// interpretation of its codec framing.
func NewAudioMessage(streamID uint32, timestamp uint32, payload []byte) *chunk.Message {
	return &chunk.Message{
		CSID:            DefaultChunkStreamID(TypeAudio),
		TypeID:          TypeAudio,
		MessageStreamID: streamID,
		Timestamp:       timestamp,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}
}

// NewVideoMessage wraps an opaque video payload (type 9) with no
// interpretation of its codec framing.
func NewVideoMessage(streamID uint32, timestamp uint32, payload []byte) *chunk.Message {
	return &chunk.Message{
		CSID:            DefaultChunkStreamID(TypeVideo),
		TypeID:          TypeVideo,
		MessageStreamID: streamID,
		Timestamp:       timestamp,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}
}
