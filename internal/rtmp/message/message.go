// Package message is the unified Message Codec: one parse/serialize surface
// per RTMP message type, built on top of internal/rtmp/control (type 1-6
// payload shapes) and internal/rtmp/amf (command/data AMF value sequences).
// internal/rtmp/chunk only knows about byte-addressed chunk streams; this
// package is where a type_id turns into something an application or the
// session processor can actually read.
package message

import (
	"fmt"

	serrors "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/rtmp/amf"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmp/internal/rtmp/control"
)

// RTMP message type ids, per the type table every message type is keyed by.
const (
	TypeSetChunkSize          uint8 = 1
	TypeAbort                 uint8 = 2
	TypeAcknowledgement       uint8 = 3
	TypeUserControl           uint8 = 4
	TypeWindowAckSize         uint8 = 5
	TypeSetPeerBandwidth      uint8 = 6
	TypeAudio                 uint8 = 8
	TypeVideo                 uint8 = 9
	TypeDataAMF3              uint8 = 15
	TypeDataAMF0              uint8 = 18
	TypeCommandAMF3           uint8 = 17
	TypeCommandAMF0           uint8 = 20
)

// Kind classifies a parsed message by payload shape, collapsing the AMF0/AMF3
// type_id pairs (15/18, 17/20) into one Kind each — the wire encoding is a
// detail of which type_id was used, not of what the value means.
type Kind int

const (
	KindControl Kind = iota
	KindAudio
	KindVideo
	KindData
	KindCommand
)

// Parsed is the result of Parse: a type_id tagged, decoded message value.
// Exactly one of Control/Values/Raw is meaningful, selected by Kind.
type Parsed struct {
	Kind   Kind
	TypeID uint8

	// KindControl: one of *control.SetChunkSize, *control.AbortMessage,
	// *control.Acknowledgement, *control.UserControl,
	// *control.WindowAcknowledgementSize, *control.SetPeerBandwidth.
	Control interface{}

	// KindCommand, KindData: the decoded AMF value sequence, command name
	// first for KindCommand (ToGo()'d — plain Go values, not amf.Value).
	Values []interface{}

	// KindAudio, KindVideo: opaque payload, carried verbatim per the
	// no-codec-parsing non-goal.
	Raw       []byte
	Timestamp uint32
}

// Parse decodes msg according to its TypeID. Unknown/reserved type ids are
// reported as an error; callers in the session processor are expected to log
// and drop rather than propagate this upward as fatal.
func Parse(msg *chunk.Message) (Parsed, error) {
	if msg == nil {
		return Parsed{}, serrors.NewProtocolError("message.parse", fmt.Errorf("nil message"))
	}

	switch msg.TypeID {
	case TypeSetChunkSize, TypeAbort, TypeAcknowledgement, TypeUserControl, TypeWindowAckSize, TypeSetPeerBandwidth:
		v, err := control.Decode(msg.TypeID, msg.Payload)
		if err != nil {
			return Parsed{}, serrors.NewProtocolError("message.parse.control", err)
		}
		return Parsed{Kind: KindControl, TypeID: msg.TypeID, Control: v}, nil

	case TypeAudio:
		return Parsed{Kind: KindAudio, TypeID: msg.TypeID, Raw: msg.Payload, Timestamp: msg.Timestamp}, nil

	case TypeVideo:
		return Parsed{Kind: KindVideo, TypeID: msg.TypeID, Raw: msg.Payload, Timestamp: msg.Timestamp}, nil

	case TypeDataAMF0, TypeDataAMF3:
		vals, err := decodeAMFSequence(msg.TypeID, msg.Payload)
		if err != nil {
			return Parsed{}, serrors.NewProtocolError("message.parse.data", err)
		}
		return Parsed{Kind: KindData, TypeID: msg.TypeID, Values: vals, Timestamp: msg.Timestamp}, nil

	case TypeCommandAMF0, TypeCommandAMF3:
		vals, err := decodeAMFSequence(msg.TypeID, msg.Payload)
		if err != nil {
			return Parsed{}, serrors.NewProtocolError("message.parse.command", err)
		}
		return Parsed{Kind: KindCommand, TypeID: msg.TypeID, Values: vals, Timestamp: msg.Timestamp}, nil

	default:
		return Parsed{}, serrors.NewProtocolError("message.parse", fmt.Errorf("unknown message type id %d", msg.TypeID))
	}
}

// decodeAMFSequence decodes an AMF0 value sequence directly, or an AMF3
// sequence preceded by the single format-marker byte RTMP's "AMF3" command
// and data message variants prepend ahead of an otherwise-AMF0 body (the
// only AMF3 framing this codec supports — see DESIGN.md).
func decodeAMFSequence(typeID uint8, payload []byte) ([]interface{}, error) {
	if typeID == TypeCommandAMF3 || typeID == TypeDataAMF3 {
		if len(payload) < 1 {
			return nil, fmt.Errorf("amf3 message: empty payload")
		}
		payload = payload[1:]
	}
	return amf.DecodeAll(payload)
}

// DefaultChunkStreamID returns the conventional chunk stream id a framer
// should use for a freshly-constructed message of this type, absent any
// reason to do otherwise (e.g. continuing an existing stream's CSID).
// Conventions: 2 for protocol control (as internal/rtmp/control uses), 3 for
// connection-level commands, 4/5 for audio/video, 6 for metadata.
// internal/rtmp/server does not use this for relayed media: it puts video
// on csid 6 (see its mediaCSID).
func DefaultChunkStreamID(typeID uint8) uint32 {
	switch typeID {
	case TypeSetChunkSize, TypeAbort, TypeAcknowledgement, TypeUserControl, TypeWindowAckSize, TypeSetPeerBandwidth:
		return 2
	case TypeCommandAMF0, TypeCommandAMF3:
		return 3
	case TypeAudio:
		return 4
	case TypeVideo:
		return 5
	case TypeDataAMF0, TypeDataAMF3:
		return 6
	default:
		return 3
	}
}
