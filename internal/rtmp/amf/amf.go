package amf

// Legacy interface{}-based entry points, kept so rpc command handlers can
// decode/encode AMF0 command payloads without dealing with the tagged Value
// union directly. Built on top of DecodeValue0/EncodeValue0 and the
// ToGo/FromGo conversion layer in convert.go.

import (
	"bytes"
	"fmt"
	"io"

	amferrors "github.com/alxayo/go-rtmp/internal/errors"
)

// EncodeValue encodes a single AMF0 value to w. v is converted via FromGo,
// so the same Go types FromGo documents are accepted (nil, bool, float64,
// string, []byte, map[string]interface{}, []interface{}, amf.Value).
func EncodeValue(w io.Writer, v interface{}) error {
	if err := EncodeValue0(w, FromGo(v)); err != nil {
		return amferrors.NewAMFError("encode.value", err)
	}
	return nil
}

// EncodeAll encodes a sequence of AMF0 values in order and returns the bytes.
// This is convenient for building RTMP command message payloads which are a
// concatenation of multiple AMF0 values (e.g. ["connect", 1, {...}]).
func EncodeAll(values ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		if err := EncodeValue(&buf, v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeValue decodes a single AMF0 value from r and converts it to a plain
// Go value via Value.ToGo.
func DecodeValue(r io.Reader) (interface{}, error) {
	v, err := DecodeValue0(r)
	if err != nil {
		return nil, amferrors.NewAMFError("decode.value", err)
	}
	return v.ToGo(), nil
}

// DecodeAll decodes a concatenated sequence of AMF0 values from data until
// exhaustion. This is helpful for parsing command payloads.
func DecodeAll(data []byte) ([]interface{}, error) {
	values, err := DecodeAllValues0(data)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v.ToGo()
	}
	return out, nil
}

// Marshal is a convenience alias for EncodeValue returning the produced bytes.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a single AMF0 value from data. If extra bytes remain after
// one value they are ignored (mirroring common JSON-like unmarshal semantics).
func Unmarshal(data []byte) (interface{}, error) {
	r := bytes.NewReader(data)
	return DecodeValue(r)
}
