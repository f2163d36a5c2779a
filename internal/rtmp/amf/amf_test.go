package amf

import "testing"

func TestLegacyEncodeDecodeConnectCommand(t *testing.T) {
	props := map[string]interface{}{
		"app":     "live",
		"tcUrl":   "rtmp://example.com/live",
		"fpad":    false,
	}
	payload, err := EncodeAll("connect", float64(1), props)
	if err != nil {
		t.Fatalf("encode all: %v", err)
	}
	values, err := DecodeAll(payload)
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}
	name, ok := values[0].(string)
	if !ok || name != "connect" {
		t.Fatalf("expected command name 'connect', got %#v", values[0])
	}
	txID, ok := values[1].(float64)
	if !ok || txID != 1 {
		t.Fatalf("expected transaction id 1, got %#v", values[1])
	}
	gotProps, ok := values[2].(map[string]interface{})
	if !ok {
		t.Fatalf("expected command object map, got %T", values[2])
	}
	if gotProps["app"] != "live" || gotProps["tcUrl"] != "rtmp://example.com/live" || gotProps["fpad"] != false {
		t.Fatalf("command object fields lost: %+v", gotProps)
	}
}

func TestLegacyMarshalUnmarshalScalar(t *testing.T) {
	b, err := Marshal("hello")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	v, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v != "hello" {
		t.Fatalf("expected 'hello', got %#v", v)
	}
}

func TestLegacyEncodeValueNil(t *testing.T) {
	b, err := Marshal(nil)
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	v, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil, got %#v", v)
	}
}
