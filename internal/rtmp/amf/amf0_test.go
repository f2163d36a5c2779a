package amf

import (
	"bytes"
	"testing"
)

func roundTrip0(t *testing.T, v Value) Value {
	t.Helper()
	var buf bytes.Buffer
	if err := EncodeValue0(&buf, v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeValue0(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestAMF0RoundTripScalars(t *testing.T) {
	cases := []Value{
		Null(),
		Undefined(),
		Bool(true),
		Bool(false),
		Number(3.1415),
		Number(0),
		String("hello world"),
		XML("<a/>"),
		Date(1700000000000),
	}
	for _, c := range cases {
		got := roundTrip0(t, c)
		if got.Kind != c.Kind {
			t.Fatalf("kind mismatch: want %v got %v", c.Kind, got.Kind)
		}
		switch c.Kind {
		case KindBoolean:
			if got.Bool != c.Bool {
				t.Fatalf("bool mismatch: want %v got %v", c.Bool, got.Bool)
			}
		case KindNumber, KindDate:
			if got.Num != c.Num {
				t.Fatalf("num mismatch: want %v got %v", c.Num, got.Num)
			}
		case KindString, KindXML:
			if got.Str != c.Str {
				t.Fatalf("str mismatch: want %q got %q", c.Str, got.Str)
			}
		}
	}
}

func TestAMF0RoundTripObject(t *testing.T) {
	v := Object(
		P("app", String("live")),
		P("flashVer", String("FMLE/3.0")),
		P("tcUrl", String("rtmp://example.com/live")),
	)
	got := roundTrip0(t, v)
	if got.Kind != KindObject {
		t.Fatalf("expected object, got %v", got.Kind)
	}
	if got.Get("app").Str != "live" || got.Get("flashVer").Str != "FMLE/3.0" {
		t.Fatalf("object fields lost: %+v", got)
	}
	if len(got.Keys) != 3 || got.Keys[0] != "app" {
		t.Fatalf("key order lost: %v", got.Keys)
	}
}

func TestAMF0RoundTripTypedObject(t *testing.T) {
	v := TypedObject("MyClass", P("x", Number(1)))
	got := roundTrip0(t, v)
	if got.Kind != KindTypedObject || got.ClassName != "MyClass" {
		t.Fatalf("typed object lost: %+v", got)
	}
	if got.Get("x").Num != 1 {
		t.Fatalf("field lost: %+v", got)
	}
}

func TestAMF0RoundTripStrictArray(t *testing.T) {
	v := Array(Number(1), String("two"), Bool(true))
	got := roundTrip0(t, v)
	if got.Kind != KindArray || len(got.Dense) != 3 {
		t.Fatalf("array lost: %+v", got)
	}
	if got.Dense[0].Num != 1 || got.Dense[1].Str != "two" || got.Dense[2].Bool != true {
		t.Fatalf("array elements mismatch: %+v", got.Dense)
	}
}

func TestAMF0RoundTripECMAArray(t *testing.T) {
	v := Array()
	v.SetAssoc("one", Number(1))
	v.SetAssoc("two", Number(2))
	got := roundTrip0(t, v)
	if got.Kind != KindArray || len(got.AssocKeys) != 2 {
		t.Fatalf("ecma array lost: %+v", got)
	}
	if got.Assoc["one"].Num != 1 || got.Assoc["two"].Num != 2 {
		t.Fatalf("ecma array values mismatch: %+v", got.Assoc)
	}
}

func TestAMF0LongString(t *testing.T) {
	long := bytes.Repeat([]byte("x"), 0x10000+10)
	v := String(string(long))
	got := roundTrip0(t, v)
	if got.Kind != KindString || got.Str != string(long) {
		t.Fatalf("long string not preserved (len got=%d want=%d)", len(got.Str), len(long))
	}
}

func TestAMF0ReferenceResolution(t *testing.T) {
	// Two top-level objects; the second AMF0 value on the wire is an explicit
	// reference to complex-object table slot 0.
	var buf bytes.Buffer
	obj := Object(P("k", String("v")))
	if err := EncodeValue0(&buf, obj); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Write([]byte{marker0Reference, 0x00, 0x00})

	values, err := DecodeAllValues0(buf.Bytes())
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(values))
	}
	if values[1].Kind != KindObject || values[1].Get("k").Str != "v" {
		t.Fatalf("reference did not resolve to original object: %+v", values[1])
	}
}

func TestAMF0RejectsUnsupportedMarkers(t *testing.T) {
	for _, m := range []byte{marker0MovieClip, marker0Unsupported, marker0RecordSet} {
		r := bytes.NewReader([]byte{m})
		if _, err := DecodeValue0(r); err == nil {
			t.Fatalf("expected error decoding reserved marker 0x%02x", m)
		}
	}
}

func TestAMF0DecodeAllCommandPayload(t *testing.T) {
	data, err := EncodeAllValues0(String("connect"), Number(1), Object(P("app", String("live"))))
	if err != nil {
		t.Fatalf("encode all: %v", err)
	}
	values, err := DecodeAllValues0(data)
	if err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}
	if values[0].Str != "connect" || values[1].Num != 1 || values[2].Get("app").Str != "live" {
		t.Fatalf("unexpected decoded values: %+v", values)
	}
}
