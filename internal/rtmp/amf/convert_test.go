package amf

import "testing"

func TestToGoObject(t *testing.T) {
	v := Object(P("app", String("live")), P("level", Number(3)), P("ok", Bool(true)))
	got, ok := v.ToGo().(map[string]interface{})
	if !ok {
		t.Fatalf("expected map[string]interface{}, got %T", v.ToGo())
	}
	if got["app"] != "live" || got["level"] != float64(3) || got["ok"] != true {
		t.Fatalf("unexpected conversion: %+v", got)
	}
}

func TestToGoDenseArray(t *testing.T) {
	v := Array(Number(1), String("two"))
	got, ok := v.ToGo().([]interface{})
	if !ok {
		t.Fatalf("expected []interface{}, got %T", v.ToGo())
	}
	if len(got) != 2 || got[0] != float64(1) || got[1] != "two" {
		t.Fatalf("unexpected conversion: %+v", got)
	}
}

func TestFromGoObjectDeterministicKeyOrder(t *testing.T) {
	m := map[string]interface{}{"zeta": 1.0, "alpha": 2.0}
	v := FromGo(m)
	if len(v.Keys) != 2 || v.Keys[0] != "alpha" || v.Keys[1] != "zeta" {
		t.Fatalf("expected sorted key order, got %v", v.Keys)
	}
}

func TestFromGoToGoRoundTrip(t *testing.T) {
	orig := map[string]interface{}{
		"app":    "live",
		"tcUrl":  "rtmp://example.com/live",
		"active": true,
	}
	v := FromGo(orig)
	back, ok := v.ToGo().(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", v.ToGo())
	}
	for k, want := range orig {
		if back[k] != want {
			t.Fatalf("key %q: want %v got %v", k, want, back[k])
		}
	}
}
