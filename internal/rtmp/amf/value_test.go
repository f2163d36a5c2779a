package amf

import "testing"

func TestObjectPreservesOrderAndOverwrite(t *testing.T) {
	v := Object(P("a", Number(1)), P("b", Number(2)), P("a", Number(3)))
	if len(v.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d (%v)", len(v.Keys), v.Keys)
	}
	if v.Keys[0] != "a" || v.Keys[1] != "b" {
		t.Fatalf("unexpected key order: %v", v.Keys)
	}
	if v.Get("a").Num != 3 {
		t.Fatalf("expected overwritten value 3, got %v", v.Get("a").Num)
	}
}

func TestGetMissingKeyReturnsNull(t *testing.T) {
	v := Object(P("a", Number(1)))
	if got := v.Get("missing"); got.Kind != KindNull {
		t.Fatalf("expected Null for missing key, got %v", got)
	}
}

func TestSetAssocPreservesOrder(t *testing.T) {
	v := Array()
	v.SetAssoc("x", Number(1))
	v.SetAssoc("y", Number(2))
	v.SetAssoc("x", Number(3))
	if len(v.AssocKeys) != 2 {
		t.Fatalf("expected 2 assoc keys, got %v", v.AssocKeys)
	}
	if v.Assoc["x"].Num != 3 {
		t.Fatalf("expected overwritten assoc value 3, got %v", v.Assoc["x"].Num)
	}
}

func TestTypedObjectCarriesClassName(t *testing.T) {
	v := TypedObject("MyClass", P("a", Bool(true)))
	if v.Kind != KindTypedObject || v.ClassName != "MyClass" {
		t.Fatalf("unexpected typed object: %+v", v)
	}
}
