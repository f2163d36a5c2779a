package amf

// Kind identifies which variant of the tagged AMF value union a Value holds.
// The union spans both AMF0 and AMF3; not every Kind is reachable from AMF0
// (e.g. KindInteger is AMF3-only — AMF0 numbers are always float64).
type Kind uint8

const (
	KindNull Kind = iota
	KindUndefined
	KindBoolean
	KindNumber
	KindInteger // AMF3 only: 29-bit signed integer
	KindString
	KindXML
	KindDate
	KindArray
	KindObject
	KindTypedObject
	KindByteArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindXML:
		return "xml"
	case KindDate:
		return "date"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindTypedObject:
		return "typed_object"
	case KindByteArray:
		return "byte_array"
	default:
		return "unknown"
	}
}

// Value is a closed tagged union over every AMF0/AMF3 value shape. Reference
// tables used during decode are decode-local state (see decodeCtx0/decodeCtx3)
// and never surface in a Value — a decoded reference is always resolved to
// the value it points at before being returned.
type Value struct {
	Kind Kind

	Bool bool    // KindBoolean
	Num  float64 // KindNumber, KindDate (ms since epoch; timezone is ignored)
	Int  int32   // KindInteger

	Str       string // KindString, KindXML
	ClassName string // KindTypedObject
	Bytes     []byte // KindByteArray

	// KindObject / KindTypedObject: Keys preserves insertion order, which is
	// significant for AMF0 wire output.
	Keys   []string
	Fields map[string]Value

	// KindArray: Dense is the ordered index-keyed part; Assoc is the ordered
	// associative part (AMF3 arrays carry both; AMF0 Strict/ECMA arrays use
	// only one or the other).
	Dense     []Value
	AssocKeys []string
	Assoc     map[string]Value
}

func Null() Value      { return Value{Kind: KindNull} }
func Undefined() Value { return Value{Kind: KindUndefined} }
func Bool(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Integer(i int32) Value  { return Value{Kind: KindInteger, Int: i} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func XML(s string) Value     { return Value{Kind: KindXML, Str: s} }

// Date constructs a Date value from milliseconds since the Unix epoch.
func Date(ms float64) Value { return Value{Kind: KindDate, Num: ms} }

func ByteArray(b []byte) Value { return Value{Kind: KindByteArray, Bytes: b} }

// KV is a single object field, used to build Object/TypedObject values while
// preserving field order.
type KV struct {
	Key string
	Val Value
}

// P constructs a KV pair (short for "property").
func P(key string, val Value) KV { return KV{Key: key, Val: val} }

// Object builds an Object value, preserving the order pairs are given in.
// A repeated key overwrites the earlier value but keeps its original position.
func Object(pairs ...KV) Value {
	v := Value{Kind: KindObject, Fields: make(map[string]Value, len(pairs))}
	for _, p := range pairs {
		if _, exists := v.Fields[p.Key]; !exists {
			v.Keys = append(v.Keys, p.Key)
		}
		v.Fields[p.Key] = p.Val
	}
	return v
}

// TypedObject builds a class-tagged Object (AMF0 marker 0x10 / AMF3 dynamic trait with a class name).
func TypedObject(class string, pairs ...KV) Value {
	v := Object(pairs...)
	v.Kind = KindTypedObject
	v.ClassName = class
	return v
}

// Get returns a field of an Object/TypedObject value, or Null if absent.
func (v Value) Get(key string) Value {
	if v.Fields == nil {
		return Null()
	}
	if fv, ok := v.Fields[key]; ok {
		return fv
	}
	return Null()
}

// Array builds a dense (index-keyed) array value. Use SetAssoc to add
// associative members (only meaningful for AMF3 encoding / ECMA arrays).
func Array(dense ...Value) Value {
	return Value{Kind: KindArray, Dense: dense}
}

// SetAssoc adds (or overwrites) an associative member on an Array value,
// preserving insertion order of keys.
func (v *Value) SetAssoc(key string, val Value) {
	if v.Assoc == nil {
		v.Assoc = make(map[string]Value)
	}
	if _, exists := v.Assoc[key]; !exists {
		v.AssocKeys = append(v.AssocKeys, key)
	}
	v.Assoc[key] = val
}
