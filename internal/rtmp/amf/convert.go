package amf

import "sort"

// ToGo converts a Value tree into plain Go values (map[string]interface{},
// []interface{}, float64, string, bool, []byte, nil), the shape
// github.com/mitchellh/mapstructure and the rest of this module's rpc layer
// expect when decoding command objects.
func (v Value) ToGo() interface{} {
	switch v.Kind {
	case KindNull, KindUndefined:
		return nil
	case KindBoolean:
		return v.Bool
	case KindNumber, KindDate:
		return v.Num
	case KindInteger:
		return float64(v.Int)
	case KindString, KindXML:
		return v.Str
	case KindByteArray:
		return v.Bytes
	case KindObject, KindTypedObject:
		m := make(map[string]interface{}, len(v.Keys))
		for _, k := range v.Keys {
			m[k] = v.Fields[k].ToGo()
		}
		return m
	case KindArray:
		if len(v.Dense) == 0 && len(v.AssocKeys) > 0 {
			m := make(map[string]interface{}, len(v.AssocKeys))
			for _, k := range v.AssocKeys {
				m[k] = v.Assoc[k].ToGo()
			}
			return m
		}
		out := make([]interface{}, len(v.Dense))
		for i, e := range v.Dense {
			out[i] = e.ToGo()
		}
		return out
	default:
		return nil
	}
}

// FromGo converts a plain Go value into a Value tree. Supported inputs:
// nil, bool, float64, float32, int, int32, int64 and uint32 (widened to
// float64), string, []byte, map[string]interface{} (keys sorted for
// deterministic wire output), []interface{}, and Value itself (returned
// unchanged). Any other type, including other integer widths, becomes Null.
func FromGo(x interface{}) Value {
	switch vv := x.(type) {
	case nil:
		return Null()
	case Value:
		return vv
	case bool:
		return Bool(vv)
	case float64:
		return Number(vv)
	case float32:
		return Number(float64(vv))
	case int:
		return Number(float64(vv))
	case int32:
		return Number(float64(vv))
	case int64:
		return Number(float64(vv))
	case uint32:
		return Number(float64(vv))
	case string:
		return String(vv)
	case []byte:
		return ByteArray(vv)
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := Value{Kind: KindObject, Fields: make(map[string]Value, len(vv))}
		for _, k := range keys {
			obj.Keys = append(obj.Keys, k)
			obj.Fields[k] = FromGo(vv[k])
		}
		return obj
	case []interface{}:
		dense := make([]Value, len(vv))
		for i, e := range vv {
			dense[i] = FromGo(e)
		}
		return Array(dense...)
	default:
		return Null()
	}
}
