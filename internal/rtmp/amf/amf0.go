package amf

// AMF0 encode/decode over the tagged Value union. Covers every marker listed
// in the wire format: Number, Boolean, String, Object, MovieClip(reserved,
// rejected), Null, Undefined, Reference, ECMA Array, Object-End, Strict
// Array, Date, Long String, Unsupported(rejected), XMLDocument, Typed Object,
// and the AMF3-switch marker.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	amferrors "github.com/alxayo/go-rtmp/internal/errors"
)

const (
	marker0Number      = 0x00
	marker0Boolean     = 0x01
	marker0String      = 0x02
	marker0Object      = 0x03
	marker0MovieClip   = 0x04 // reserved, never implemented by any real encoder
	marker0Null        = 0x05
	marker0Undefined   = 0x06
	marker0Reference   = 0x07
	marker0ECMAArray   = 0x08
	marker0ObjectEnd   = 0x09
	marker0StrictArray = 0x0A
	marker0Date        = 0x0B
	marker0LongString  = 0x0C
	marker0Unsupported = 0x0D
	marker0RecordSet   = 0x0E // reserved, never implemented by any real encoder
	marker0XMLDocument = 0x0F
	marker0TypedObject = 0x10
	marker0AVMPlusObj  = 0x11 // switch-to-AMF3
)

// decodeCtx0 holds the AMF0 complex-object reference table, scoped to a
// single top-level decode call (DecodeValue0 / DecodeAllValues0).
type decodeCtx0 struct {
	complex []Value
}

// EncodeValue0 writes a single AMF0-encoded value.
func EncodeValue0(w io.Writer, v Value) error {
	if err := encode0(w, v); err != nil {
		return amferrors.NewAMFError("amf0.encode", err)
	}
	return nil
}

// DecodeValue0 reads a single AMF0-encoded value.
func DecodeValue0(r io.Reader) (Value, error) {
	ctx := &decodeCtx0{}
	v, err := decode0(r, ctx)
	if err != nil {
		return Value{}, amferrors.NewAMFError("amf0.decode", err)
	}
	return v, nil
}

func encode0(w io.Writer, v Value) error {
	switch v.Kind {
	case KindNull, KindUndefined:
		marker := byte(marker0Null)
		if v.Kind == KindUndefined {
			marker = marker0Undefined
		}
		_, err := w.Write([]byte{marker})
		return err
	case KindBoolean:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		_, err := w.Write([]byte{marker0Boolean, b})
		return err
	case KindNumber:
		var buf [9]byte
		buf[0] = marker0Number
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v.Num))
		_, err := w.Write(buf[:])
		return err
	case KindInteger:
		// AMF0 has no native integer type; widen to Number.
		return encode0(w, Number(float64(v.Int)))
	case KindString:
		return encode0String(w, v.Str)
	case KindXML:
		return encode0LongForm(w, marker0XMLDocument, v.Str)
	case KindDate:
		var buf [11]byte
		buf[0] = marker0Date
		binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(v.Num))
		// Timezone offset: always 0, per spec it is ignored on decode.
		buf[9], buf[10] = 0, 0
		_, err := w.Write(buf[:])
		return err
	case KindObject:
		if _, err := w.Write([]byte{marker0Object}); err != nil {
			return err
		}
		return encode0ObjectBody(w, v)
	case KindTypedObject:
		if _, err := w.Write([]byte{marker0TypedObject}); err != nil {
			return err
		}
		if err := encode0String(w, v.ClassName); err != nil {
			return err
		}
		return encode0ObjectBody(w, v)
	case KindArray:
		if len(v.AssocKeys) > 0 {
			return encode0ECMAArray(w, v)
		}
		return encode0StrictArray(w, v)
	case KindByteArray:
		// No AMF0 byte-array marker; carry raw bytes as a long string.
		return encode0LongForm(w, marker0LongString, string(v.Bytes))
	default:
		return fmt.Errorf("amf0: unsupported value kind %s", v.Kind)
	}
}

func encode0String(w io.Writer, s string) error {
	b := []byte(s)
	if len(b) > 0xFFFF {
		return encode0LongForm(w, marker0LongString, s)
	}
	var hdr [3]byte
	hdr[0] = marker0String
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func encode0LongForm(w io.Writer, marker byte, s string) error {
	b := []byte(s)
	if len(b) > 0xFFFFFFFF {
		return fmt.Errorf("amf0: long string exceeds u32 length")
	}
	var hdr [5]byte
	hdr[0] = marker
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func encode0ObjectBody(w io.Writer, v Value) error {
	for _, k := range v.Keys {
		if err := encode0ObjectKey(w, k); err != nil {
			return err
		}
		if err := encode0(w, v.Fields[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return encode0EndMarker(w)
}

func encode0ObjectKey(w io.Writer, k string) error {
	kb := []byte(k)
	if len(kb) > 0xFFFF {
		return fmt.Errorf("amf0: object key %q exceeds 65535 bytes", k)
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(kb)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(kb)
	return err
}

func encode0EndMarker(w io.Writer) error {
	_, err := w.Write([]byte{0x00, 0x00, marker0ObjectEnd})
	return err
}

func encode0StrictArray(w io.Writer, v Value) error {
	var hdr [5]byte
	hdr[0] = marker0StrictArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(v.Dense)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for i, e := range v.Dense {
		if err := encode0(w, e); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	return nil
}

func encode0ECMAArray(w io.Writer, v Value) error {
	var hdr [5]byte
	hdr[0] = marker0ECMAArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(v.AssocKeys)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, k := range v.AssocKeys {
		if err := encode0ObjectKey(w, k); err != nil {
			return err
		}
		if err := encode0(w, v.Assoc[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return encode0EndMarker(w)
}

func decode0(r io.Reader, ctx *decodeCtx0) (Value, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return Value{}, fmt.Errorf("read marker: %w", err)
	}
	return decode0WithMarker(m[0], r, ctx)
}

func decode0WithMarker(marker byte, r io.Reader, ctx *decodeCtx0) (Value, error) {
	switch marker {
	case marker0Number:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, fmt.Errorf("number: %w", err)
		}
		return Number(math.Float64frombits(binary.BigEndian.Uint64(buf[:]))), nil
	case marker0Boolean:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, fmt.Errorf("boolean: %w", err)
		}
		return Bool(buf[0] != 0), nil
	case marker0String:
		s, err := decode0ShortString(r)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case marker0Object:
		return decode0ObjectBody(r, ctx, KindObject, "")
	case marker0Null:
		return Null(), nil
	case marker0Undefined:
		return Undefined(), nil
	case marker0Reference:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, fmt.Errorf("reference: %w", err)
		}
		idx := int(binary.BigEndian.Uint16(buf[:]))
		if idx < 0 || idx >= len(ctx.complex) {
			return Value{}, fmt.Errorf("reference index %d out of range (table size %d)", idx, len(ctx.complex))
		}
		return ctx.complex[idx], nil
	case marker0ECMAArray:
		var cbuf [4]byte
		if _, err := io.ReadFull(r, cbuf[:]); err != nil {
			return Value{}, fmt.Errorf("ecma array count: %w", err)
		}
		return decode0ObjectBody(r, ctx, KindArray, "")
	case marker0StrictArray:
		var cbuf [4]byte
		if _, err := io.ReadFull(r, cbuf[:]); err != nil {
			return Value{}, fmt.Errorf("strict array count: %w", err)
		}
		count := binary.BigEndian.Uint32(cbuf[:])
		out := Array()
		ctx.complex = append(ctx.complex, out) // placeholder slot for self-references
		idx := len(ctx.complex) - 1
		dense := make([]Value, 0, count)
		for i := uint32(0); i < count; i++ {
			e, err := decode0(r, ctx)
			if err != nil {
				return Value{}, fmt.Errorf("strict array element %d: %w", i, err)
			}
			dense = append(dense, e)
		}
		out.Dense = dense
		ctx.complex[idx] = out
		return out, nil
	case marker0Date:
		var buf [10]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, fmt.Errorf("date: %w", err)
		}
		ms := math.Float64frombits(binary.BigEndian.Uint64(buf[:8]))
		return Date(ms), nil // trailing i16 timezone intentionally ignored
	case marker0LongString:
		s, err := decode0LongString(r)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case marker0XMLDocument:
		s, err := decode0LongString(r)
		if err != nil {
			return Value{}, err
		}
		return XML(s), nil
	case marker0TypedObject:
		className, err := decode0ShortString(r)
		if err != nil {
			return Value{}, fmt.Errorf("typed object class name: %w", err)
		}
		return decode0ObjectBody(r, ctx, KindTypedObject, className)
	case marker0MovieClip, marker0Unsupported, marker0RecordSet:
		return Value{}, fmt.Errorf("unsupported marker 0x%02x", marker)
	case marker0AVMPlusObj:
		return decode3(r, &decodeCtx3{})
	default:
		return Value{}, fmt.Errorf("unknown marker 0x%02x", marker)
	}
}

func decode0ShortString(r io.Reader) (string, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", fmt.Errorf("string length: %w", err)
	}
	n := binary.BigEndian.Uint16(lb[:])
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("string data: %w", err)
	}
	return string(buf), nil
}

func decode0LongString(r io.Reader) (string, error) {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", fmt.Errorf("long string length: %w", err)
	}
	n := binary.BigEndian.Uint32(lb[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("long string data: %w", err)
	}
	return string(buf), nil
}

// decode0ObjectBody reads the common {key,value}* terminated-by-end-marker
// body shared by Object, ECMA Array, and Typed Object, registering the
// result in the complex-object reference table before returning it (objects
// may reference themselves or earlier siblings in the same buffer).
func decode0ObjectBody(r io.Reader, ctx *decodeCtx0, kind Kind, className string) (Value, error) {
	out := Value{Kind: kind, ClassName: className}
	if kind == KindArray {
		out.Assoc = map[string]Value{}
	} else {
		out.Fields = map[string]Value{}
	}
	ctx.complex = append(ctx.complex, out)
	idx := len(ctx.complex) - 1

	for {
		key, err := decode0ShortString(r)
		if err != nil {
			return Value{}, fmt.Errorf("object key: %w", err)
		}
		if key == "" {
			var end [1]byte
			if _, err := io.ReadFull(r, end[:]); err != nil {
				return Value{}, fmt.Errorf("object end marker: %w", err)
			}
			if end[0] != marker0ObjectEnd {
				return Value{}, fmt.Errorf("expected object end marker 0x%02x, got 0x%02x", marker0ObjectEnd, end[0])
			}
			break
		}
		val, err := decode0(r, ctx)
		if err != nil {
			return Value{}, fmt.Errorf("object value for key %q: %w", key, err)
		}
		if kind == KindArray {
			if _, exists := out.Assoc[key]; !exists {
				out.AssocKeys = append(out.AssocKeys, key)
			}
			out.Assoc[key] = val
		} else {
			if _, exists := out.Fields[key]; !exists {
				out.Keys = append(out.Keys, key)
			}
			out.Fields[key] = val
		}
	}
	ctx.complex[idx] = out
	return out, nil
}

// DecodeAllValues0 decodes a concatenated sequence of AMF0 values, e.g. a
// full RTMP command message payload, until the buffer is exhausted.
func DecodeAllValues0(data []byte) ([]Value, error) {
	r := bytes.NewReader(data)
	ctx := &decodeCtx0{}
	var out []Value
	for r.Len() > 0 {
		v, err := decode0(r, ctx)
		if err != nil {
			return nil, amferrors.NewAMFError("amf0.decode_all", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeAllValues0 encodes a sequence of AMF0 values in order.
func EncodeAllValues0(values ...Value) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		if err := EncodeValue0(&buf, v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
