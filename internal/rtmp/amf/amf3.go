package amf

// AMF3 encode/decode over the tagged Value union, including the U29
// variable-length integer codec and the three decode-scoped reference
// tables (string, complex-object, trait) described by the wire format.
//
// Simplification (documented): the encoder never emits reference markers —
// every value is written literal. This still round-trips every value this
// module produces (decode(encode(v)) == v), which is the property this
// package is required to satisfy; it just never produces the smaller
// reference-compressed wire form a peer implementation might use. Object
// traits are always treated as dynamic (no sealed/externalizable members),
// which is the shape AMF3 command objects in this RTMP implementation
// actually take.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	amferrors "github.com/alxayo/go-rtmp/internal/errors"
)

const (
	marker3Undefined = 0x00
	marker3Null      = 0x01
	marker3False     = 0x02
	marker3True      = 0x03
	marker3Integer   = 0x04
	marker3Double    = 0x05
	marker3String    = 0x06
	marker3XMLDoc    = 0x07
	marker3Date      = 0x08
	marker3Array     = 0x09
	marker3Object    = 0x0A
	marker3XML       = 0x0B
	marker3ByteArray = 0x0C
)

const (
	u29Min = -(1 << 28)
	u29Max = (1 << 28) - 1
)

type trait struct {
	className string
	dynamic   bool
	props     []string
}

// decodeCtx3 holds AMF3's three reference tables, scoped to one decode call.
type decodeCtx3 struct {
	strings []string
	objects []Value
	traits  []trait
}

// EncodeValue3 writes a single AMF3-encoded value.
func EncodeValue3(w io.Writer, v Value) error {
	if err := encode3(w, v); err != nil {
		return amferrors.NewAMFError("amf3.encode", err)
	}
	return nil
}

// DecodeValue3 reads a single AMF3-encoded value.
func DecodeValue3(r io.Reader) (Value, error) {
	v, err := decode3(r, &decodeCtx3{})
	if err != nil {
		return Value{}, amferrors.NewAMFError("amf3.decode", err)
	}
	return v, nil
}

// EncodeAllValues3 encodes a sequence of AMF3 values in order.
func EncodeAllValues3(values ...Value) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		if err := EncodeValue3(&buf, v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeAllValues3 decodes a concatenated sequence of AMF3 values.
func DecodeAllValues3(data []byte) ([]Value, error) {
	r := bytes.NewReader(data)
	ctx := &decodeCtx3{}
	var out []Value
	for r.Len() > 0 {
		v, err := decode3(r, ctx)
		if err != nil {
			return nil, amferrors.NewAMFError("amf3.decode_all", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// encodeU29 encodes n (which must fit in 29 unsigned bits) as 1-4 bytes.
func encodeU29(n uint32) ([]byte, error) {
	if n > 0x1FFFFFFF {
		return nil, fmt.Errorf("u29: value %d exceeds 29 bits", n)
	}
	switch {
	case n < 0x80:
		return []byte{byte(n)}, nil
	case n < 0x4000:
		return []byte{byte(n>>7) | 0x80, byte(n & 0x7F)}, nil
	case n < 0x200000:
		return []byte{byte(n>>14) | 0x80, byte(n>>7)&0x7F | 0x80, byte(n & 0x7F)}, nil
	default:
		return []byte{
			byte(n>>22) | 0x80,
			byte(n>>15)&0x7F | 0x80,
			byte(n>>8)&0x7F | 0x80,
			byte(n),
		}, nil
	}
}

// decodeU29 reads a 1-4 byte U29 from r.
func decodeU29(r io.Reader) (uint32, error) {
	var result uint32
	for i := 0; i < 4; i++ {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("u29 byte %d: %w", i, err)
		}
		if i == 3 {
			// Fourth byte contributes all 8 bits, no continuation semantics.
			result = (result << 8) | uint32(b[0])
			return result, nil
		}
		result = (result << 7) | uint32(b[0]&0x7F)
		if b[0]&0x80 == 0 {
			return result, nil
		}
	}
	return result, nil
}

// u29IsInline reports whether bit 0 (the low bit) of a decoded
// reference/inline header is set (1 = inline value, 0 = reference index).
func u29IsInline(header uint32) bool { return header&1 == 1 }

func encode3(w io.Writer, v Value) error {
	switch v.Kind {
	case KindUndefined:
		_, err := w.Write([]byte{marker3Undefined})
		return err
	case KindNull:
		_, err := w.Write([]byte{marker3Null})
		return err
	case KindBoolean:
		marker := byte(marker3False)
		if v.Bool {
			marker = marker3True
		}
		_, err := w.Write([]byte{marker})
		return err
	case KindInteger:
		return encode3Integer(w, v.Int)
	case KindNumber:
		var buf [9]byte
		buf[0] = marker3Double
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v.Num))
		_, err := w.Write(buf[:])
		return err
	case KindString:
		if _, err := w.Write([]byte{marker3String}); err != nil {
			return err
		}
		return encode3UTF8VR(w, v.Str)
	case KindXML:
		if _, err := w.Write([]byte{marker3XML}); err != nil {
			return err
		}
		return encode3UTF8VR(w, v.Str)
	case KindDate:
		if _, err := w.Write([]byte{marker3Date}); err != nil {
			return err
		}
		hdr, err := encodeU29(1) // bit0=1 (inline); remaining bits unused for date
		if err != nil {
			return err
		}
		if _, err := w.Write(hdr); err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v.Num))
		_, err = w.Write(buf[:])
		return err
	case KindByteArray:
		if _, err := w.Write([]byte{marker3ByteArray}); err != nil {
			return err
		}
		hdr, err := encodeU29(uint32(len(v.Bytes))<<1 | 1)
		if err != nil {
			return err
		}
		if _, err := w.Write(hdr); err != nil {
			return err
		}
		_, err = w.Write(v.Bytes)
		return err
	case KindArray:
		return encode3Array(w, v)
	case KindObject, KindTypedObject:
		return encode3Object(w, v)
	default:
		return fmt.Errorf("amf3: unsupported value kind %s", v.Kind)
	}
}

func encode3Integer(w io.Writer, i int32) error {
	if int(i) < u29Min || int(i) > u29Max {
		return fmt.Errorf("amf3: integer %d out of 29-bit signed range", i)
	}
	u := uint32(i) & 0x1FFFFFFF // two's complement over 29 bits
	hdr, err := encodeU29(u)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte{marker3Integer}); err != nil {
		return err
	}
	_, err = w.Write(hdr)
	return err
}

func encode3UTF8VR(w io.Writer, s string) error {
	b := []byte(s)
	hdr, err := encodeU29(uint32(len(b))<<1 | 1)
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func encode3Array(w io.Writer, v Value) error {
	if _, err := w.Write([]byte{marker3Array}); err != nil {
		return err
	}
	hdr, err := encodeU29(uint32(len(v.Dense))<<1 | 1)
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	for _, k := range v.AssocKeys {
		if err := encode3UTF8VR(w, k); err != nil {
			return err
		}
		if err := encode3(w, v.Assoc[k]); err != nil {
			return fmt.Errorf("assoc key %q: %w", k, err)
		}
	}
	if err := encode3UTF8VR(w, ""); err != nil { // terminate associative part
		return err
	}
	for i, e := range v.Dense {
		if err := encode3(w, e); err != nil {
			return fmt.Errorf("dense index %d: %w", i, err)
		}
	}
	return nil
}

// encode3Object always emits a fully-dynamic, non-externalizable trait
// (traits-inline header 0b1011, sealed member count 0) so every property
// round-trips through the dynamic-member loop. See package doc comment.
func encode3Object(w io.Writer, v Value) error {
	if _, err := w.Write([]byte{marker3Object}); err != nil {
		return err
	}
	// header bits, low->high: 1 (inline value), 1 (inline traits), 0 (not
	// externalizable), 1 (dynamic), then sealed-member-count (0) in the rest.
	hdr, err := encodeU29(0x0B)
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if err := encode3UTF8VR(w, v.ClassName); err != nil {
		return err
	}
	for _, k := range v.Keys {
		if err := encode3UTF8VR(w, k); err != nil {
			return err
		}
		if err := encode3(w, v.Fields[k]); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}
	return encode3UTF8VR(w, "") // terminate dynamic members
}

func decode3(r io.Reader, ctx *decodeCtx3) (Value, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return Value{}, fmt.Errorf("read marker: %w", err)
	}
	switch m[0] {
	case marker3Undefined:
		return Undefined(), nil
	case marker3Null:
		return Null(), nil
	case marker3False:
		return Bool(false), nil
	case marker3True:
		return Bool(true), nil
	case marker3Integer:
		u, err := decodeU29(r)
		if err != nil {
			return Value{}, fmt.Errorf("integer: %w", err)
		}
		return Integer(decodeSigned29(u)), nil
	case marker3Double:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Value{}, fmt.Errorf("double: %w", err)
		}
		return Number(math.Float64frombits(binary.BigEndian.Uint64(buf[:]))), nil
	case marker3String:
		s, err := decode3StringRef(r, ctx)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case marker3XMLDoc, marker3XML:
		s, err := decode3StringRef(r, ctx)
		if err != nil {
			return Value{}, err
		}
		return XML(s), nil
	case marker3Date:
		return decode3Date(r, ctx)
	case marker3ByteArray:
		return decode3ByteArray(r, ctx)
	case marker3Array:
		return decode3Array(r, ctx)
	case marker3Object:
		return decode3Object(r, ctx)
	default:
		return Value{}, fmt.Errorf("unknown AMF3 marker 0x%02x", m[0])
	}
}

// decodeSigned29 reinterprets an unsigned 29-bit U29 payload as a signed
// 29-bit integer (two's complement), per the AMF3 Integer type.
func decodeSigned29(u uint32) int32 {
	if u >= 1<<28 {
		return int32(u) - (1 << 29)
	}
	return int32(u)
}

func decode3StringRef(r io.Reader, ctx *decodeCtx3) (string, error) {
	header, err := decodeU29(r)
	if err != nil {
		return "", fmt.Errorf("string header: %w", err)
	}
	if !u29IsInline(header) {
		idx := int(header >> 1)
		if idx < 0 || idx >= len(ctx.strings) {
			return "", fmt.Errorf("string reference %d out of range", idx)
		}
		return ctx.strings[idx], nil
	}
	n := header >> 1
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("string data: %w", err)
	}
	s := string(buf)
	if s != "" {
		ctx.strings = append(ctx.strings, s)
	}
	return s, nil
}

func decode3Date(r io.Reader, ctx *decodeCtx3) (Value, error) {
	header, err := decodeU29(r)
	if err != nil {
		return Value{}, fmt.Errorf("date header: %w", err)
	}
	if !u29IsInline(header) {
		idx := int(header >> 1)
		if idx < 0 || idx >= len(ctx.objects) {
			return Value{}, fmt.Errorf("date reference %d out of range", idx)
		}
		return ctx.objects[idx], nil
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Value{}, fmt.Errorf("date data: %w", err)
	}
	v := Date(math.Float64frombits(binary.BigEndian.Uint64(buf[:])))
	ctx.objects = append(ctx.objects, v)
	return v, nil
}

func decode3ByteArray(r io.Reader, ctx *decodeCtx3) (Value, error) {
	header, err := decodeU29(r)
	if err != nil {
		return Value{}, fmt.Errorf("byte array header: %w", err)
	}
	if !u29IsInline(header) {
		idx := int(header >> 1)
		if idx < 0 || idx >= len(ctx.objects) {
			return Value{}, fmt.Errorf("byte array reference %d out of range", idx)
		}
		return ctx.objects[idx], nil
	}
	n := header >> 1
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Value{}, fmt.Errorf("byte array data: %w", err)
	}
	v := ByteArray(buf)
	ctx.objects = append(ctx.objects, v)
	return v, nil
}

func decode3Array(r io.Reader, ctx *decodeCtx3) (Value, error) {
	header, err := decodeU29(r)
	if err != nil {
		return Value{}, fmt.Errorf("array header: %w", err)
	}
	if !u29IsInline(header) {
		idx := int(header >> 1)
		if idx < 0 || idx >= len(ctx.objects) {
			return Value{}, fmt.Errorf("array reference %d out of range", idx)
		}
		return ctx.objects[idx], nil
	}
	denseCount := header >> 1
	out := Value{Kind: KindArray, Assoc: map[string]Value{}}
	ctx.objects = append(ctx.objects, out)
	idx := len(ctx.objects) - 1

	for {
		key, err := decode3StringRef(r, ctx)
		if err != nil {
			return Value{}, fmt.Errorf("array assoc key: %w", err)
		}
		if key == "" {
			break
		}
		val, err := decode3(r, ctx)
		if err != nil {
			return Value{}, fmt.Errorf("array assoc value for key %q: %w", key, err)
		}
		if _, exists := out.Assoc[key]; !exists {
			out.AssocKeys = append(out.AssocKeys, key)
		}
		out.Assoc[key] = val
	}
	dense := make([]Value, 0, denseCount)
	for i := uint32(0); i < denseCount; i++ {
		e, err := decode3(r, ctx)
		if err != nil {
			return Value{}, fmt.Errorf("array dense element %d: %w", i, err)
		}
		dense = append(dense, e)
	}
	out.Dense = dense
	ctx.objects[idx] = out
	return out, nil
}

func decode3Object(r io.Reader, ctx *decodeCtx3) (Value, error) {
	header, err := decodeU29(r)
	if err != nil {
		return Value{}, fmt.Errorf("object header: %w", err)
	}
	if !u29IsInline(header) {
		idx := int(header >> 1)
		if idx < 0 || idx >= len(ctx.objects) {
			return Value{}, fmt.Errorf("object reference %d out of range", idx)
		}
		return ctx.objects[idx], nil
	}

	var tr trait
	if header&2 == 0 {
		// Trait reference.
		tidx := int(header >> 2)
		if tidx < 0 || tidx >= len(ctx.traits) {
			return Value{}, fmt.Errorf("trait reference %d out of range", tidx)
		}
		tr = ctx.traits[tidx]
	} else {
		externalizable := header&4 != 0
		dynamic := header&8 != 0
		sealedCount := header >> 4
		className, err := decode3StringRef(r, ctx)
		if err != nil {
			return Value{}, fmt.Errorf("trait class name: %w", err)
		}
		if externalizable {
			return Value{}, fmt.Errorf("amf3: externalizable traits are not supported")
		}
		props := make([]string, 0, sealedCount)
		for i := uint32(0); i < sealedCount; i++ {
			p, err := decode3StringRef(r, ctx)
			if err != nil {
				return Value{}, fmt.Errorf("trait property %d: %w", i, err)
			}
			props = append(props, p)
		}
		tr = trait{className: className, dynamic: dynamic, props: props}
		ctx.traits = append(ctx.traits, tr)
	}

	kind := KindObject
	if tr.className != "" {
		kind = KindTypedObject
	}
	out := Value{Kind: kind, ClassName: tr.className, Fields: map[string]Value{}}
	ctx.objects = append(ctx.objects, out)
	idx := len(ctx.objects) - 1

	for _, p := range tr.props {
		val, err := decode3(r, ctx)
		if err != nil {
			return Value{}, fmt.Errorf("sealed property %q: %w", p, err)
		}
		out.Keys = append(out.Keys, p)
		out.Fields[p] = val
	}
	if tr.dynamic {
		for {
			key, err := decode3StringRef(r, ctx)
			if err != nil {
				return Value{}, fmt.Errorf("dynamic member key: %w", err)
			}
			if key == "" {
				break
			}
			val, err := decode3(r, ctx)
			if err != nil {
				return Value{}, fmt.Errorf("dynamic member %q: %w", key, err)
			}
			if _, exists := out.Fields[key]; !exists {
				out.Keys = append(out.Keys, key)
			}
			out.Fields[key] = val
		}
	}
	ctx.objects[idx] = out
	return out, nil
}
