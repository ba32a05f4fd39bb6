// Package codec converts between raw face-embedding vectors and the
// little-endian byte form stored on face documents.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementType is the numeric type the embedding's bytes decode to.
type ElementType int

const (
	F32 ElementType = iota
	F64
)

func (t ElementType) String() string {
	if t == F64 {
		return "f64"
	}
	return "f32"
}

// Vector is a decoded embedding together with the element type it was
// decoded as. Exactly one of F32/F64 is populated, matching ElemType.
type Vector struct {
	ElemType ElementType
	Dim      int
	F32      []float32
	F64      []float64
}

// Origin describes which detector family produced an embedding of this
// byte length, per the table in §4.1.
type Origin string

const (
	OriginArcFace   Origin = "arcface"    // 2048 bytes, 512 f32
	OriginLegacy128 Origin = "legacy-128" // 1024 bytes, 128 f64
	OriginBrowser   Origin = "browser"    // 512 bytes, 128 f32
)

// ErrUnsupportedLength is returned by Decode for any byte length outside
// {512, 1024, 2048}.
type ErrUnsupportedLength int

func (e ErrUnsupportedLength) Error() string {
	return fmt.Sprintf("codec: unsupported embedding byte length %d", int(e))
}

// EncodeF32 serialises a float32 vector as little-endian bytes.
func EncodeF32(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// EncodeF64 serialises a float64 vector as little-endian bytes.
func EncodeF64(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

// Encode serialises v according to its own element type.
func Encode(v Vector) []byte {
	if v.ElemType == F64 {
		return EncodeF64(v.F64)
	}
	return EncodeF32(v.F32)
}

// Decode infers dimension and element type from byte length and returns
// the decoded vector. Any length outside {512, 1024, 2048} is an error;
// the byte length to (dim, type) mapping matches §4.1's table.
func Decode(data []byte) (Vector, error) {
	switch len(data) {
	case 2048: // ArcFace: 512 x float32
		return Vector{ElemType: F32, Dim: 512, F32: decodeF32(data)}, nil
	case 1024: // legacy 128-d detector: 128 x float64
		return Vector{ElemType: F64, Dim: 128, F64: decodeF64(data)}, nil
	case 512: // browser-side detector: 128 x float32
		return Vector{ElemType: F32, Dim: 128, F32: decodeF32(data)}, nil
	default:
		return Vector{}, ErrUnsupportedLength(len(data))
	}
}

// OriginOf returns the detector family implied by an embedding's byte
// length, or "" if the length is unsupported.
func OriginOf(byteLen int) Origin {
	switch byteLen {
	case 2048:
		return OriginArcFace
	case 1024:
		return OriginLegacy128
	case 512:
		return OriginBrowser
	default:
		return ""
	}
}

func decodeF32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func decodeF64(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}

// Normalize L2-normalises v in place. Used by the worker runtime on the
// 512-d/f32 (ArcFace) path per §4.1, not enforced by the codec itself.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
