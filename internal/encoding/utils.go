// Package encoding turns the float32 vectors C3 stores into the byte slices
// the SQLite BLOB column holds, and back.
package encoding

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrInvalidVector is returned when a vector is nil, empty, too large to
// encode, or (for DecodeVector) too short to be a well-formed blob.
var ErrInvalidVector = errors.New("invalid vector")

const (
	lengthPrefixBytes = 4
	float32Bytes      = 4
)

// EncodeVector packs vector into a single little-endian blob: a uint32
// element count followed by the IEEE-754 bit pattern of each element, all
// written into one pre-sized buffer rather than built up element-by-element.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}
	if len(vector) > math.MaxUint32 {
		return nil, ErrInvalidVector
	}

	out := make([]byte, lengthPrefixBytes+len(vector)*float32Bytes)
	binary.LittleEndian.PutUint32(out, uint32(len(vector)))
	for i, v := range vector {
		offset := lengthPrefixBytes + i*float32Bytes
		binary.LittleEndian.PutUint32(out[offset:], math.Float32bits(v))
	}
	return out, nil
}

// DecodeVector is EncodeVector's inverse: it reads the length prefix, then
// reconstructs each float32 from its stored bit pattern.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < lengthPrefixBytes {
		return nil, ErrInvalidVector
	}

	length := binary.LittleEndian.Uint32(data)
	data = data[lengthPrefixBytes:]
	if uint64(length)*float32Bytes != uint64(len(data)) {
		return nil, ErrInvalidVector
	}
	if length == 0 {
		return []float32{}, nil
	}

	vector := make([]float32, length)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(data[i*float32Bytes:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// ValidateVector rejects a vector unfit to store: nil, empty, or carrying
// a NaN/Inf component that would poison every downstream cosine score.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
