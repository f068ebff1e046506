package vecstore

import (
	"encoding/binary"
	"math"

	"github.com/quiltlab/quilt/errors"
)

// Serialize converts an embedding to FLOAT32_BLOB format for sqlite-vec.
// sqlite-vec expects a little-endian float32 array.
func Serialize(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, errors.New("embedding cannot be empty")
	}
	buf := make([]byte, len(vec)*4)
	for i, val := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf, nil
}

// Deserialize converts a FLOAT32_BLOB back to []float32.
func Deserialize(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errors.Newf("invalid embedding data length: %d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
