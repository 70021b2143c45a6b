package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// SerializeVector converts a float32 slice to a byte blob (little-endian IEEE 754).
// The round trip is exact.
func SerializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// DeserializeVector converts a byte blob back to a float32 slice
func DeserializeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d (not multiple of 4)", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// DecodeVectorValue decodes a raw vector column value. BLOBs use the
// SerializeVector layout; TEXT values holding a JSON number array are also
// accepted. NULL decodes to a nil vector without error.
func DecodeVectorValue(v interface{}) ([]float32, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(val) > 0 && val[0] == '[' {
			return decodeJSONVector(string(val))
		}
		return DeserializeVector(val)
	case string:
		return decodeJSONVector(val)
	default:
		return nil, fmt.Errorf("unsupported vector value type %T", v)
	}
}

func decodeJSONVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var vector []float32
	if err := json.Unmarshal([]byte(s), &vector); err != nil {
		return nil, fmt.Errorf("invalid JSON vector: %w", err)
	}
	return vector, nil
}
