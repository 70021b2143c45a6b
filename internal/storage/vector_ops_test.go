package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	vector := []float32{0, 1, -1, 0.123456789, 3.4028235e38, -1.1754944e-38, float32(math.Pi)}

	decoded, err := DeserializeVector(SerializeVector(vector))
	require.NoError(t, err)
	assert.Equal(t, vector, decoded, "binary encoding is exact")
}

func TestDeserializeVectorRejectsTruncatedBlob(t *testing.T) {
	_, err := DeserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeVectorValue(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    []float32
		wantErr bool
	}{
		{name: "null", in: nil, want: nil},
		{name: "blob", in: SerializeVector([]float32{0.5, -2}), want: []float32{0.5, -2}},
		{name: "json text", in: "[0.25, 1e-3, -4]", want: []float32{0.25, 0.001, -4}},
		{name: "json bytes", in: []byte("[1,2]"), want: []float32{1, 2}},
		{name: "empty text", in: "  ", want: nil},
		{name: "bad json", in: "[1,", wantErr: true},
		{name: "bad blob", in: []byte{9, 9}, wantErr: true},
		{name: "integer", in: int64(3), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVectorValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
