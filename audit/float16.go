package audit

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster decoding of stored
	// embeddings
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// encodeEmbedding packs a feature vector as little endian half precision
// floats
func encodeEmbedding(feat []float32) []byte {

	buf := make([]byte, 2*len(feat))

	for i, v := range feat {
		binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
	}

	return buf
}

// decodeEmbedding reverses encodeEmbedding
func decodeEmbedding(buf []byte) ([]float32, error) {

	if len(buf)%2 != 0 {
		return nil, fmt.Errorf("embedding blob has odd length %d", len(buf))
	}

	feat := make([]float32, len(buf)/2)

	for i := range feat {
		feat[i] = f16LookupTable[binary.LittleEndian.Uint16(buf[2*i:])]
	}

	return feat, nil
}
