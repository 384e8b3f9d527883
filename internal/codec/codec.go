// Package codec provides zstd compression for log-entry payloads. The
// KV backends do not call it; they store payloads as given.
package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compression identifies how a stored log entry payload was encoded.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZSTD
)

// Package-level encoder/decoder, safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("codec: init zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("codec: init zstd decoder: %v", err))
	}
}

// Compress compresses a log entry payload with zstd.
func Compress(data []byte) ([]byte, Compression) {
	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	return compressed, CompressionZSTD
}

// Decompress reverses Compress according to the Compression tag
// recorded alongside the payload.
func Decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionZSTD:
		return decoder.DecodeAll(data, nil)
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("codec: unsupported compression tag: %v", compression)
	}
}
