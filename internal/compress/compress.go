// Package compress provides the codec pair used to shrink batch payloads
// before they are persisted by the event store or handed to the broker
// adapter's hot broadcast path.
package compress

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressor applies symmetric compression to payload byte slices.
type Compressor interface {
	//1.- Name returns the codec identifier advertised alongside encoded payloads.
	Name() string
	//2.- Compress encodes the provided payload into a compressed representation.
	Compress(data []byte) ([]byte, error)
	//3.- Decompress restores the original payload from its compressed form.
	Decompress(data []byte) ([]byte, error)
}

// zstdCompressor wraps klauspost/compress/zstd, used for large batch
// payloads where ratio matters more than per-call allocation cost.
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor constructs a Compressor backed by zstd.
func NewZstdCompressor() (Compressor, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCompressor{encoder: encoder, decoder: decoder}, nil
}

// Name reports the identifier used for zstd encoded payloads.
func (z *zstdCompressor) Name() string { return "zstd" }

// Compress encodes data using the zstd format.
func (z *zstdCompressor) Compress(data []byte) ([]byte, error) {
	//1.- EncodeAll reuses the encoder's dictionary state across calls.
	return z.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// Decompress decodes zstd-encoded data and returns the raw payload.
func (z *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("zstd decompress: empty payload")
	}
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// snappyCompressor wraps github.com/golang/snappy, used on the hot
// broadcast path where encode/decode latency matters more than ratio.
type snappyCompressor struct{}

// NewSnappyCompressor constructs a Compressor backed by snappy.
func NewSnappyCompressor() Compressor {
	return snappyCompressor{}
}

// Name reports the identifier used for snappy encoded payloads.
func (snappyCompressor) Name() string { return "snappy" }

// Compress encodes data using the snappy block format.
func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress decodes snappy-encoded data and returns the raw payload.
func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("snappy decompress: empty payload")
	}
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}
