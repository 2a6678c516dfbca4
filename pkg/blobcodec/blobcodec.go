// Package blobcodec provides the zstd framing applied to every blob handed
// to the replication substrate's blob store, so any reader — the Document
// Session reading its own rows back, or the Blob Dispatcher resolving a
// view-side request — decodes the same way regardless of which component
// wrote the bytes.
package blobcodec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Codec holds one reusable zstd encoder/decoder pair. Both EncodeAll and
// DecodeAll are safe for concurrent use by multiple goroutines.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New builds a Codec.
func New() (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: build zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: build zstd reader: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Compress returns data framed as a zstd stream.
func (c *Codec) Compress(data []byte) []byte {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)))
}

// Decompress undoes Compress. Bytes that do not begin with the zstd frame
// magic number pass through unchanged, so a blob written before compression
// was wired in, or one a caller chose not to compress, still reads back
// correctly.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	if !HasMagic(data) {
		return data, nil
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: decode: %w", err)
	}
	return out, nil
}

var magic = [4]byte{0x28, 0xb5, 0x2f, 0xfd}

// HasMagic reports whether data begins with the zstd frame magic number.
func HasMagic(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return data[0] == magic[0] && data[1] == magic[1] && data[2] == magic[2] && data[3] == magic[3]
}
