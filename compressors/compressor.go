// Package compressors provides optional payload compression for encoded
// admin operations. OperationCodec selects one by CompressionType when
// writing a record and reads the type back out of the record header.
package compressors

import (
	"bytes"
	"io"
)

// CompressionType identifies which algorithm produced a compressed
// payload. It is written into the record header so a reader never has to
// guess.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZSTD
	CompressionLZ4
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Compressor compresses and decompresses operation payloads.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) (io.ReadCloser, error)
	Type() CompressionType
	// CompressTo compresses src into dst, avoiding an intermediate
	// allocation when the caller already owns a reusable buffer.
	CompressTo(dst *bytes.Buffer, src []byte) error
}

// ByType returns the Compressor registered for t, or an error if t is
// not recognized.
func ByType(t CompressionType) (Compressor, error) {
	switch t {
	case CompressionNone:
		return &NoCompressionCompressor{}, nil
	case CompressionSnappy:
		return NewSnappyCompressor(), nil
	case CompressionZSTD:
		return NewZstdCompressor(), nil
	case CompressionLZ4:
		return NewLz4Compressor(), nil
	default:
		return nil, errUnknownCompressionType(t)
	}
}

type errUnknownCompressionType CompressionType

func (e errUnknownCompressionType) Error() string {
	return "compressors: unknown compression type " + CompressionType(e).String()
}
