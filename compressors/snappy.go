package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// SnappyCompressor implements Compressor using Snappy.
type SnappyCompressor struct{}

// snappyReadCloser wraps bytes.Reader so decompressed data can be
// returned as a stream.
type snappyReadCloser struct {
	*bytes.Reader
}

func (src *snappyReadCloser) Close() error {
	return nil
}

var _ Compressor = (*SnappyCompressor)(nil)
var _ io.ReadCloser = (*snappyReadCloser)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return &snappyReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *SnappyCompressor) Type() CompressionType {
	return CompressionSnappy
}

// CompressTo compresses src data into the dst buffer using Snappy's block
// format, the same format Decompress expects back.
func (c *SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	compressed := snappy.Encode(nil, src)
	dst.Write(compressed)
	return nil
}
