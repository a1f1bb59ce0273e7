package compressors

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// bufferPool is a small sync.Pool of *bytes.Buffer shared by the zstd
// encoder path, avoiding an allocation per Compress call.
var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// ZstdCompressor implements Compressor using zstd.
type ZstdCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

type zstdReadCloser struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (zrc *zstdReadCloser) Close() error {
	// Do not call zrc.Decoder.Close(), it invalidates the decoder for reuse.
	zrc.pool.Put(zrc.Decoder)
	return nil
}

var _ Compressor = (*ZstdCompressor)(nil)
var _ io.ReadCloser = (*zstdReadCloser)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{
		encoderPool: sync.Pool{
			New: func() interface{} {
				enc, err := zstd.NewWriter(nil)
				if err != nil {
					log.Printf("compressors: error creating zstd encoder: %v", err)
					return nil
				}
				return enc
			},
		},
		decoderPool: sync.Pool{
			New: func() interface{} {
				dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(100*1024*1024))
				if err != nil {
					log.Printf("compressors: error creating zstd decoder: %v", err)
					return nil
				}
				return dec
			},
		},
	}
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := c.encoderPool.Get().(*zstd.Encoder)
	defer c.encoderPool.Put(enc)

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc.Reset(buf)

	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd compress write error: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd compress close error: %w", err)
	}

	compressedData := make([]byte, buf.Len())
	copy(compressedData, buf.Bytes())
	return compressedData, nil
}

func (c *ZstdCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	dec := c.decoderPool.Get().(*zstd.Decoder)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		c.decoderPool.Put(dec)
		return nil, fmt.Errorf("zstd decoder reset error: %w", err)
	}

	return &zstdReadCloser{Decoder: dec, pool: &c.decoderPool}, nil
}

func (c *ZstdCompressor) Type() CompressionType {
	return CompressionZSTD
}

// CompressTo compresses src data into the dst buffer using zstd.
func (c *ZstdCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	enc := c.encoderPool.Get().(*zstd.Encoder)
	defer c.encoderPool.Put(enc)

	dst.Reset()
	enc.Reset(dst)

	if _, err := enc.Write(src); err != nil {
		_ = enc.Close()
		return fmt.Errorf("zstd compress (to) write error: %w", err)
	}
	return enc.Close()
}
