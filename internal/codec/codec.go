// Package codec implements OperationCodec: the encode/decode boundary
// between raw LogStream bytes and admin.Operation values.
//
// Wire format (little-endian):
//
//	magic      uint32  "ADMO"
//	version    uint8
//	compression uint8  compressors.CompressionType
//	kind       uint8   admin.Kind
//	clusterLen uint16
//	cluster    []byte
//	storeLen   uint16
//	store      []byte
//	execId     int64
//	bodyLen    uint32
//	body       []byte  compressed JSON payload
//	crc        uint32  CRC32 of everything above, written last
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/ziyaddin/venice/compressors"
	"github.com/ziyaddin/venice/internal/admin"
)

const (
	magic          uint32 = 0x41444d4f // "ADMO"
	currentVersion uint8  = 1
)

// Codec encodes admin.Operation values into byte records and decodes
// them back, optionally compressing the payload body.
type Codec struct {
	compression compressors.CompressionType
}

// New returns a Codec that compresses payload bodies with the given
// algorithm. CompressionNone disables compression.
func New(compression compressors.CompressionType) *Codec {
	return &Codec{compression: compression}
}

// Encode serializes op into a self-describing byte record.
func (c *Codec) Encode(op admin.Operation) ([]byte, error) {
	body, err := json.Marshal(op.Payload)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal payload: %w", err)
	}

	comp, err := compressors.ByType(c.compression)
	if err != nil {
		return nil, err
	}
	compressedBody, err := comp.Compress(body)
	if err != nil {
		return nil, fmt.Errorf("codec: compress payload: %w", err)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, magic); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, currentVersion); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint8(c.compression)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint8(op.Kind)); err != nil {
		return nil, err
	}
	if err := writeString(&buf, op.ClusterName); err != nil {
		return nil, err
	}
	if err := writeString(&buf, op.StoreName); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, op.ExecutionID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(compressedBody))); err != nil {
		return nil, err
	}
	if _, err := buf.Write(compressedBody); err != nil {
		return nil, err
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, sum); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a record previously produced by Encode. A decode failure
// (bad magic, truncated record, bad checksum, or an unmarshalable body)
// is wrapped in admin.MalformedError; the Tailer logs it and advances
// past the offset rather than retrying forever.
func (c *Codec) Decode(record []byte) (admin.Operation, error) {
	op, err := c.decode(record)
	if err != nil {
		return admin.Operation{}, &admin.MalformedError{Err: err}
	}
	return op, nil
}

func (c *Codec) decode(record []byte) (admin.Operation, error) {
	if len(record) < 4 {
		return admin.Operation{}, fmt.Errorf("record too short: %d bytes", len(record))
	}

	body := record[:len(record)-4]
	wantSum := binary.LittleEndian.Uint32(record[len(record)-4:])
	gotSum := crc32.ChecksumIEEE(body)
	if gotSum != wantSum {
		return admin.Operation{}, fmt.Errorf("checksum mismatch: got %x want %x", gotSum, wantSum)
	}

	r := bytes.NewReader(body)

	var gotMagic uint32
	if err := binary.Read(r, binary.LittleEndian, &gotMagic); err != nil {
		return admin.Operation{}, err
	}
	if gotMagic != magic {
		return admin.Operation{}, fmt.Errorf("invalid record magic number: got %x", gotMagic)
	}

	var version uint8
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return admin.Operation{}, err
	}
	if version > currentVersion {
		return admin.Operation{}, fmt.Errorf("unsupported record version: %d", version)
	}

	var compressionByte, kindByte uint8
	if err := binary.Read(r, binary.LittleEndian, &compressionByte); err != nil {
		return admin.Operation{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &kindByte); err != nil {
		return admin.Operation{}, err
	}

	cluster, err := readString(r)
	if err != nil {
		return admin.Operation{}, err
	}
	store, err := readString(r)
	if err != nil {
		return admin.Operation{}, err
	}

	var execID int64
	if err := binary.Read(r, binary.LittleEndian, &execID); err != nil {
		return admin.Operation{}, err
	}

	var bodyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &bodyLen); err != nil {
		return admin.Operation{}, err
	}
	compressedBody := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, compressedBody); err != nil {
		return admin.Operation{}, err
	}

	comp, err := compressors.ByType(compressors.CompressionType(compressionByte))
	if err != nil {
		return admin.Operation{}, err
	}
	decompressed, err := comp.Decompress(compressedBody)
	if err != nil {
		return admin.Operation{}, fmt.Errorf("decompress payload: %w", err)
	}
	defer decompressed.Close()

	payloadBytes, err := io.ReadAll(decompressed)
	if err != nil {
		return admin.Operation{}, err
	}

	var payload admin.Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return admin.Operation{}, fmt.Errorf("unmarshal payload: %w", err)
	}

	kind := admin.Kind(kindByte)
	return admin.Operation{
		Kind:        kind,
		ClusterName: cluster,
		StoreName:   store,
		ExecutionID: execID,
		Payload:     payload,
	}, nil
}

func writeString(w io.Writer, s string) error {
	data := []byte(s)
	if err := binary.Write(w, binary.LittleEndian, uint16(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}
