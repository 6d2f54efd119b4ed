package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Method byte constants identifying the block compression.
const (
	MethodNone   byte = 0x00
	MethodSnappy byte = 0x01
	MethodLZ4    byte = 0x02
)

// Framed block layout:
//   [method_byte (1)] [compressed_size (4 LE)] [uncompressed_size (4 LE)] [payload...]
//
// compressed_size counts the payload only, not the header.
const blockHeaderSize = 9

// maxUncompressedSize caps the allocation a corrupt header can request.
const maxUncompressedSize = 256 << 20

// Codec compresses and decompresses snapshot payloads.
type Codec interface {
	// Method returns the single-byte codec identifier.
	Method() byte
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, uncompressedSize int) ([]byte, error)
}

// CodecByName resolves a configured codec name. The empty string means
// no compression.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "none":
		return &NoneCodec{}, nil
	case "snappy":
		return &SnappyCodec{}, nil
	case "lz4":
		return &LZ4Codec{}, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown codec %q", name)
	}
}

func codecFor(method byte) (Codec, error) {
	switch method {
	case MethodNone:
		return &NoneCodec{}, nil
	case MethodSnappy:
		return &SnappyCodec{}, nil
	case MethodLZ4:
		return &LZ4Codec{}, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown compression method: 0x%02x", method)
	}
}

// NoneCodec is a no-op codec (no compression).
type NoneCodec struct{}

func (c *NoneCodec) Method() byte { return MethodNone }

func (c *NoneCodec) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst, nil
}

func (c *NoneCodec) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	if len(src) != uncompressedSize {
		return nil, fmt.Errorf("snapshot: stored size %d does not match declared size %d", len(src), uncompressedSize)
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst, nil
}

// SnappyCodec implements snappy block compression.
type SnappyCodec struct{}

func (c *SnappyCodec) Method() byte { return MethodSnappy }

func (c *SnappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (c *SnappyCodec) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	dst, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	if len(dst) != uncompressedSize {
		return nil, fmt.Errorf("snappy decompress: expected %d bytes, got %d", uncompressedSize, len(dst))
	}
	return dst, nil
}

// LZ4Codec implements LZ4 block compression.
type LZ4Codec struct{}

func (c *LZ4Codec) Method() byte { return MethodLZ4 }

func (c *LZ4Codec) Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible input; EncodeBlock stores such payloads raw
		dst = make([]byte, len(src))
		copy(dst, src)
		return dst, nil
	}
	return dst[:n], nil
}

func (c *LZ4Codec) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: expected %d bytes, got %d", uncompressedSize, n)
	}
	return dst, nil
}

// EncodeBlock compresses data with the codec and frames it. A payload
// that compression does not shrink is framed verbatim as MethodNone.
func EncodeBlock(codec Codec, data []byte) ([]byte, error) {
	compressed, err := codec.Compress(data)
	if err != nil {
		return nil, err
	}

	method := codec.Method()
	if len(compressed) >= len(data) && method != MethodNone {
		method = MethodNone
		compressed = data
	}

	block := make([]byte, blockHeaderSize+len(compressed))
	block[0] = method
	binary.LittleEndian.PutUint32(block[1:5], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(block[5:9], uint32(len(data)))
	copy(block[blockHeaderSize:], compressed)

	return block, nil
}

// DecodeBlock validates a framed block and returns the decompressed
// payload. The method byte selects the codec, so any implementation can
// decode blocks written by any other.
func DecodeBlock(data []byte) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, fmt.Errorf("snapshot: block too small: %d bytes", len(data))
	}

	method := data[0]
	compressedSize := binary.LittleEndian.Uint32(data[1:5])
	uncompressedSize := binary.LittleEndian.Uint32(data[5:9])

	if int(compressedSize) != len(data)-blockHeaderSize {
		return nil, fmt.Errorf("snapshot: block size mismatch: header says %d payload bytes, have %d",
			compressedSize, len(data)-blockHeaderSize)
	}
	if uncompressedSize > maxUncompressedSize {
		return nil, fmt.Errorf("snapshot: declared uncompressed size %d exceeds limit", uncompressedSize)
	}

	codec, err := codecFor(method)
	if err != nil {
		return nil, err
	}

	return codec.Decompress(data[blockHeaderSize:], int(uncompressedSize))
}
