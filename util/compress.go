package util

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	snappy "github.com/segmentio/kafka-go/compress/snappy/go-xerial-snappy"
)

const (
	CodecNone   = "none"
	CodecGzip   = "gzip"
	CodecZstd   = "zstd"
	CodecLZ4    = "lz4"
	CodecSnappy = "snappy"
)

var codecExtensions = map[string]string{
	CodecGzip:   ".gz",
	CodecZstd:   ".zst",
	CodecLZ4:    ".lz4",
	CodecSnappy: ".snappy",
}

// ValidCodec reports whether name is a supported compression type.
func ValidCodec(name string) bool {
	if name == CodecNone || name == "" {
		return true
	}
	_, ok := codecExtensions[name]
	return ok
}

// CodecExtension returns the file suffix (with leading dot) for a codec, or "" for none.
func CodecExtension(codec string) string {
	return codecExtensions[codec]
}

// CodecForPath returns the codec implied by a file name suffix, or "" when the file is plain.
func CodecForPath(path string) string {
	for codec, ext := range codecExtensions {
		if strings.HasSuffix(path, ext) {
			return codec
		}
	}
	return ""
}

// NewCompressWriter wraps w with an encoder for the codec. Close flushes the codec
// framing but does not close w.
func NewCompressWriter(w io.Writer, compressionType string) (io.WriteCloser, error) {
	switch compressionType {
	case CodecGzip:
		return gzip.NewWriter(w), nil

	case CodecZstd:
		return zstd.NewWriter(w)

	case CodecLZ4:
		return lz4.NewWriter(w), nil

	case CodecSnappy:
		// xerial framing is a block format; the whole input is encoded on Close.
		return &snappyWriter{dst: w}, nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// NewDecompressReader wraps r with a decoder for the codec.
func NewDecompressReader(r io.Reader, compressionType string) (io.ReadCloser, error) {
	switch compressionType {
	case CodecGzip:
		return gzip.NewReader(r)

	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil

	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil

	case CodecSnappy:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		out, err := snappy.Decode(data)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(out)), nil

	case CodecNone, "":
		return io.NopCloser(r), nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

type snappyWriter struct {
	dst    io.Writer
	buf    bytes.Buffer
	closed bool
}

func (s *snappyWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

func (s *snappyWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.dst.Write(snappy.Encode(s.buf.Bytes()))
	return err
}
