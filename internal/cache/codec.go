package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
)

// Entry file format tags. The first byte of every cache file names the
// encoding of the body, so entries written before a change of the
// compression setting stay readable.
const (
	formatRaw  byte = 0x01
	formatGzip byte = 0x02
)

// HeaderSize is the fixed-width prefix of every encoded entry: the format
// tag, the Unix store time and the uncompressed payload length, the last
// two big-endian. The store time is readable without touching the body.
const HeaderSize = 1 + 8 + 8

// Codec serializes entries to bytes and back.
type Codec struct {
	// Compress selects gzip for newly encoded entries. Decode ignores it and
	// follows the tag stored in the data.
	Compress bool
}

// NewCodec returns a codec with the given compression setting.
func NewCodec(compress bool) *Codec {
	return &Codec{Compress: compress}
}

// Encode serializes e. A nil payload is stored as an empty one.
func (c *Codec) Encode(e Entry) ([]byte, error) {
	tag := formatRaw
	if c.Compress {
		tag = formatGzip
	}

	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	header[0] = tag
	binary.BigEndian.PutUint64(header[1:9], uint64(e.StoredAt))
	binary.BigEndian.PutUint64(header[9:], uint64(len(e.Payload)))
	buf.Grow(HeaderSize + len(e.Payload))
	buf.Write(header)

	if !c.Compress {
		buf.Write(e.Payload)
		return buf.Bytes(), nil
	}

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(e.Payload); err != nil {
		return nil, fmt.Errorf("failed to compress cache entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress cache entry: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeStoredAt reads the store time from the header at the start of
// data. Only the first HeaderSize bytes are inspected.
func (c *Codec) DecodeStoredAt(data []byte) (int64, error) {
	if len(data) < HeaderSize {
		return 0, fmt.Errorf("%w: header is %d bytes, want %d", ErrCorruptEntry, len(data), HeaderSize)
	}
	switch data[0] {
	case formatRaw, formatGzip:
	default:
		return 0, fmt.Errorf("%w: unknown format tag 0x%02x", ErrCorruptEntry, data[0])
	}
	return int64(binary.BigEndian.Uint64(data[1:9])), nil
}

// Decode reverses Encode. Every failure wraps ErrCorruptEntry.
func (c *Codec) Decode(data []byte) (Entry, error) {
	storedAt, err := c.DecodeStoredAt(data)
	if err != nil {
		return Entry{}, err
	}
	length := binary.BigEndian.Uint64(data[9:HeaderSize])
	if length > math.MaxInt64-1 {
		return Entry{}, fmt.Errorf("%w: payload length %d out of range", ErrCorruptEntry, length)
	}
	body := data[HeaderSize:]

	var payload []byte
	switch data[0] {
	case formatRaw:
		payload = body
	case formatGzip:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
		}
		defer zr.Close()
		// One byte past the recorded length exposes trailing data.
		payload, err = io.ReadAll(io.LimitReader(zr, int64(length)+1))
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
		}
	}

	if uint64(len(payload)) != length {
		return Entry{}, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorruptEntry, len(payload), length)
	}

	return Entry{StoredAt: storedAt, Payload: payload}, nil
}
