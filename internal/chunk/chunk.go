// Package chunk implements PNG container framing.
//
// A PNG file is an 8-byte signature followed by a sequence of chunks,
// where each chunk has:
// - 4-byte big-endian payload length
// - 4-byte type code
// - Payload
// - 4-byte CRC-32 over type code and payload
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Chunk type codes.
const (
	TypeIHDR Type = 0x49484452 // "IHDR" - image header
	TypeIDAT Type = 0x49444154 // "IDAT" - compressed pixel payload
	TypeIEND Type = 0x49454E44 // "IEND" - stream terminator
	TypeTEXt Type = 0x74455874 // "tEXt" - keyword/value text metadata
)

// Signature is the fixed 8-byte sequence every PNG stream starts with.
var Signature = [8]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

var (
	// ErrSignature reports a stream that does not begin with Signature.
	ErrSignature = errors.New("chunk: bad signature")

	// ErrTruncated reports a stream that ends inside a chunk's framing
	// or payload.
	ErrTruncated = errors.New("chunk: truncated chunk")
)

// Type represents a 4-byte chunk type code.
type Type uint32

// String returns the 4-character type code.
func (t Type) String() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(t))
	return string(b)
}

// Chunk is one parsed chunk. Data aliases the reader's source buffer and
// is only valid while that buffer is.
type Chunk struct {
	Type Type
	Data []byte
	CRC  uint32
}

// Verify reports whether the stored CRC matches the chunk contents.
// Framing validity never depends on it; callers that want strict
// integrity checking opt in.
func (c *Chunk) Verify() bool {
	var tag [4]byte
	binary.BigEndian.PutUint32(tag[:], uint32(c.Type))
	return Update(Update(crcInit, tag[:]), c.Data)^crcInit == c.CRC
}

// Reader iterates over the chunks of an in-memory PNG stream.
type Reader struct {
	data []byte
	pos  int
}

// NewReader validates the signature and returns a reader positioned at
// the first chunk. The slice is borrowed, not copied.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < len(Signature) || string(data[:len(Signature)]) != string(Signature[:]) {
		return nil, ErrSignature
	}
	return &Reader{data: data, pos: len(Signature)}, nil
}

// Next returns the next chunk, or io.EOF after the last one.
func (r *Reader) Next() (*Chunk, error) {
	if r.pos == len(r.data) {
		return nil, io.EOF
	}
	if r.pos+8 > len(r.data) {
		return nil, ErrTruncated
	}
	length := binary.BigEndian.Uint32(r.data[r.pos:])
	typ := Type(binary.BigEndian.Uint32(r.data[r.pos+4:]))
	r.pos += 8

	n := int(length)
	if n < 0 || r.pos+n+4 > len(r.data) {
		return nil, fmt.Errorf("%w: %s payload of %d bytes", ErrTruncated, typ, length)
	}
	c := &Chunk{
		Type: typ,
		Data: r.data[r.pos : r.pos+n],
		CRC:  binary.BigEndian.Uint32(r.data[r.pos+n:]),
	}
	r.pos += n + 4
	return c, nil
}

// Writer emits a PNG stream chunk by chunk.
type Writer struct {
	w io.Writer
}

// NewWriter creates a writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteSignature writes the fixed stream signature.
func (w *Writer) WriteSignature() error {
	_, err := w.w.Write(Signature[:])
	return err
}

// WriteChunk writes one chunk: length, type, payload, and the CRC-32
// over type and payload.
func (w *Writer) WriteChunk(t Type, data []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	binary.BigEndian.PutUint32(header[4:], uint32(t))
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.w.Write(data); err != nil {
			return err
		}
	}

	var trailer [4]byte
	crc := Update(Update(crcInit, header[4:]), data) ^ crcInit
	binary.BigEndian.PutUint32(trailer[:], crc)
	_, err := w.w.Write(trailer[:])
	return err
}
