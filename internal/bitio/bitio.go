// Package bitio provides bit-level reading of DEFLATE streams.
//
// DEFLATE packs bit fields least-significant-bit first within each byte,
// so the reader here is LSB-first, unlike the MSB-first bit order used by
// most other image codestreams. The reader operates on a borrowed byte
// slice and never copies or retains it beyond the decode call.
package bitio

import "errors"

// ErrUnderflow is returned when the source is exhausted before the
// requested number of bits can be supplied.
var ErrUnderflow = errors.New("bitio: unexpected end of stream")

// Reader reads bit fields from a byte slice, LSB-first.
type Reader struct {
	data []byte
	pos  int    // next unread byte in data
	buf  uint32 // bit accumulator, LSB is the next bit
	cnt  uint   // number of valid bits in buf
}

// NewReader creates a reader over data. The slice is borrowed: the caller
// must not mutate it while the reader is in use.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// fill buffers whole bytes until at least n bits are available or the
// source runs out.
func (r *Reader) fill(n uint) bool {
	for r.cnt < n && r.pos < len(r.data) {
		r.buf |= uint32(r.data[r.pos]) << r.cnt
		r.pos++
		r.cnt += 8
	}
	return r.cnt >= n
}

// ReadBits reads the next n bits (0-24) as an unsigned value. On
// underflow it returns ErrUnderflow and consumes nothing useful; the
// reader must not be used further.
func (r *Reader) ReadBits(n uint) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if !r.fill(n) {
		return 0, ErrUnderflow
	}
	v := r.buf & (1<<n - 1)
	r.buf >>= n
	r.cnt -= n
	return v, nil
}

// Align discards bits up to the next byte boundary. The discarded bits
// are always already buffered, so alignment cannot fail.
func (r *Reader) Align() {
	skip := r.cnt & 7
	r.buf >>= skip
	r.cnt -= skip
}

// ReadBytes fills dst with the next len(dst) bytes. When the reader is
// byte-aligned with an empty accumulator this is a straight copy from the
// source; otherwise bytes are extracted through the bit accumulator.
func (r *Reader) ReadBytes(dst []byte) error {
	if r.cnt == 0 {
		if r.pos+len(dst) > len(r.data) {
			return ErrUnderflow
		}
		copy(dst, r.data[r.pos:])
		r.pos += len(dst)
		return nil
	}
	for i := range dst {
		v, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		dst[i] = byte(v)
	}
	return nil
}
