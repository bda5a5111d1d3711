// Package zstream implements the zlib-wrapped DEFLATE stream format used
// for PNG pixel payloads (RFC 1950 and RFC 1951).
//
// Decompression is complete: stored, fixed-Huffman, and dynamic-Huffman
// blocks are all supported, with canonical Huffman tables built from code
// lengths and LZ77 back-reference copies. Compression deliberately emits
// only stored blocks; see CompressStored.
//
// The decompressor is written to survive arbitrary input: every malformed
// or truncated stream degrades to an error return, never a panic or an
// out-of-bounds access.
package zstream

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/go-pnglite/internal/bitio"
)

var (
	// ErrHeader reports a malformed or unsupported zlib stream header.
	ErrHeader = errors.New("zstream: invalid stream header")

	// ErrDictionary reports a stream that requires a preset dictionary.
	// Dictionaries are not supported; failing fast here is deliberate,
	// since skipping the dictionary id and decoding anyway would produce
	// silently wrong output.
	ErrDictionary = errors.New("zstream: preset dictionary not supported")

	// ErrChecksum reports an Adler-32 trailer that does not match the
	// decompressed bytes.
	ErrChecksum = errors.New("zstream: checksum mismatch")

	// ErrCorrupt reports structurally invalid compressed data.
	ErrCorrupt = errors.New("zstream: corrupt compressed data")
)

const (
	maxLitLenCodes = 288 // literal/length alphabet size
	maxDistCodes   = 32  // distance alphabet size
	maxCodeLenSyms = 19  // code-length alphabet size
	endOfBlock     = 256
)

// Length and distance code tables from RFC 1951 section 3.2.5.
var (
	lenBase = [29]int{
		3, 4, 5, 6, 7, 8, 9, 10, 11, 13,
		15, 17, 19, 23, 27, 31, 35, 43, 51, 59,
		67, 83, 99, 115, 131, 163, 195, 227, 258,
	}
	lenExtra = [29]uint{
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1,
		1, 1, 2, 2, 2, 2, 3, 3, 3, 3,
		4, 4, 4, 4, 5, 5, 5, 5, 0,
	}
	distBase = [30]int{
		1, 2, 3, 4, 5, 7, 9, 13, 17, 25,
		33, 49, 65, 97, 129, 193, 257, 385, 513, 769,
		1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
	}
	distExtra = [30]uint{
		0, 0, 0, 0, 1, 1, 2, 2, 3, 3,
		4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
		9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	}

	// Order in which code-length-alphabet lengths appear in a dynamic
	// block header (RFC 1951 section 3.2.7).
	codeLenOrder = [maxCodeLenSyms]int{
		16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
	}
)

// Decompress inflates a complete zlib stream into a buffer of exactly
// expectedLen bytes. The expected length is always known to PNG callers
// (derived from image geometry), so the output buffer is allocated once
// and never grown; producing more or fewer bytes is an error, as is any
// back-reference that reaches before the start of the output.
func Decompress(data []byte, expectedLen int) ([]byte, error) {
	if expectedLen < 0 {
		return nil, ErrCorrupt
	}
	if len(data) < 6 {
		return nil, ErrHeader
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0f != 8 {
		return nil, ErrHeader
	}
	if (uint32(cmf)<<8+uint32(flg))%31 != 0 {
		return nil, ErrHeader
	}
	if flg&0x20 != 0 {
		return nil, ErrDictionary
	}

	body := data[2 : len(data)-4]
	d := &inflater{
		br:  bitio.NewReader(body),
		out: make([]byte, expectedLen),
	}
	if err := d.run(); err != nil {
		return nil, err
	}
	if d.pos != expectedLen {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, d.pos, expectedLen)
	}

	trailer := data[len(data)-4:]
	want := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])
	if Adler32(d.out) != want {
		return nil, ErrChecksum
	}
	return d.out, nil
}

// inflater is the per-stream decode state machine. It is terminal once a
// block marked final has been fully consumed.
type inflater struct {
	br  *bitio.Reader
	out []byte
	pos int
}

func (d *inflater) run() error {
	for {
		bfinal, err := d.br.ReadBits(1)
		if err != nil {
			return err
		}
		btype, err := d.br.ReadBits(2)
		if err != nil {
			return err
		}

		switch btype {
		case 0:
			err = d.storedBlock()
		case 1:
			litlen, dist := fixedTables()
			err = d.huffmanBlock(litlen, dist)
		case 2:
			err = d.dynamicBlock()
		default:
			err = fmt.Errorf("%w: reserved block type", ErrCorrupt)
		}
		if err != nil {
			return err
		}
		if bfinal == 1 {
			return nil
		}
	}
}

// storedBlock copies raw bytes. The length fields are byte-aligned and
// protected by a one's-complement check.
func (d *inflater) storedBlock() error {
	d.br.Align()
	length, err := d.br.ReadBits(16)
	if err != nil {
		return err
	}
	nlength, err := d.br.ReadBits(16)
	if err != nil {
		return err
	}
	if length^0xffff != nlength {
		return fmt.Errorf("%w: stored block length check failed", ErrCorrupt)
	}
	n := int(length)
	if d.pos+n > len(d.out) {
		return fmt.Errorf("%w: output overrun in stored block", ErrCorrupt)
	}
	if err := d.br.ReadBytes(d.out[d.pos : d.pos+n]); err != nil {
		return err
	}
	d.pos += n
	return nil
}

// dynamicBlock reads the code-length counts and the run-length-encoded
// code-length arrays, builds the two Huffman tables they describe, and
// decodes the block with them.
func (d *inflater) dynamicBlock() error {
	hlit, err := d.br.ReadBits(5)
	if err != nil {
		return err
	}
	hdist, err := d.br.ReadBits(5)
	if err != nil {
		return err
	}
	hclen, err := d.br.ReadBits(4)
	if err != nil {
		return err
	}
	nlen := int(hlit) + 257
	ndist := int(hdist) + 1
	ncode := int(hclen) + 4
	if nlen > maxLitLenCodes || ndist > maxDistCodes {
		return fmt.Errorf("%w: too many dynamic codes", ErrCorrupt)
	}

	var codeLengths [maxCodeLenSyms]uint8
	for i := 0; i < ncode; i++ {
		v, err := d.br.ReadBits(3)
		if err != nil {
			return err
		}
		codeLengths[codeLenOrder[i]] = uint8(v)
	}
	var codeHuff huffman
	if err := codeHuff.build(codeLengths[:]); err != nil {
		return err
	}

	// Literal/length and distance lengths share one run-length-encoded
	// sequence: symbols 0-15 are literal lengths, 16 repeats the previous
	// length 3-6 times, 17 and 18 emit runs of zeros.
	lengths := make([]uint8, nlen+ndist)
	prev := uint8(0)
	for i := 0; i < len(lengths); {
		sym, err := codeHuff.decode(d.br)
		if err != nil {
			return err
		}
		switch {
		case sym <= 15:
			lengths[i] = uint8(sym)
			prev = uint8(sym)
			i++
		case sym == 16:
			if i == 0 {
				return fmt.Errorf("%w: repeat with no previous length", ErrCorrupt)
			}
			rep, err := d.br.ReadBits(2)
			if err != nil {
				return err
			}
			n := int(rep) + 3
			if i+n > len(lengths) {
				return fmt.Errorf("%w: length repeat overruns alphabet", ErrCorrupt)
			}
			for ; n > 0; n-- {
				lengths[i] = prev
				i++
			}
		case sym == 17, sym == 18:
			bits, base := uint(3), 3
			if sym == 18 {
				bits, base = 7, 11
			}
			rep, err := d.br.ReadBits(bits)
			if err != nil {
				return err
			}
			n := int(rep) + base
			if i+n > len(lengths) {
				return fmt.Errorf("%w: zero run overruns alphabet", ErrCorrupt)
			}
			i += n
			prev = 0
		default:
			return fmt.Errorf("%w: invalid code-length symbol %d", ErrCorrupt, sym)
		}
	}

	var litlen, dist huffman
	if err := litlen.build(lengths[:nlen]); err != nil {
		return err
	}
	if err := dist.build(lengths[nlen:]); err != nil {
		return err
	}
	return d.huffmanBlock(&litlen, &dist)
}

// huffmanBlock runs the literal/length symbol loop shared by fixed and
// dynamic blocks.
func (d *inflater) huffmanBlock(litlen, dist *huffman) error {
	for {
		sym, err := litlen.decode(d.br)
		if err != nil {
			return err
		}
		switch {
		case sym < endOfBlock:
			if d.pos >= len(d.out) {
				return fmt.Errorf("%w: output overrun", ErrCorrupt)
			}
			d.out[d.pos] = byte(sym)
			d.pos++
		case sym == endOfBlock:
			return nil
		case sym < endOfBlock+1+len(lenBase):
			if err := d.copyMatch(sym-endOfBlock-1, dist); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: invalid literal/length symbol %d", ErrCorrupt, sym)
		}
	}
}

// copyMatch decodes the extra length bits, the distance symbol, and the
// extra distance bits, then replays length bytes from distance bytes back
// in the output. The copy is byte-by-byte so overlapping self-referential
// matches (distance < length) replicate correctly.
func (d *inflater) copyMatch(lenSym int, dist *huffman) error {
	length := lenBase[lenSym]
	if lenExtra[lenSym] > 0 {
		extra, err := d.br.ReadBits(lenExtra[lenSym])
		if err != nil {
			return err
		}
		length += int(extra)
	}

	distSym, err := dist.decode(d.br)
	if err != nil {
		return err
	}
	if distSym >= len(distBase) {
		return fmt.Errorf("%w: invalid distance symbol %d", ErrCorrupt, distSym)
	}
	distance := distBase[distSym]
	if distExtra[distSym] > 0 {
		extra, err := d.br.ReadBits(distExtra[distSym])
		if err != nil {
			return err
		}
		distance += int(extra)
	}

	if distance > d.pos {
		return fmt.Errorf("%w: back-reference before start of output", ErrCorrupt)
	}
	if d.pos+length > len(d.out) {
		return fmt.Errorf("%w: output overrun in match copy", ErrCorrupt)
	}
	for i := 0; i < length; i++ {
		d.out[d.pos] = d.out[d.pos-distance]
		d.pos++
	}
	return nil
}
