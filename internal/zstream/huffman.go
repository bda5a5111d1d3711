package zstream

import (
	"errors"
	"sync"

	"github.com/mrjoshuak/go-pnglite/internal/bitio"
)

// maxBits is the longest Huffman code length permitted by DEFLATE.
const maxBits = 15

var (
	// ErrBadTable reports a code-length array that cannot form a valid
	// canonical Huffman code (an oversubscribed prefix, or a length
	// beyond maxBits). Incomplete tables are permitted: DEFLATE streams
	// legitimately carry them, e.g. a distance alphabet with one code.
	ErrBadTable = errors.New("zstream: invalid huffman table")

	// ErrBadCode reports a bit sequence that matches no code in the
	// table within maxBits bits.
	ErrBadCode = errors.New("zstream: invalid huffman code")
)

// huffman is a canonical Huffman code table. count[l] holds the number of
// codes of bit length l; symbol holds the symbol values ordered first by
// code length, then by code value within a length.
type huffman struct {
	count  [maxBits + 1]uint16
	symbol [maxLitLenCodes]uint16
}

// build constructs the canonical table for the given per-symbol code
// lengths (a length of zero means the symbol is unused). It fails if any
// length exceeds maxBits or if the lengths violate Kraft's inequality in
// either direction, both of which signal a corrupt stream.
func (h *huffman) build(lengths []uint8) error {
	for i := range h.count {
		h.count[i] = 0
	}
	for _, l := range lengths {
		if l > maxBits {
			return ErrBadTable
		}
		h.count[l]++
	}
	if int(h.count[0]) == len(lengths) {
		// No codes at all; decode will fail on first use.
		return nil
	}

	// Running count of still-assignable codes; going negative means the
	// lengths oversubscribe some prefix.
	left := 1
	for l := 1; l <= maxBits; l++ {
		left <<= 1
		left -= int(h.count[l])
		if left < 0 {
			return ErrBadTable
		}
	}

	// Offset into symbol for the first code of each length.
	var offs [maxBits + 1]uint16
	for l := 1; l < maxBits; l++ {
		offs[l+1] = offs[l] + h.count[l]
	}
	for i, l := range lengths {
		if l != 0 {
			h.symbol[offs[l]] = uint16(i)
			offs[l]++
		}
	}
	return nil
}

// decode reads bits one at a time, extending a candidate code and
// checking it against the range of codes at each length, per the
// canonical-code invariant that codes of one length are consecutive
// integers. Worst case reads maxBits bits.
func (h *huffman) decode(br *bitio.Reader) (int, error) {
	var code, first, index uint32
	for l := 1; l <= maxBits; l++ {
		bit, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		code |= bit
		count := uint32(h.count[l])
		if code < first+count {
			return int(h.symbol[index+code-first]), nil
		}
		index += count
		first = (first + count) << 1
		code <<= 1
	}
	return 0, ErrBadCode
}

// Fixed-Huffman code lengths never change (RFC 1951 section 3.2.6), so
// the two tables are built once per process.
var (
	fixedOnce   sync.Once
	fixedLitLen huffman
	fixedDist   huffman
)

func fixedTables() (*huffman, *huffman) {
	fixedOnce.Do(func() {
		var lengths [maxLitLenCodes]uint8
		for i := 0; i <= 143; i++ {
			lengths[i] = 8
		}
		for i := 144; i <= 255; i++ {
			lengths[i] = 9
		}
		for i := 256; i <= 279; i++ {
			lengths[i] = 7
		}
		for i := 280; i <= 287; i++ {
			lengths[i] = 8
		}
		// The fixed lengths are complete by construction; build cannot
		// fail on them.
		fixedLitLen.build(lengths[:])

		var dist [maxDistCodes]uint8
		for i := range dist {
			dist[i] = 5
		}
		fixedDist.build(dist[:])
	})
	return &fixedLitLen, &fixedDist
}
