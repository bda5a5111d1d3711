// Package filter implements the five PNG scanline filters.
//
// Each scanline in the decompressed pixel stream is preceded by one
// filter-type byte. Reconstruct reverses the filter during decode;
// Apply runs the forward direction. Both operate on whole rows of
// width*channels bytes, with bpp (bytes per pixel) equal to the channel
// count at 8 bits per channel.
package filter

import "fmt"

// Filter type codes.
const (
	None    = 0
	Sub     = 1
	Up      = 2
	Average = 3
	Paeth   = 4
)

// Reconstruct reverses filter ftype over row in place. prev is the
// already-reconstructed previous row, or nil for the first row. Filter
// types above Paeth signal a corrupt stream.
func Reconstruct(ftype byte, row, prev []byte, bpp int) error {
	switch ftype {
	case None:
	case Sub:
		for i := bpp; i < len(row); i++ {
			row[i] += row[i-bpp]
		}
	case Up:
		if prev != nil {
			for i := range row {
				row[i] += prev[i]
			}
		}
	case Average:
		for i := range row {
			var a, b int
			if i >= bpp {
				a = int(row[i-bpp])
			}
			if prev != nil {
				b = int(prev[i])
			}
			row[i] += byte((a + b) / 2)
		}
	case Paeth:
		for i := range row {
			var a, b, c byte
			if i >= bpp {
				a = row[i-bpp]
			}
			if prev != nil {
				b = prev[i]
				if i >= bpp {
					c = prev[i-bpp]
				}
			}
			row[i] += paethPredictor(a, b, c)
		}
	default:
		return fmt.Errorf("filter: unknown filter type %d", ftype)
	}
	return nil
}

// Apply runs filter ftype forward: dst receives the filtered form of
// row, given the raw (unfiltered) previous row. The encoder only ever
// emits None, but the forward direction of all five filters is part of
// the format.
func Apply(ftype byte, dst, row, prev []byte, bpp int) error {
	switch ftype {
	case None:
		copy(dst, row)
	case Sub:
		for i := range row {
			var a byte
			if i >= bpp {
				a = row[i-bpp]
			}
			dst[i] = row[i] - a
		}
	case Up:
		for i := range row {
			var b byte
			if prev != nil {
				b = prev[i]
			}
			dst[i] = row[i] - b
		}
	case Average:
		for i := range row {
			var a, b int
			if i >= bpp {
				a = int(row[i-bpp])
			}
			if prev != nil {
				b = int(prev[i])
			}
			dst[i] = row[i] - byte((a+b)/2)
		}
	case Paeth:
		for i := range row {
			var a, b, c byte
			if i >= bpp {
				a = row[i-bpp]
			}
			if prev != nil {
				b = prev[i]
				if i >= bpp {
					c = prev[i-bpp]
				}
			}
			dst[i] = row[i] - paethPredictor(a, b, c)
		}
	default:
		return fmt.Errorf("filter: unknown filter type %d", ftype)
	}
	return nil
}

// paethPredictor picks whichever of a (left), b (above), c (above-left)
// is closest to a+b-c, breaking ties in the order a, b, c.
func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
