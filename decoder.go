package pnglite

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mrjoshuak/go-pnglite/internal/chunk"
	"github.com/mrjoshuak/go-pnglite/internal/filter"
	"github.com/mrjoshuak/go-pnglite/internal/zstream"
)

// ihdrLength is the fixed IHDR payload size.
const ihdrLength = 13

// Color-type codes from the PNG image header.
const (
	colorGray      = 0
	colorRGB       = 2
	colorGrayAlpha = 4
	colorRGBA      = 6
)

// Decoder hardening limits. A 13-byte header can claim arbitrarily large
// geometry; allocation has to be bounded before it happens, because a
// failed allocation is not a recoverable error in Go.
const (
	maxDimension    = 1 << 24
	maxDecodedBytes = 1 << 30
)

// ErrUnsupported reports a well-formed PNG using a feature outside the
// supported subset (non-8 bit depth, indexed color, interlacing, or a
// nonzero compression or filter method).
var ErrUnsupported = errors.New("pnglite: unsupported image format")

// Metadata holds the information available without decompressing pixel
// data: geometry from the header chunk plus any tEXt entries.
type Metadata struct {
	Width    int
	Height   int
	Channels int
	BitDepth int
	Text     map[string]string
}

// decoder handles PNG decoding from an in-memory stream.
type decoder struct {
	data []byte

	width    int
	height   int
	channels int
	bitDepth int
	idat     []byte
	text     map[string]string
}

// newDecoder creates a decoder over data. The slice is borrowed for the
// duration of the decode call.
func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

// decode decodes the image: signature, chunk iteration, payload
// decompression, and scanline reconstruction.
func (d *decoder) decode() (*Image, error) {
	if err := d.parseChunks(); err != nil {
		return nil, fmt.Errorf("parsing container: %w", err)
	}

	// One filter-type byte leads each row of width*channels pixel bytes.
	rowBytes := 1 + d.width*d.channels
	raw, err := zstream.Decompress(d.idat, d.height*rowBytes)
	if err != nil {
		return nil, fmt.Errorf("decompressing pixel data: %w", err)
	}

	img, err := New(d.width, d.height, d.channels)
	if err != nil {
		return nil, err
	}
	if err := d.reconstruct(img, raw, rowBytes); err != nil {
		return nil, fmt.Errorf("reconstructing scanlines: %w", err)
	}
	return img, nil
}

// readMetadata parses the chunk stream without touching the compressed
// payload.
func (d *decoder) readMetadata() (*Metadata, error) {
	if err := d.parseChunks(); err != nil {
		return nil, fmt.Errorf("parsing container: %w", err)
	}
	return &Metadata{
		Width:    d.width,
		Height:   d.height,
		Channels: d.channels,
		BitDepth: d.bitDepth,
		Text:     d.text,
	}, nil
}

// parseChunks validates the signature and walks the chunk sequence,
// interpreting the header, accumulating payload chunks, and collecting
// text metadata. Iteration stops at the terminator chunk; unknown chunk
// types are skipped.
func (d *decoder) parseChunks() error {
	r, err := chunk.NewReader(d.data)
	if err != nil {
		return err
	}

	done := false
	for !done {
		c, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch c.Type {
		case chunk.TypeIHDR:
			if err := d.parseHeader(c.Data); err != nil {
				return err
			}
		case chunk.TypeIDAT:
			// Payload may be split across chunks; concatenate in order.
			d.idat = append(d.idat, c.Data...)
		case chunk.TypeTEXt:
			d.parseText(c.Data)
		case chunk.TypeIEND:
			done = true
		}
	}

	if d.width == 0 {
		return errors.New("pnglite: missing image header")
	}
	if len(d.idat) == 0 {
		return errors.New("pnglite: missing pixel data")
	}
	return nil
}

// parseHeader interprets the 13-byte IHDR payload: geometry, bit depth,
// color model, and the three method bytes.
func (d *decoder) parseHeader(p []byte) error {
	if len(p) < ihdrLength {
		return fmt.Errorf("pnglite: image header is %d bytes, want %d", len(p), ihdrLength)
	}
	width := binary.BigEndian.Uint32(p[0:4])
	height := binary.BigEndian.Uint32(p[4:8])
	if width == 0 || height == 0 || width > maxDimension || height > maxDimension {
		return fmt.Errorf("pnglite: invalid dimensions %dx%d", width, height)
	}

	d.bitDepth = int(p[8])
	if d.bitDepth != 8 {
		return fmt.Errorf("%w: bit depth %d", ErrUnsupported, d.bitDepth)
	}
	switch p[9] {
	case colorGray:
		d.channels = 1
	case colorGrayAlpha:
		d.channels = 2
	case colorRGB:
		d.channels = 3
	case colorRGBA:
		d.channels = 4
	default:
		return fmt.Errorf("%w: color type %d", ErrUnsupported, p[9])
	}
	if p[10] != 0 || p[11] != 0 || p[12] != 0 {
		return fmt.Errorf("%w: compression/filter/interlace method %d/%d/%d",
			ErrUnsupported, p[10], p[11], p[12])
	}

	if int64(width)*int64(height)*int64(d.channels) > maxDecodedBytes {
		return fmt.Errorf("pnglite: image too large: %dx%dx%d", width, height, d.channels)
	}
	d.width = int(width)
	d.height = int(height)
	return nil
}

// parseText records one tEXt chunk: keyword, NUL separator, value. A
// payload without a separator is skipped rather than rejected, matching
// the chunk's ancillary status.
func (d *decoder) parseText(p []byte) {
	for i, b := range p {
		if b == 0 {
			if d.text == nil {
				d.text = make(map[string]string)
			}
			d.text[string(p[:i])] = string(p[i+1:])
			return
		}
	}
}

// reconstruct reverses the per-row filters over the decompressed stream
// and packs the pixel rows into img.
func (d *decoder) reconstruct(img *Image, raw []byte, rowBytes int) error {
	var prev []byte
	for y := 0; y < d.height; y++ {
		rowData := raw[y*rowBytes : (y+1)*rowBytes]
		ftype := rowData[0]
		row := rowData[1:]

		if err := filter.Reconstruct(ftype, row, prev, d.channels); err != nil {
			return fmt.Errorf("row %d: %w", y, err)
		}
		copy(img.Pix[y*d.width*d.channels:], row)
		prev = row
	}
	return nil
}
