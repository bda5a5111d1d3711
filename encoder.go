package pnglite

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/mrjoshuak/go-pnglite/internal/chunk"
	"github.com/mrjoshuak/go-pnglite/internal/zstream"
)

// maxKeywordLen is the longest tEXt keyword the format allows.
const maxKeywordLen = 79

// encoder handles PNG encoding.
type encoder struct {
	w   io.Writer
	img *Image

	keyword string
	text    string
	hasText bool
}

// newEncoder creates a new encoder.
func newEncoder(w io.Writer, img *Image) *encoder {
	return &encoder{w: w, img: img}
}

// setText attaches one tEXt chunk to the output. The keyword is
// validated here so encode itself can only fail on I/O.
func (e *encoder) setText(keyword, text string) error {
	if len(keyword) == 0 || len(keyword) > maxKeywordLen {
		return fmt.Errorf("pnglite: keyword must be 1-%d bytes, got %d", maxKeywordLen, len(keyword))
	}
	if strings.ContainsRune(keyword, 0) {
		return fmt.Errorf("pnglite: keyword contains NUL byte")
	}
	e.keyword = keyword
	e.text = text
	e.hasText = true
	return nil
}

// encode writes the image: signature, header chunk, optional text
// chunk, compressed pixel payload, terminator.
func (e *encoder) encode() error {
	if err := e.img.validate(); err != nil {
		return err
	}

	cw := chunk.NewWriter(e.w)
	if err := cw.WriteSignature(); err != nil {
		return fmt.Errorf("writing signature: %w", err)
	}
	if err := cw.WriteChunk(chunk.TypeIHDR, e.generateIHDR()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if e.hasText {
		if err := cw.WriteChunk(chunk.TypeTEXt, e.generateTEXt()); err != nil {
			return fmt.Errorf("writing text: %w", err)
		}
	}
	if err := cw.WriteChunk(chunk.TypeIDAT, zstream.CompressStored(e.generateRaw())); err != nil {
		return fmt.Errorf("writing pixel data: %w", err)
	}
	if err := cw.WriteChunk(chunk.TypeIEND, nil); err != nil {
		return fmt.Errorf("writing terminator: %w", err)
	}
	return nil
}

// generateIHDR builds the 13-byte header payload.
func (e *encoder) generateIHDR() []byte {
	colorType := byte(colorGray)
	switch e.img.Channels {
	case 2:
		colorType = colorGrayAlpha
	case 3:
		colorType = colorRGB
	case 4:
		colorType = colorRGBA
	}

	p := make([]byte, ihdrLength)
	binary.BigEndian.PutUint32(p[0:4], uint32(e.img.Width))
	binary.BigEndian.PutUint32(p[4:8], uint32(e.img.Height))
	p[8] = 8         // bit depth
	p[9] = colorType // color model
	// p[10:13]: compression, filter, interlace methods are all zero.
	return p
}

// generateTEXt builds the text payload: keyword, NUL separator, text.
func (e *encoder) generateTEXt() []byte {
	p := make([]byte, 0, len(e.keyword)+1+len(e.text))
	p = append(p, e.keyword...)
	p = append(p, 0)
	return append(p, e.text...)
}

// generateRaw builds the pre-compression scanline stream: each pixel row
// prefixed with a filter-type byte. Rows are always written unfiltered
// (type None); filtering would only help a real entropy coder, and the
// payload is stored uncompressed anyway.
func (e *encoder) generateRaw() []byte {
	img := e.img
	rowPix := img.Width * img.Channels
	raw := make([]byte, img.Height*(1+rowPix))
	for y := 0; y < img.Height; y++ {
		dst := raw[y*(1+rowPix):]
		dst[0] = 0 // filter: None
		copy(dst[1:1+rowPix], img.Pix[y*rowPix:])
	}
	return raw
}
