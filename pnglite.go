// Package pnglite provides a self-contained, pure Go codec for a PNG
// subset: 8-bit-per-channel grayscale, gray+alpha, RGB, and RGBA images,
// non-interlaced.
//
// Decoding is complete for that subset, including a full DEFLATE
// decompressor (stored, fixed-Huffman, and dynamic-Huffman blocks).
// Encoding writes valid PNG using stored (uncompressed) DEFLATE blocks
// and unfiltered scanlines, trading file size for simplicity and zero
// dependencies. Every output file is readable by any conforming PNG
// decoder, and any conforming baseline PNG of a supported pixel format
// is readable here.
//
// Basic usage for decoding:
//
//	img, err := pnglite.Load("image.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pixel := img.Pix[(y*img.Width+x)*img.Channels:]
//
// Basic usage for encoding:
//
//	err := pnglite.Save(img, "output.png")
//
// The decoder is written to survive arbitrary input: malformed,
// truncated, or adversarial streams produce an error return, never a
// panic, and the package remains fully usable after any failure.
package pnglite

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
)

// Image is a decoded raster: Width*Height pixels, Channels bytes per
// pixel, row-major and channel-interleaved in Pix. Channels is 1
// (grayscale), 2 (gray+alpha), 3 (RGB), or 4 (RGBA). len(Pix) is always
// exactly Width*Height*Channels; rows are never padded.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New creates a zero-filled image. It fails on non-positive dimensions
// or a channel count outside 1..4.
func New(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pnglite: invalid dimensions %dx%d", width, height)
	}
	if channels < 1 || channels > 4 {
		return nil, fmt.Errorf("pnglite: invalid channel count %d", channels)
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}, nil
}

// Clone returns a deep copy backed by a distinct pixel buffer.
func (img *Image) Clone() *Image {
	out := *img
	out.Pix = make([]byte, len(img.Pix))
	copy(out.Pix, img.Pix)
	return &out
}

// validate checks the Image invariants before encoding.
func (img *Image) validate() error {
	if img == nil {
		return fmt.Errorf("pnglite: nil image")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("pnglite: invalid dimensions %dx%d", img.Width, img.Height)
	}
	if img.Channels < 1 || img.Channels > 4 {
		return fmt.Errorf("pnglite: invalid channel count %d", img.Channels)
	}
	if len(img.Pix) != img.Width*img.Height*img.Channels {
		return fmt.Errorf("pnglite: pixel buffer is %d bytes, want %d",
			len(img.Pix), img.Width*img.Height*img.Channels)
	}
	return nil
}

// ColorModel implements image.Image.
func (img *Image) ColorModel() color.Model {
	if img.Channels == 1 {
		return color.GrayModel
	}
	return color.NRGBAModel
}

// Bounds implements image.Image.
func (img *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// At implements image.Image. Out-of-bounds coordinates return zero.
func (img *Image) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		if img.Channels == 1 {
			return color.Gray{}
		}
		return color.NRGBA{}
	}
	p := img.Pix[(y*img.Width+x)*img.Channels:]
	switch img.Channels {
	case 1:
		return color.Gray{Y: p[0]}
	case 2:
		return color.NRGBA{R: p[0], G: p[0], B: p[0], A: p[1]}
	case 3:
		return color.NRGBA{R: p[0], G: p[1], B: p[2], A: 0xFF}
	default:
		return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
	}
}

// Decode reads a PNG image from r.
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes decodes a PNG image from an in-memory buffer. The buffer is
// only borrowed; the returned image owns its own pixel data.
func LoadBytes(data []byte) (*Image, error) {
	return newDecoder(data).decode()
}

// Load decodes a PNG image from a file.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data)
}

// DecodeMetadata reads geometry and text metadata from a PNG stream
// without decompressing pixel data.
func DecodeMetadata(r io.Reader) (*Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	return newDecoder(data).readMetadata()
}

// Encode writes img to w as PNG.
func Encode(w io.Writer, img *Image) error {
	return newEncoder(w, img).encode()
}

// EncodeWithText writes img to w as PNG with one tEXt metadata chunk.
// The keyword must be 1-79 bytes and must not contain a NUL byte; the
// text is unrestricted.
func EncodeWithText(w io.Writer, img *Image, keyword, text string) error {
	e := newEncoder(w, img)
	if err := e.setText(keyword, text); err != nil {
		return err
	}
	return e.encode()
}

// Save writes img to a file.
func Save(img *Image, path string) error {
	return saveFile(img, path, func(e *encoder) error { return nil })
}

// SaveWithText writes img to a file with one tEXt metadata chunk.
func SaveWithText(img *Image, path, keyword, text string) error {
	return saveFile(img, path, func(e *encoder) error { return e.setText(keyword, text) })
}

func saveFile(img *Image, path string, setup func(*encoder) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	e := newEncoder(bw, img)
	err = setup(e)
	if err == nil {
		err = e.encode()
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}
