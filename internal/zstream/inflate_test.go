package zstream

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// deflateBits builds a raw DEFLATE bit stream for handcrafted blocks.
// Huffman codes are appended MSB-first (the order the decoder consumes
// them); everything else LSB-first, matching RFC 1951 packing.
type deflateBits struct {
	bits []byte
}

func (d *deflateBits) value(v uint32, n uint) {
	for i := uint(0); i < n; i++ {
		d.bits = append(d.bits, byte(v>>i&1))
	}
}

func (d *deflateBits) code(c uint32, n uint) {
	for i := n; i > 0; i-- {
		d.bits = append(d.bits, byte(c>>(i-1)&1))
	}
}

// zlibStream packs the bits into bytes and wraps them in a zlib envelope
// with the Adler-32 of want as the trailer.
func (d *deflateBits) zlibStream(want []byte) []byte {
	out := []byte{0x78, 0x01}
	var cur byte
	var n uint
	for _, b := range d.bits {
		cur |= b << n
		if n++; n == 8 {
			out = append(out, cur)
			cur, n = 0, 0
		}
	}
	if n > 0 {
		out = append(out, cur)
	}
	sum := Adler32(want)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

// fixedLitCode returns the fixed-Huffman code and width for a literal
// value 0-143.
func fixedLitCode(lit int) (uint32, uint) {
	return uint32(0x30 + lit), 8
}

func TestDecompressStoredRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0x42}},
		{"small text", []byte("the quick brown fox")},
		{"one full block", bytes.Repeat([]byte{0xA5}, 65535)},
		{"multiple blocks", bytes.Repeat([]byte("xyz"), 50000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decompress(CompressStored(tt.data), len(tt.data))
			if err != nil {
				t.Fatalf("Decompress error: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip mismatch: got %d bytes", len(got))
			}
		})
	}
}

// TestCompressStoredExternalReader checks our stored-mode output against
// an independent zlib implementation.
func TestCompressStoredExternalReader(t *testing.T) {
	data := bytes.Repeat([]byte("stored block payload "), 5000)
	zr, err := zlib.NewReader(bytes.NewReader(CompressStored(data)))
	if err != nil {
		t.Fatalf("external reader rejected stream header: %v", err)
	}
	defer zr.Close()
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("external reader failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("external reader decoded different bytes")
	}
}

// TestDecompressExternalWriter feeds our inflater streams produced by an
// independent deflate implementation at several levels, exercising
// stored, fixed-Huffman, and dynamic-Huffman blocks with real LZ77
// back-references.
func TestDecompressExternalWriter(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	noise := make([]byte, 4096)
	rng.Read(noise)

	inputs := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short literal run", []byte("abc")},
		{"highly repetitive", bytes.Repeat([]byte("abcabcabc"), 3000)},
		{"incompressible noise", noise},
		{"scanline-like", bytes.Repeat(append([]byte{0}, bytes.Repeat([]byte{0x80, 0x40, 0x20}, 64)...), 128)},
	}
	levels := []struct {
		name  string
		level int
	}{
		{"stored", zlib.NoCompression},
		{"huffman only", zlib.HuffmanOnly},
		{"default", zlib.DefaultCompression},
		{"best", zlib.BestCompression},
	}

	for _, in := range inputs {
		for _, lv := range levels {
			t.Run(in.name+"/"+lv.name, func(t *testing.T) {
				var buf bytes.Buffer
				zw, err := zlib.NewWriterLevel(&buf, lv.level)
				if err != nil {
					t.Fatal(err)
				}
				if _, err := zw.Write(in.data); err != nil {
					t.Fatal(err)
				}
				if err := zw.Close(); err != nil {
					t.Fatal(err)
				}

				got, err := Decompress(buf.Bytes(), len(in.data))
				if err != nil {
					t.Fatalf("Decompress error: %v", err)
				}
				if !bytes.Equal(got, in.data) {
					t.Error("decoded bytes differ from original")
				}
			})
		}
	}
}

func TestDecompressHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", []byte{0x78, 0x01, 0x00, 0x00}, ErrHeader},
		{"wrong method", []byte{0x79, 0x00, 0x00, 0x00, 0x00, 0x00}, ErrHeader},
		{"bad header check", []byte{0x78, 0x02, 0x00, 0x00, 0x00, 0x00}, ErrHeader},
		{"preset dictionary", []byte{0x78, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, ErrDictionary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.data, 0); !errors.Is(err, tt.want) {
				t.Errorf("Decompress error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecompressCorruptStreams(t *testing.T) {
	t.Run("stored length complement mismatch", func(t *testing.T) {
		data := []byte{0x78, 0x01,
			0x01,       // final, stored
			0x02, 0x00, // LEN = 2
			0x00, 0x00, // NLEN does not complement LEN
			0xAA, 0xBB,
			0x00, 0x00, 0x00, 0x00,
		}
		if _, err := Decompress(data, 2); !errors.Is(err, ErrCorrupt) {
			t.Errorf("error = %v, want ErrCorrupt", err)
		}
	})

	t.Run("reserved block type", func(t *testing.T) {
		var d deflateBits
		d.value(1, 1) // final
		d.value(3, 2) // BTYPE = 11, reserved
		if _, err := Decompress(d.zlibStream(nil), 0); !errors.Is(err, ErrCorrupt) {
			t.Errorf("error = %v, want ErrCorrupt", err)
		}
	})

	t.Run("stored block exceeds expected length", func(t *testing.T) {
		stream := CompressStored([]byte("four"))
		if _, err := Decompress(stream, 2); !errors.Is(err, ErrCorrupt) {
			t.Errorf("error = %v, want ErrCorrupt", err)
		}
	})

	t.Run("stream shorter than expected length", func(t *testing.T) {
		stream := CompressStored([]byte("four"))
		if _, err := Decompress(stream, 8); !errors.Is(err, ErrCorrupt) {
			t.Errorf("error = %v, want ErrCorrupt", err)
		}
	})

	t.Run("trailer checksum mismatch", func(t *testing.T) {
		stream := CompressStored([]byte("checksummed"))
		stream[len(stream)-1] ^= 0xFF
		if _, err := Decompress(stream, len("checksummed")); !errors.Is(err, ErrChecksum) {
			t.Errorf("error = %v, want ErrChecksum", err)
		}
	})

	t.Run("truncated fixed block", func(t *testing.T) {
		var d deflateBits
		d.value(1, 1)
		d.value(1, 2) // fixed Huffman, then nothing
		_, err := Decompress(d.zlibStream(nil), 4)
		if err == nil {
			t.Error("want error for truncated block, got nil")
		}
	})
}

// TestDecompressBackReferenceBeforeStart handcrafts a fixed-Huffman
// block whose first symbol is a match: length code 257 (length 3) with
// distance code 0 (distance 1) at output position zero. The inflater
// must fail rather than read before the start of its output.
func TestDecompressBackReferenceBeforeStart(t *testing.T) {
	var d deflateBits
	d.value(1, 1)        // final
	d.value(1, 2)        // fixed Huffman
	d.code(0x01, 7)      // length symbol 257
	d.code(0x00, 5)      // distance symbol 0
	_, err := Decompress(d.zlibStream(nil), 4)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", err)
	}
}

// TestDecompressOverlappingCopy handcrafts the classic self-referential
// match: one literal followed by a length-3 copy at distance 1, which
// must replicate the literal three times.
func TestDecompressOverlappingCopy(t *testing.T) {
	want := []byte("aaaa")

	var d deflateBits
	d.value(1, 1) // final
	d.value(1, 2) // fixed Huffman
	c, n := fixedLitCode('a')
	d.code(c, n)
	d.code(0x01, 7) // length symbol 257: length 3
	d.code(0x00, 5) // distance symbol 0: distance 1
	d.code(0x00, 7) // end of block

	got, err := Decompress(d.zlibStream(want), len(want))
	if err != nil {
		t.Fatalf("Decompress error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Decompress = %q, want %q", got, want)
	}
}

// TestDecompressDynamicRepeatOverrun builds a dynamic block header whose
// run-length codes overrun the declared alphabet sizes.
func TestDecompressDynamicRepeatOverrun(t *testing.T) {
	// HLIT=0 (257 codes), HDIST=0 (1 code), HCLEN=15 (19 entries).
	// Code-length alphabet: symbol 18 gets length 1, symbol 0 gets
	// length 1; then a run of 138 zeros repeated twice overruns 258.
	var d deflateBits
	d.value(1, 1) // final
	d.value(2, 2) // dynamic
	d.value(0, 5) // HLIT
	d.value(0, 5) // HDIST
	d.value(15, 4)
	// Order: 16 17 18 0 8 7 9 6 10 5 11 4 12 3 13 2 14 1 15.
	lens := []uint32{0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	for _, l := range lens {
		d.value(l, 3)
	}
	// Canonical codes: symbol 0 -> 0, symbol 18 -> 1.
	d.code(1, 1)        // symbol 18: zero run
	d.value(127, 7)     // 138 zeros
	d.code(1, 1)        // symbol 18 again
	d.value(127, 7)     // 138 more, overruns 258 total lengths
	_, err := Decompress(d.zlibStream(nil), 16)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", err)
	}
}

// TestDecompressOversubscribedDynamicTable declares literal code lengths
// violating Kraft's inequality; table construction must reject them.
func TestDecompressOversubscribedDynamicTable(t *testing.T) {
	var d deflateBits
	d.value(1, 1)  // final
	d.value(2, 2)  // dynamic
	d.value(0, 5)  // HLIT: 257 literal codes
	d.value(0, 5)  // HDIST: 1 distance code
	d.value(15, 4) // HCLEN: all 19 entries
	// Give symbol 1 length 1 and symbol 0 length 1 in the code-length
	// alphabet, then emit length 1 for too many literal symbols.
	lens := []uint32{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	for _, l := range lens {
		d.value(l, 3)
	}
	// Canonical codes over {0,1}: symbol 0 -> 0, symbol 1 -> 1.
	// Emit length 1 three times: three length-1 codes oversubscribe.
	d.code(1, 1)
	d.code(1, 1)
	d.code(1, 1)
	// Fill the rest with zeros so the length array completes.
	for i := 3; i < 258; i++ {
		d.code(0, 1)
	}
	_, err := Decompress(d.zlibStream(nil), 16)
	if !errors.Is(err, ErrBadTable) {
		t.Errorf("error = %v, want ErrBadTable", err)
	}
}

func TestDecompressRepeatWithNoPreviousLength(t *testing.T) {
	var d deflateBits
	d.value(1, 1)  // final
	d.value(2, 2)  // dynamic
	d.value(0, 5)  // HLIT
	d.value(0, 5)  // HDIST
	d.value(15, 4) // HCLEN
	// Code-length alphabet: symbol 16 -> length 1, symbol 0 -> length 1.
	lens := []uint32{1, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	for _, l := range lens {
		d.value(l, 3)
	}
	// Canonical codes: symbol 0 -> 0, symbol 16 -> 1. Leading repeat has
	// nothing to repeat.
	d.code(1, 1)
	d.value(0, 2)
	_, err := Decompress(d.zlibStream(nil), 16)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", err)
	}
}

func TestAdler32(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 1},
		{"Wikipedia", []byte("Wikipedia"), 0x11E60398},
		{"single zero", []byte{0}, 0x00010001},
		{"large input reduces correctly", bytes.Repeat([]byte{0xFF}, 100000), adler32Ref(bytes.Repeat([]byte{0xFF}, 100000))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Adler32(tt.data); got != tt.want {
				t.Errorf("Adler32 = %#x, want %#x", got, tt.want)
			}
		})
	}
}

// adler32Ref is the textbook byte-at-a-time definition, used as an
// oracle for the batched implementation.
func adler32Ref(data []byte) uint32 {
	a, b := uint32(1), uint32(0)
	for _, c := range data {
		a = (a + uint32(c)) % adlerMod
		b = (b + a) % adlerMod
	}
	return b<<16 | a
}

func FuzzDecompress(f *testing.F) {
	f.Add(CompressStored([]byte("seed payload")))
	f.Add([]byte{0x78, 0x01, 0x03, 0x00, 0x00, 0x00, 0x00, 0x01})
	f.Add([]byte{})
	f.Add([]byte{0x78, 0x9C})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Must never panic, whatever the input.
		_, _ = Decompress(data, 512)
		_, _ = Decompress(data, 0)
	})
}
