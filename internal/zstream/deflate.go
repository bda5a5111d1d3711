package zstream

// maxStoredBlock is the largest payload a single stored block can carry
// (the LEN field is 16 bits).
const maxStoredBlock = 0xffff

// CompressStored wraps data in a zlib stream of stored blocks. No entropy
// coding is attempted: the output is larger than the input by the envelope
// overhead, a deliberate trade of size for simplicity and zero external
// dependencies. It cannot fail.
func CompressStored(data []byte) []byte {
	numBlocks := (len(data) + maxStoredBlock - 1) / maxStoredBlock
	if numBlocks == 0 {
		numBlocks = 1 // empty input still needs one final block
	}
	out := make([]byte, 0, 2+numBlocks*5+len(data)+4)

	// CMF: deflate, 32K window. FLG: no dictionary, fastest compression
	// level; chosen so (CMF<<8|FLG) is a multiple of 31.
	out = append(out, 0x78, 0x01)

	rest := data
	for {
		block := rest
		if len(block) > maxStoredBlock {
			block = block[:maxStoredBlock]
		}
		rest = rest[len(block):]

		final := byte(0)
		if len(rest) == 0 {
			final = 1
		}
		// BFINAL plus BTYPE=00; the remaining bits of the byte pad to the
		// byte-aligned LEN/NLEN fields.
		n := len(block)
		out = append(out, final,
			byte(n), byte(n>>8),
			byte(^n), byte(^n>>8))
		out = append(out, block...)
		if final == 1 {
			break
		}
	}

	sum := Adler32(data)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}
