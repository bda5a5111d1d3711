package zstream

// adlerMod is the largest prime smaller than 1<<16 (RFC 1950).
const adlerMod = 65521

// Adler32 computes the zlib trailer checksum of data. Sums are reduced in
// batches small enough that the b accumulator cannot overflow a uint32.
func Adler32(data []byte) uint32 {
	a, b := uint32(1), uint32(0)
	for len(data) > 0 {
		// 5552 is the largest n with n*(n+1)/2*255 + n*(adlerMod-1) < 1<<32.
		batch := data
		if len(batch) > 5552 {
			batch = batch[:5552]
		}
		for _, c := range batch {
			a += uint32(c)
			b += a
		}
		a %= adlerMod
		b %= adlerMod
		data = data[len(batch):]
	}
	return b<<16 | a
}
