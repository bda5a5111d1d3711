package chunk

import "sync"

// crcInit is the pre- and post-conditioning value for PNG's CRC-32
// (reflected polynomial 0xEDB88320).
const crcInit = 0xFFFFFFFF

var (
	crcOnce  sync.Once
	crcTable [256]uint32
)

// crcTableOnce builds the byte-indexed CRC table exactly once per
// process. The lazy build is guarded so concurrent first use from
// multiple goroutines is safe.
func crcTableOnce() *[256]uint32 {
	crcOnce.Do(func() {
		for n := range crcTable {
			c := uint32(n)
			for k := 0; k < 8; k++ {
				if c&1 != 0 {
					c = 0xEDB88320 ^ c>>1
				} else {
					c >>= 1
				}
			}
			crcTable[n] = c
		}
	})
	return &crcTable
}

// Update feeds data into a running CRC. Start from crcInit and XOR with
// crcInit after the last Update; CRC32 does both for the one-shot case.
func Update(crc uint32, data []byte) uint32 {
	table := crcTableOnce()
	for _, b := range data {
		crc = table[byte(crc)^b] ^ crc>>8
	}
	return crc
}

// CRC32 computes the PNG CRC of data.
func CRC32(data []byte) uint32 {
	return Update(crcInit, data) ^ crcInit
}
