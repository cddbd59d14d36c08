package lfs

import "hash/crc32"

// checksumIEEE returns the CRC32-IEEE of buf. Callers are responsible for
// zeroing the record's own checksum field before calling this, per the
// invariant in spec §3/§4.3 ("checksum covers the record with its own
// field zeroed").
func checksumIEEE(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf)
}
