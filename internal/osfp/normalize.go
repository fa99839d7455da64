package osfp

// IPv4 fragment field flag bits, after shifting the top three bits down.
const (
	fragReserved = 0x4
	fragDF       = 0x2
	fragMF       = 0x1

	fragFlagsMask  = 0xE000
	fragOffsetMask = 0x1FFF
)

// SplitVersionIHL splits the first IPv4 header byte into the IP version and
// the header length in bytes.
func SplitVersionIHL(b uint8) (version, headerLen int) {
	return int(b >> 4), int(b&0x0F) * 4
}

// SplitFragment decomposes the 16-bit flags/fragment-offset field.
// The reserved bit is ignored.
func SplitFragment(raw uint16) (df, mf, offset int) {
	flags := (raw & fragFlagsMask) >> 13
	if flags&fragDF != 0 {
		df = 1
	}
	if flags&fragMF != 0 {
		mf = 1
	}
	return df, mf, int(raw & fragOffsetMask)
}

// JoinFragment is the inverse of SplitFragment for offsets below 2^13.
func JoinFragment(df, mf, offset int) uint16 {
	var flags uint16
	if df != 0 {
		flags |= fragDF
	}
	if mf != 0 {
		flags |= fragMF
	}
	return flags<<13 | uint16(offset)&fragOffsetMask
}

// BucketTTL snaps an observed TTL up to the nearest common initial TTL.
// Hop count only ever lowers a TTL, so the ceiling is the stable signal.
// A TTL of 0 is returned unchanged.
func BucketTTL(ttl int) int {
	switch {
	case ttl <= 0:
		return ttl
	case ttl <= 16:
		return 16
	case ttl <= 32:
		return 32
	case ttl <= 60:
		return 60
	case ttl <= 64:
		return 64
	case ttl <= 128:
		return 128
	default:
		return 255
	}
}
