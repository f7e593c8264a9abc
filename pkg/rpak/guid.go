package rpak

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// StringToGuid derives the 64-bit asset GUID from a path string, mirroring
// RTech::StringToGuid in the original tool: the string is processed in
// 4-byte windows, case-folded via "& 0xDFDFDFDF" (which clears bit 5 of
// every byte), and mixed with the multiplicative constants 0xFB8C4D96501
// and 0x633D5F1. A backslash is rewritten to a forward slash before mixing,
// so "a\\b" and "a/b" hash to the same GUID.
//
// The original has two entry points, StringToGuidAligned and
// StringToGuidUnaligned, which only differ in how they gather the 4-byte
// window across a page boundary. Go byte slices have no such concern, so
// both names are kept (mirroring the original's split) but share one
// implementation; this also gives the alignment-invariance the spec
// requires for free.
func StringToGuid(s string) uint64 {
	return stringToGuidAligned(s)
}

func stringToGuidAligned(s string) uint64   { return guidMix([]byte(s)) }
func stringToGuidUnaligned(s string) uint64 { return guidMix([]byte(s)) }

func guidMix(s []byte) uint64 {
	// Pad out to a multiple of 4 bytes past the terminator so every chunk
	// read is safe without bounds checks.
	buf := make([]byte, len(s)+1, len(s)+4)
	copy(buf, s)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}

	var v1 uint64
	i := 0
	for {
		w := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24

		v4 := (^w) & (w - 0x01010101) & 0x80808080
		v5 := v4 ^ (v4 - 1)
		v6 := (v5 & w) ^ 0x5C5C5C5C
		v7 := (^v6) & (v6 - 0x01010101) & 0x80808080
		v8 := v7 & (0 - v7)

		if v7 != v8 {
			v9 := uint32(0xFF000000)
			for {
				v10 := v9
				if (v9 & v6) == 0 {
					v8 |= v9 & 0x80808080
				}
				v9 >>= 8
				if v10 < 0x100 {
					break
				}
			}
		}

		v11 := 0x633D5F1 * v1
		masked := (v5 & w) - 45*(v8>>7)
		masked &= 0xDFDFDFDF
		v12 := (0xFB8C4D96501 * uint64(masked)) >> 24

		if v4 != 0 {
			v13 := -1
			if v5 != 0 {
				v13 = 31 - bits.LeadingZeros32(v5)
			}
			charIndex := uint32(i) + uint32(v13)/8
			return v12 + v11 - 0xAE502812AA7333*uint64(charIndex)
		}

		i += 4
		sum := v11 + v12
		v1 = (sum >> 61) ^ sum
	}
}

// StringToUIMGHash XORs the low and high halves of StringToGuid(s), used by
// UI image atlas assets that only need a 32-bit identifier.
func StringToUIMGHash(s string) uint32 {
	guid := StringToGuid(s)
	return uint32(guid) ^ uint32(guid>>32)
}

// ParseGUIDFromString parses a "0x<hex>" literal GUID. ok is false if str is
// not in that form.
func ParseGUIDFromString(str string) (guid uint64, ok bool) {
	lower := strings.ToLower(str)
	if !strings.HasPrefix(lower, "0x") {
		return 0, false
	}
	v, err := strconv.ParseUint(lower[2:], 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// GetAssetGUIDFromString resolves a map-file path/guid reference to a GUID:
// "0x..." strings are parsed as raw GUIDs, everything else is hashed. When
// forceRpakExtension is set, the path has its extension rewritten to
// ".rpak" before hashing, matching cross-asset GUID references that always
// resolve against the referenced pak's on-disk name.
func GetAssetGUIDFromString(str string, forceRpakExtension bool) uint64 {
	if len(str) == 0 {
		return 0
	}

	if guid, ok := ParseGUIDFromString(str); ok {
		return guid
	}

	if forceRpakExtension {
		return StringToGuid(changeExtension(str, ".rpak"))
	}

	return StringToGuid(str)
}

func changeExtension(path, newExt string) string {
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		return path[:idx] + newExt
	}
	return path + newExt
}

// fourCC formats a little-endian 4-byte tag as its ASCII string, used for
// error messages and debug logging.
func fourCC(tag uint32) string {
	b := []byte{byte(tag), byte(tag >> 8), byte(tag >> 16), byte(tag >> 24)}
	return fmt.Sprintf("%q", b)
}
