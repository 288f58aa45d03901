package consensus

import (
	"github.com/holiman/uint256"

	"github.com/magnachain/magnachain/protocol/bc"
)

// CompactToTarget expands the compact-bits representation of a difficulty
// target. The compact form packs a base-256 exponent in the top byte, a
// sign bit, and a 23-bit mantissa.
func CompactToTarget(bits uint32) (target *uint256.Int, negative bool, overflow bool) {
	mantissa := bits & 0x007fffff
	exponent := bits >> 24
	negative = bits&0x00800000 != 0 && mantissa != 0

	target = new(uint256.Int)
	if exponent <= 3 {
		target.SetUint64(uint64(mantissa >> (8 * (3 - exponent))))
		return target, negative, false
	}

	overflow = (mantissa != 0 && exponent > 34) ||
		(mantissa > 0xff && exponent > 33) ||
		(mantissa > 0xffff && exponent > 32)
	if overflow {
		return target, negative, true
	}

	target.SetUint64(uint64(mantissa))
	target.Lsh(target, 8*uint(exponent-3))
	return target, negative, false
}

// HashToTarget interprets a block hash as the little-endian 256-bit number
// proof-of-work compares against its target.
func HashToTarget(hash bc.Hash) *uint256.Int {
	b := hash.Byte32()
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return new(uint256.Int).SetBytes(b[:])
}

// CheckProofOfWork reports whether hash satisfies the difficulty claimed
// by bits, and that bits itself is within the network's work bound.
func CheckProofOfWork(hash bc.Hash, bits uint32, params *Params) bool {
	target, negative, overflow := CompactToTarget(bits)
	if negative || overflow || target.IsZero() {
		return false
	}
	if target.Gt(params.PowLimit) {
		return false
	}
	return !HashToTarget(hash).Gt(target)
}
