package types

import (
	"crypto/sha256"

	"github.com/magnachain/magnachain/protocol/bc"
)

// hashMerkleBranches computes the parent of two sibling tree nodes as the
// double SHA256 of their concatenation.
func hashMerkleBranches(left, right bc.Hash) bc.Hash {
	var buf [64]byte
	copy(buf[:32], left.Bytes())
	copy(buf[32:], right.Bytes())

	first := sha256.Sum256(buf[:])
	second := sha256.Sum256(first[:])
	return bc.NewHash(second)
}

// MerkleRoot computes the root over the transaction id list, duplicating
// the final node of odd-width rows.
func MerkleRoot(txids []bc.Hash) bc.Hash {
	if len(txids) == 0 {
		return bc.Hash{}
	}

	row := append([]bc.Hash(nil), txids...)
	for len(row) > 1 {
		next := make([]bc.Hash, 0, (len(row)+1)/2)
		for i := 0; i < len(row); i += 2 {
			right := row[i]
			if i+1 < len(row) {
				right = row[i+1]
			}
			next = append(next, hashMerkleBranches(row[i], right))
		}
		row = next
	}
	return row[0]
}
