package types

import (
	"io"

	"github.com/magnachain/magnachain/protocol/bc"
)

// maxPartialTreeTxs bounds the claimed transaction count of a received
// partial tree: a minimal transaction is 60 bytes, so no valid block holds
// more than this many.
const maxPartialTreeTxs = 4000000 / 60

// PartialMerkleTree is a compact proof that a subset of a block's
// transactions is committed to by its merkle root. It stores the tree in
// depth-first order as one flag bit per traversed node plus the hashes of
// the pruned subtrees and the matched leaves.
//
// The format is wire-compatible with the reference implementation:
// the total transaction count, the hash list, then the packed flag bits.
type PartialMerkleTree struct {
	numTransactions uint32
	bits            []bool
	hashes          []bc.Hash
	bad             bool
}

// NewPartialMerkleTree builds the proof for the leaves of txids whose
// matches entry is true.
func NewPartialMerkleTree(txids []bc.Hash, matches []bool) *PartialMerkleTree {
	t := &PartialMerkleTree{numTransactions: uint32(len(txids))}

	height := uint32(0)
	for t.calcTreeWidth(height) > 1 {
		height++
	}
	t.traverseAndBuild(height, 0, txids, matches)
	return t
}

// calcTreeWidth returns the number of nodes at the given height.
func (t *PartialMerkleTree) calcTreeWidth(height uint32) uint32 {
	return (t.numTransactions + (1 << height) - 1) >> height
}

// calcHash computes the node at (height, pos) from the full txid list,
// duplicating the last node of an odd-width row.
func (t *PartialMerkleTree) calcHash(height, pos uint32, txids []bc.Hash) bc.Hash {
	if height == 0 {
		return txids[pos]
	}

	left := t.calcHash(height-1, pos*2, txids)
	right := left
	if pos*2+1 < t.calcTreeWidth(height-1) {
		right = t.calcHash(height-1, pos*2+1, txids)
	}
	return hashMerkleBranches(left, right)
}

func (t *PartialMerkleTree) traverseAndBuild(height, pos uint32, txids []bc.Hash, matches []bool) {
	parentOfMatch := false
	for p := pos << height; p < (pos+1)<<height && p < t.numTransactions; p++ {
		if matches[p] {
			parentOfMatch = true
		}
	}
	t.bits = append(t.bits, parentOfMatch)

	if height == 0 || !parentOfMatch {
		// this subtree is fully above or fully below interest, store
		// its hash and stop descending
		t.hashes = append(t.hashes, t.calcHash(height, pos, txids))
		return
	}

	t.traverseAndBuild(height-1, pos*2, txids, matches)
	if pos*2+1 < t.calcTreeWidth(height-1) {
		t.traverseAndBuild(height-1, pos*2+1, txids, matches)
	}
}

func (t *PartialMerkleTree) traverseAndExtract(height, pos uint32, bitsUsed, hashesUsed *int, matched *[]bc.Hash, indices *[]uint32) bc.Hash {
	if *bitsUsed >= len(t.bits) {
		t.bad = true
		return bc.Hash{}
	}
	parentOfMatch := t.bits[*bitsUsed]
	*bitsUsed++

	if height == 0 || !parentOfMatch {
		if *hashesUsed >= len(t.hashes) {
			t.bad = true
			return bc.Hash{}
		}
		hash := t.hashes[*hashesUsed]
		*hashesUsed++
		if height == 0 && parentOfMatch {
			*matched = append(*matched, hash)
			*indices = append(*indices, pos)
		}
		return hash
	}

	left := t.traverseAndExtract(height-1, pos*2, bitsUsed, hashesUsed, matched, indices)
	var right bc.Hash
	if pos*2+1 < t.calcTreeWidth(height-1) {
		right = t.traverseAndExtract(height-1, pos*2+1, bitsUsed, hashesUsed, matched, indices)
		if right == left {
			// identical left and right subtrees permit forging a second
			// tx set with the same root, reject as malleable
			t.bad = true
		}
	} else {
		right = left
	}
	return hashMerkleBranches(left, right)
}

// ExtractMatches validates the tree and returns its root, filling matched
// with the proven txids in leaf order and indices with their positions.
// A zero root means the tree is malformed or malleable.
func (t *PartialMerkleTree) ExtractMatches(matched *[]bc.Hash, indices *[]uint32) bc.Hash {
	*matched = (*matched)[:0]
	*indices = (*indices)[:0]
	t.bad = false

	if t.numTransactions == 0 || t.numTransactions > maxPartialTreeTxs {
		return bc.Hash{}
	}
	// one hash per claimed tx is the ceiling, and every hash needs a bit
	if len(t.hashes) > int(t.numTransactions) {
		return bc.Hash{}
	}
	if len(t.bits) < len(t.hashes) {
		return bc.Hash{}
	}

	height := uint32(0)
	for t.calcTreeWidth(height) > 1 {
		height++
	}

	bitsUsed, hashesUsed := 0, 0
	root := t.traverseAndExtract(height, 0, &bitsUsed, &hashesUsed, matched, indices)
	if t.bad {
		return bc.Hash{}
	}
	// everything in the serialization must have been consumed
	if (bitsUsed+7)/8 != (len(t.bits)+7)/8 {
		return bc.Hash{}
	}
	if hashesUsed != len(t.hashes) {
		return bc.Hash{}
	}
	return root
}

// Serialize writes the wire form of the tree.
func (t *PartialMerkleTree) Serialize(w io.Writer) error {
	if err := writeUint32(w, t.numTransactions); err != nil {
		return err
	}

	if err := writeCompactSize(w, uint64(len(t.hashes))); err != nil {
		return err
	}
	for _, h := range t.hashes {
		if _, err := h.WriteTo(w); err != nil {
			return err
		}
	}

	packed := make([]byte, (len(t.bits)+7)/8)
	for i, bit := range t.bits {
		if bit {
			packed[i/8] |= 1 << (uint(i) % 8)
		}
	}
	if err := writeCompactSize(w, uint64(len(packed))); err != nil {
		return err
	}
	_, err := w.Write(packed)
	return err
}

// Deserialize reads the wire form of the tree.
func (t *PartialMerkleTree) Deserialize(r io.Reader) error {
	var err error
	if t.numTransactions, err = readUint32(r); err != nil {
		return err
	}

	hashCount, err := readCompactSize(r)
	if err != nil {
		return err
	}
	if hashCount > maxPartialTreeTxs {
		return errCountTooLarge
	}
	t.hashes = make([]bc.Hash, hashCount)
	for i := range t.hashes {
		if _, err := t.hashes[i].ReadFrom(r); err != nil {
			return err
		}
	}

	byteCount, err := readCompactSize(r)
	if err != nil {
		return err
	}
	if byteCount > (maxPartialTreeTxs*2+7)/8 {
		return errCountTooLarge
	}
	packed := make([]byte, byteCount)
	if _, err := io.ReadFull(r, packed); err != nil {
		return err
	}

	t.bits = make([]bool, len(packed)*8)
	for i := range t.bits {
		t.bits[i] = packed[i/8]&(1<<(uint(i)%8)) != 0
	}
	t.bad = false
	return nil
}
