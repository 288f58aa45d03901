package types

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/magnachain/magnachain/protocol/bc"
)

func hashFromUint(i uint64) bc.Hash {
	var b [32]byte
	b[31] = byte(i)
	b[30] = byte(i >> 8)
	return bc.NewHash(b)
}

// damage flips one bit in one of the stored hashes, which must break the
// authentication. It returns an undo function.
func (t *PartialMerkleTree) damage(rng *rand.Rand) func() {
	n := rng.Intn(len(t.hashes))
	bit := rng.Intn(256)

	flip := func() {
		b := t.hashes[n].Byte32()
		b[bit>>3] ^= 1 << (uint(bit) & 7)
		t.hashes[n] = bc.NewHash(b)
	}
	flip()
	return flip
}

func TestPartialMerkleTree(t *testing.T) {
	rng := rand.New(rand.NewSource(1337))
	txCounts := []uint32{1, 4, 7, 17, 56, 100, 127, 256, 312, 513, 1000, 4095}

	for _, nTx := range txCounts {
		txids := make([]bc.Hash, nTx)
		for j := range txids {
			var b [32]byte
			rng.Read(b[:])
			txids[j] = bc.NewHash(b)
		}
		wantRoot := MerkleRoot(txids)

		nHeight := 1
		for w := nTx; w > 1; w = (w + 1) / 2 {
			nHeight++
		}

		// random subsets with inclusion chances 1, 1/2, 1/4, ..., 1/128
		for att := 1; att < 15; att++ {
			matches := make([]bool, nTx)
			var wantMatched []bc.Hash
			for j := range txids {
				include := att/2 == 0 || rng.Intn(1<<uint(att/2)) == 0
				matches[j] = include
				if include {
					wantMatched = append(wantMatched, txids[j])
				}
			}

			pmt1 := NewPartialMerkleTree(txids, matches)

			var buf bytes.Buffer
			if err := pmt1.Serialize(&buf); err != nil {
				t.Fatal(err)
			}

			// size guarantee of the format
			n := int(nTx)
			if bound := 1 + len(wantMatched)*nHeight; bound < n {
				n = bound
			}
			if maxSize := 10 + (258*n+7)/8; buf.Len() > maxSize {
				t.Fatalf("nTx=%d att=%d: serialized %d bytes, bound %d", nTx, att, buf.Len(), maxSize)
			}

			pmt2 := &PartialMerkleTree{}
			if err := pmt2.Deserialize(bytes.NewReader(buf.Bytes())); err != nil {
				t.Fatal(err)
			}

			var matched []bc.Hash
			var indices []uint32
			root := pmt2.ExtractMatches(&matched, &indices)
			if root.IsZero() {
				t.Fatalf("nTx=%d att=%d: extracted null root", nTx, att)
			}
			if root != wantRoot {
				t.Fatalf("nTx=%d att=%d: root mismatch", nTx, att)
			}
			if len(matched) != len(wantMatched) {
				t.Fatalf("nTx=%d att=%d: %d matches want %d", nTx, att, len(matched), len(wantMatched))
			}
			for j := range matched {
				if matched[j] != wantMatched[j] {
					t.Fatalf("nTx=%d att=%d: match %d out of order", nTx, att, j)
				}
			}

			// random bit flips must break the authentication
			for j := 0; j < 4; j++ {
				undo := pmt2.damage(rng)
				root := pmt2.ExtractMatches(&matched, &indices)
				undo()
				if root == wantRoot {
					t.Fatalf("nTx=%d att=%d: damaged tree still authenticates", nTx, att)
				}
			}
		}
	}
}

func TestPartialMerkleTreeMalleability(t *testing.T) {
	// duplicating the last two txids permits an alternative match set with
	// the same root; such a tree must extract to a null root
	txids := []bc.Hash{
		hashFromUint(1), hashFromUint(2),
		hashFromUint(3), hashFromUint(4),
		hashFromUint(5), hashFromUint(6),
		hashFromUint(7), hashFromUint(8),
		hashFromUint(9), hashFromUint(10),
		hashFromUint(9), hashFromUint(10),
	}
	matches := []bool{false, false, false, false, false, false, false, false, false, true, true, false}

	tree := NewPartialMerkleTree(txids, matches)

	var matched []bc.Hash
	var indices []uint32
	if root := tree.ExtractMatches(&matched, &indices); !root.IsZero() {
		t.Fatalf("malleable tree extracted non-null root %s", root.String())
	}
}

func TestPartialMerkleTreeEmpty(t *testing.T) {
	tree := &PartialMerkleTree{}
	var matched []bc.Hash
	var indices []uint32
	if root := tree.ExtractMatches(&matched, &indices); !root.IsZero() {
		t.Fatal("empty tree extracted non-null root")
	}
}
