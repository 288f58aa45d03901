package types

import (
	"bytes"
	"crypto/sha256"
	"io"

	"github.com/magnachain/magnachain/protocol/bc"
)

const maxBlockSigSize = 1 << 16

// BlockHeader carries the consensus fields of one block. Beside the usual
// merkle root over the transaction set, two extra roots commit to contract
// result data of this and the previous block, and the stake fields sign
// the block in proof-of-stake periods.
type BlockHeader struct {
	Version                int32
	PreviousBlockHash      bc.Hash
	MerkleRoot             bc.Hash
	MerkleRootWithData     bc.Hash
	MerkleRootWithPrevData bc.Hash
	Timestamp              uint32
	Bits                   uint32
	Nonce                  uint32
	StakePrevout           bc.Outpoint
	BlockSig               []byte
}

func (bh *BlockHeader) serialize(w io.Writer, withSig bool) error {
	if err := writeUint32(w, uint32(bh.Version)); err != nil {
		return err
	}
	for _, h := range []bc.Hash{bh.PreviousBlockHash, bh.MerkleRoot,
		bh.MerkleRootWithData, bh.MerkleRootWithPrevData} {
		if _, err := h.WriteTo(w); err != nil {
			return err
		}
	}
	for _, v := range []uint32{bh.Timestamp, bh.Bits, bh.Nonce} {
		if err := writeUint32(w, v); err != nil {
			return err
		}
	}

	if _, err := bh.StakePrevout.Hash.WriteTo(w); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(bh.StakePrevout.Index)); err != nil {
		return err
	}

	if !withSig {
		return nil
	}
	if err := writeCompactSize(w, uint64(len(bh.BlockSig))); err != nil {
		return err
	}
	_, err := w.Write(bh.BlockSig)
	return err
}

// Serialize writes the full wire form including the block signature.
func (bh *BlockHeader) Serialize(w io.Writer) error {
	return bh.serialize(w, true)
}

// Deserialize reads the full wire form.
func (bh *BlockHeader) Deserialize(r io.Reader) error {
	v, err := readUint32(r)
	if err != nil {
		return err
	}
	bh.Version = int32(v)

	for _, h := range []*bc.Hash{&bh.PreviousBlockHash, &bh.MerkleRoot,
		&bh.MerkleRootWithData, &bh.MerkleRootWithPrevData} {
		if _, err := h.ReadFrom(r); err != nil {
			return err
		}
	}
	for _, p := range []*uint32{&bh.Timestamp, &bh.Bits, &bh.Nonce} {
		if *p, err = readUint32(r); err != nil {
			return err
		}
	}

	if _, err := bh.StakePrevout.Hash.ReadFrom(r); err != nil {
		return err
	}
	index, err := readUint32(r)
	if err != nil {
		return err
	}
	bh.StakePrevout.Index = uint64(index)

	sigLen, err := readCompactSize(r)
	if err != nil {
		return err
	}
	if sigLen > maxBlockSigSize {
		return errCountTooLarge
	}
	bh.BlockSig = make([]byte, sigLen)
	_, err = io.ReadFull(r, bh.BlockSig)
	return err
}

// Hash returns the block identifier: a double SHA256 over the header
// without the signature, so signing the block does not change its
// identity.
func (bh *BlockHeader) Hash() bc.Hash {
	var buf bytes.Buffer
	bh.serialize(&buf, false)

	first := sha256.Sum256(buf.Bytes())
	second := sha256.Sum256(first[:])
	return bc.NewHash(second)
}
