package bc

import "fmt"

// Outpoint identifies one output of one transaction.
type Outpoint struct {
	Hash  Hash
	Index uint64
}

// NewOutpoint constructs an Outpoint from a tx hash and output index.
func NewOutpoint(hash Hash, index uint64) Outpoint {
	return Outpoint{Hash: hash, Index: index}
}

// String returns the outpoint in txhash:index form.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash.String(), o.Index)
}
