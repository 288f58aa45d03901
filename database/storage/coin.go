package storage

import (
	"github.com/magnachain/magnachain/errors"
)

// Coin is one live transaction output together with the metadata needed to
// validate a spend of it.
type Coin struct {
	Amount      int64
	Script      []byte
	BlockHeight uint64
	IsCoinBase  bool
	Spent       bool
}

// NewCoin will create a new coin entry
func NewCoin(amount int64, script []byte, blockHeight uint64, isCoinBase bool) *Coin {
	return &Coin{
		Amount:      amount,
		Script:      script,
		BlockHeight: blockHeight,
		IsCoinBase:  isCoinBase,
	}
}

// Clear marks the coin spent and drops its payload so a spent cache entry
// does not pin the script in memory.
func (c *Coin) Clear() {
	c.Amount = 0
	c.Script = nil
	c.BlockHeight = 0
	c.IsCoinBase = false
	c.Spent = true
}

// DynamicMemoryUsage approximates the heap footprint of the coin.
func (c *Coin) DynamicMemoryUsage() uint64 {
	return uint64(len(c.Script)) + 48
}

var errCoinTruncated = errors.New("truncated coin record")

// SerializeCoin encodes a coin in its disk form: a VLQ header holding
// height*2|coinbase, the compressed amount, and the length-prefixed script.
func SerializeCoin(c *Coin) []byte {
	code := c.BlockHeight << 1
	if c.IsCoinBase {
		code |= 1
	}

	amount := compressAmount(uint64(c.Amount))
	size := SerializeSizeVLQ(code) + SerializeSizeVLQ(amount) +
		SerializeSizeVLQ(uint64(len(c.Script))) + len(c.Script)

	serialized := make([]byte, size)
	offset := PutVLQ(serialized, code)
	offset += PutVLQ(serialized[offset:], amount)
	offset += PutVLQ(serialized[offset:], uint64(len(c.Script)))
	copy(serialized[offset:], c.Script)
	return serialized
}

// DeserializeCoin decodes a coin from its disk form.
func DeserializeCoin(serialized []byte) (*Coin, error) {
	code, offset := DeserializeVLQ(serialized)
	if offset >= len(serialized) {
		return nil, errCoinTruncated
	}

	amount, read := DeserializeVLQ(serialized[offset:])
	offset += read
	if offset >= len(serialized) {
		return nil, errCoinTruncated
	}

	scriptLen, read := DeserializeVLQ(serialized[offset:])
	offset += read
	if uint64(len(serialized)-offset) != scriptLen {
		return nil, errors.Wrapf(errCoinTruncated, "script len %d, remaining %d", scriptLen, len(serialized)-offset)
	}

	script := make([]byte, scriptLen)
	copy(script, serialized[offset:])

	return &Coin{
		Amount:      int64(decompressAmount(amount)),
		Script:      script,
		BlockHeight: code >> 1,
		IsCoinBase:  code&1 != 0,
	}, nil
}
