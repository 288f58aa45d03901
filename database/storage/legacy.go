package storage

import (
	"github.com/magnachain/magnachain/errors"
)

// LegacyTxOut is one output inside a legacy per-transaction coin record.
type LegacyTxOut struct {
	Amount int64
	Script []byte
}

// LegacyCoins is a pre-per-txout database record: all unspent outputs of one
// transaction packed together. Spent outputs are nil; trailing spent outputs
// are dropped entirely. Only deserialization is needed on the main path, the
// serializer exists so the upgrade pass can be exercised in tests.
type LegacyCoins struct {
	IsCoinBase  bool
	BlockHeight uint64
	Outputs     []*LegacyTxOut
}

var errLegacyTruncated = errors.New("truncated legacy coins record")

// DeserializeLegacyCoins decodes the legacy per-tx form:
// a VLQ version (ignored), a VLQ header code, the spentness bitmask, the
// surviving outputs, and the VLQ block height.
//
// The header code packs: bit 0 the coinbase flag, bit 1 whether output 0 is
// unspent, bit 2 whether output 1 is unspent. code/8 is the number of
// non-zero bitmask bytes that follow (with a +1 correction when bits 1 and 2
// are both clear, so the record is never ambiguous).
func DeserializeLegacyCoins(serialized []byte) (*LegacyCoins, error) {
	_, offset := DeserializeVLQ(serialized) // version, unused
	if offset >= len(serialized) {
		return nil, errLegacyTruncated
	}

	code, read := DeserializeVLQ(serialized[offset:])
	offset += read

	coins := &LegacyCoins{IsCoinBase: code&1 != 0}
	avail := []bool{code&2 != 0, code&4 != 0}
	maskCode := code / 8
	if code&6 == 0 {
		maskCode++
	}

	for maskCode > 0 {
		if offset >= len(serialized) {
			return nil, errLegacyTruncated
		}
		chAvail := serialized[offset]
		offset++
		for p := 0; p < 8; p++ {
			avail = append(avail, chAvail&(1<<uint(p)) != 0)
		}
		if chAvail != 0 {
			maskCode--
		}
	}

	coins.Outputs = make([]*LegacyTxOut, len(avail))
	for i, ok := range avail {
		if !ok {
			continue
		}

		if offset >= len(serialized) {
			return nil, errLegacyTruncated
		}
		amount, read := DeserializeVLQ(serialized[offset:])
		offset += read
		if offset >= len(serialized) {
			return nil, errLegacyTruncated
		}
		scriptLen, read := DeserializeVLQ(serialized[offset:])
		offset += read
		if uint64(len(serialized)-offset) < scriptLen {
			return nil, errLegacyTruncated
		}
		script := make([]byte, scriptLen)
		copy(script, serialized[offset:])
		offset += int(scriptLen)

		coins.Outputs[i] = &LegacyTxOut{
			Amount: int64(decompressAmount(amount)),
			Script: script,
		}
	}

	if offset >= len(serialized) {
		return nil, errLegacyTruncated
	}
	coins.BlockHeight, _ = DeserializeVLQ(serialized[offset:])
	return coins, nil
}

// SerializeLegacyCoins encodes the legacy per-tx form described above.
func SerializeLegacyCoins(coins *LegacyCoins) []byte {
	outputs := coins.Outputs
	// trailing spent outputs are dropped
	for len(outputs) > 0 && outputs[len(outputs)-1] == nil {
		outputs = outputs[:len(outputs)-1]
	}

	avail := make([]bool, len(outputs))
	for i, out := range outputs {
		avail[i] = out != nil
	}

	first := len(avail) > 0 && avail[0]
	second := len(avail) > 1 && avail[1]

	var mask []byte
	if len(avail) > 2 {
		nBytes := (len(avail) - 2 + 7) / 8
		mask = make([]byte, nBytes)
		for i := 2; i < len(avail); i++ {
			if avail[i] {
				mask[(i-2)/8] |= 1 << (uint(i-2) % 8)
			}
		}
		// drop trailing zero bytes, they carry no information
		for len(mask) > 0 && mask[len(mask)-1] == 0 {
			mask = mask[:len(mask)-1]
		}
	}

	nonZero := uint64(0)
	for _, b := range mask {
		if b != 0 {
			nonZero++
		}
	}

	code := nonZero * 8
	if coins.IsCoinBase {
		code |= 1
	}
	if first {
		code |= 2
	}
	if second {
		code |= 4
	}
	if !first && !second {
		code -= 8
	}

	serialized := make([]byte, 0, 16)
	var buf [10]byte
	serialized = append(serialized, buf[:PutVLQ(buf[:], 0)]...) // version
	serialized = append(serialized, buf[:PutVLQ(buf[:], code)]...)
	serialized = append(serialized, mask...)
	for _, out := range outputs {
		if out == nil {
			continue
		}
		serialized = append(serialized, buf[:PutVLQ(buf[:], compressAmount(uint64(out.Amount)))]...)
		serialized = append(serialized, buf[:PutVLQ(buf[:], uint64(len(out.Script)))]...)
		serialized = append(serialized, out.Script...)
	}
	serialized = append(serialized, buf[:PutVLQ(buf[:], coins.BlockHeight)]...)
	return serialized
}
