package database

import (
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/protocol/bc"
)

// Single-byte key namespaces of the chain-state databases. The byte values
// are wire-compatible with the historic disk format and must not change.
const (
	dbCoin        byte = 'C'
	dbCoins       byte = 'c' // legacy per-tx coin records
	dbBlockFiles  byte = 'f'
	dbTxIndex     byte = 't'
	dbBlockIndex  byte = 'b'
	dbBestBlock   byte = 'B'
	dbHeadBlocks  byte = 'H'
	dbFlag        byte = 'F'
	dbReindexFlag byte = 'R'
	dbLastBlock   byte = 'l'
	dbCoinList    byte = 'A'
)

// CalcCoinKey builds the per-txout coin key: 'C' plus the tx hash plus the
// VLQ-encoded output index.
func CalcCoinKey(outpoint *bc.Outpoint) []byte {
	key := make([]byte, 0, 1+32+storage.SerializeSizeVLQ(outpoint.Index))
	key = append(key, dbCoin)
	key = append(key, outpoint.Hash.Bytes()...)

	var buf [10]byte
	n := storage.PutVLQ(buf[:], outpoint.Index)
	return append(key, buf[:n]...)
}

// decodeCoinKey is the inverse of CalcCoinKey.
func decodeCoinKey(key []byte) (bc.Outpoint, bool) {
	if len(key) < 1+32+1 || key[0] != dbCoin {
		return bc.Outpoint{}, false
	}

	var b32 [32]byte
	copy(b32[:], key[1:33])
	index, read := storage.DeserializeVLQ(key[33:])
	if read != len(key)-33 {
		return bc.Outpoint{}, false
	}
	return bc.Outpoint{Hash: bc.NewHash(b32), Index: index}, true
}

func bestBlockKey() []byte { return []byte{dbBestBlock} }

func headBlocksKey() []byte { return []byte{dbHeadBlocks} }

func lastBlockFileKey() []byte { return []byte{dbLastBlock} }

func reindexFlagKey() []byte { return []byte{dbReindexFlag} }

// CalcBlockIndexKey builds the block-record key: 'b' plus the block hash.
func CalcBlockIndexKey(hash *bc.Hash) []byte {
	return append([]byte{dbBlockIndex}, hash.Bytes()...)
}

// CalcBlockFileInfoKey builds the file-info key: 'f' plus the little-endian
// file number.
func CalcBlockFileInfoKey(file int32) []byte {
	return []byte{dbBlockFiles, byte(file), byte(file >> 8), byte(file >> 16), byte(file >> 24)}
}

// CalcTxIndexKey builds the transaction-position key: 't' plus the tx hash.
func CalcTxIndexKey(hash *bc.Hash) []byte {
	return append([]byte{dbTxIndex}, hash.Bytes()...)
}

// CalcFlagKey builds a feature-flag key: 'F' plus the length-prefixed name.
func CalcFlagKey(name string) []byte {
	key := make([]byte, 0, 1+1+len(name))
	key = append(key, dbFlag)

	var buf [10]byte
	n := storage.PutVLQ(buf[:], uint64(len(name)))
	key = append(key, buf[:n]...)
	return append(key, name...)
}

// CalcCoinListKey builds the address reverse-index key: 'A' plus the
// 20-byte address.
func CalcCoinListKey(addr [20]byte) []byte {
	return append([]byte{dbCoinList}, addr[:]...)
}
