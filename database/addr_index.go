package database

import (
	log "github.com/sirupsen/logrus"

	dbm "github.com/magnachain/magnachain/database/leveldb"
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/protocol/state"
	"github.com/magnachain/magnachain/script"
)

// CoinList is the ordered set of outpoints currently owned by one address.
type CoinList struct {
	Coins []bc.Outpoint
}

func serializeCoinList(list *CoinList) []byte {
	var buf [10]byte
	out := make([]byte, 0, 2+len(list.Coins)*34)
	out = append(out, buf[:storage.PutVLQ(buf[:], uint64(len(list.Coins)))]...)
	for _, op := range list.Coins {
		out = append(out, op.Hash.Bytes()...)
		out = append(out, buf[:storage.PutVLQ(buf[:], op.Index)]...)
	}
	return out
}

func deserializeCoinList(serialized []byte) (*CoinList, error) {
	count, offset := storage.DeserializeVLQ(serialized)
	list := &CoinList{Coins: make([]bc.Outpoint, 0, count)}
	for i := uint64(0); i < count; i++ {
		if len(serialized)-offset < 33 {
			return nil, errors.WithDetail(ErrCorrupt, "truncated coin list")
		}
		var b32 [32]byte
		copy(b32[:], serialized[offset:offset+32])
		offset += 32
		index, read := storage.DeserializeVLQ(serialized[offset:])
		offset += read
		list.Coins = append(list.Coins, bc.NewOutpoint(bc.NewHash(b32), index))
	}
	return list, nil
}

// CoinListDB is the address reverse index: it interprets the dirty-entry
// stream the coin view flushes and keeps, per script-derived address, the
// outpoints that address currently owns. The index is advisory; structural
// script problems are skipped, never fatal.
type CoinListDB struct {
	db        dbm.DB
	cache     map[[20]byte]*CoinList
	batchSize int
}

// NewCoinListDB builds the index over the chainstate database handle.
func NewCoinListDB(db dbm.DB, batchSize int) *CoinListDB {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CoinListDB{
		db:        db,
		cache:     make(map[[20]byte]*CoinList),
		batchSize: batchSize,
	}
}

// coinDest resolves the address key a coin files under. Spent cache
// entries have their payload cleared, so the durable record is consulted
// for the script.
func (l *CoinListDB) coinDest(outpoint bc.Outpoint, coin *storage.Coin) (script.Destination, bool) {
	src := coin
	if coin.Spent {
		dbCoin, err := getCoin(l.db, outpoint)
		if err != nil || dbCoin == nil {
			return script.Destination{}, false
		}
		src = dbCoin
	}

	dest, ok := script.ExtractDestination(src.Script)
	if !ok || dest.Kind == script.DestScriptHash {
		return script.Destination{}, false
	}
	return dest, true
}

func (l *CoinListDB) getList(addr [20]byte) *CoinList {
	if list, ok := l.cache[addr]; ok {
		return list
	}

	list := &CoinList{}
	if data := l.db.Get(CalcCoinListKey(addr)); data != nil {
		loaded, err := deserializeCoinList(data)
		if err == nil {
			list = loaded
		} else {
			log.WithFields(log.Fields{
				"module": logModule,
				"error":  err,
			}).Warning("dropping unreadable coin list")
		}
	}
	l.cache[addr] = list
	return list
}

// ImportCoins folds one dirty map into the per-address lists. It must run
// before the coin view drains the same map.
func (l *CoinListDB) ImportCoins(coins state.CoinsMap) {
	for outpoint, entry := range coins {
		if entry.Flags&state.CoinEntryDirty == 0 {
			continue
		}

		dest, ok := l.coinDest(outpoint, entry.Coin)
		if !ok {
			continue
		}

		list := l.getList(dest.Hash)
		if entry.Coin.Spent {
			for i, op := range list.Coins {
				if op == outpoint {
					list.Coins = append(list.Coins[:i], list.Coins[i+1:]...)
					break
				}
			}
			continue
		}

		got := false
		for _, op := range list.Coins {
			if op == outpoint {
				// crash replay can present the same create twice
				got = true
				log.WithFields(log.Fields{
					"module":   logModule,
					"outpoint": outpoint.String(),
				}).Warning("coin list re-add of known outpoint")
				break
			}
		}
		if !got {
			list.Coins = append(list.Coins, outpoint)
		}
	}
}

// Flush writes every touched list and empties the cache so memory stays
// bounded by one commit's working set.
func (l *CoinListDB) Flush() error {
	batch := l.db.NewBatch()
	totalCoins := 0

	for addr, list := range l.cache {
		totalCoins += len(list.Coins)
		batch.Set(CalcCoinListKey(addr), serializeCoinList(list))

		if batch.SizeEstimate() > l.batchSize {
			log.WithFields(log.Fields{
				"module": logModule,
				"size":   batch.SizeEstimate(),
			}).Debug("writing partial coin-list batch")
			if err := batch.Write(); err != nil {
				return errors.Wrap(err, "writing partial coin-list batch")
			}
			batch.Clear()
		}
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "writing final coin-list batch")
	}

	log.WithFields(log.Fields{
		"module":    logModule,
		"addresses": len(l.cache),
		"coins":     totalCoins,
	}).Debug("committed coin lists")

	l.cache = make(map[[20]byte]*CoinList)
	return nil
}

// GetList returns the outpoints owned by addr: the in-flight cached list
// if the address was touched this commit, otherwise a fresh read.
func (l *CoinListDB) GetList(addr [20]byte) (*CoinList, error) {
	if list, ok := l.cache[addr]; ok {
		return list, nil
	}

	data := l.db.Get(CalcCoinListKey(addr))
	if data == nil {
		return &CoinList{}, nil
	}
	return deserializeCoinList(data)
}
