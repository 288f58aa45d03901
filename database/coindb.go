package database

import (
	"math/rand"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/tendermint/tmlibs/common"

	dbm "github.com/magnachain/magnachain/database/leveldb"
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/protocol/state"
	"github.com/magnachain/magnachain/script"
)

const logModule = "leveldb"

// DefaultBatchSize is the partial-flush threshold of a durable commit.
const DefaultBatchSize = 16 << 20

const upgradeBatchSize = 1 << 24

var _ state.CoinsView = (*CoinDB)(nil)

// CoinDB is the durable leaf of the coin-view stack: every live coin as an
// individual per-txout record, plus the tip marker pair that makes the
// commit protocol crash-recoverable.
type CoinDB struct {
	db dbm.DB

	// listDB, when set, is flushed inside BatchWrite between the coin
	// stream and the final consistency marker.
	listDB *CoinListDB

	batchSize  int
	crashRatio int
}

// NewCoinDB wraps the chainstate database. listDB may be nil when the
// address index is disabled.
func NewCoinDB(db dbm.DB, listDB *CoinListDB, batchSize, crashRatio int) *CoinDB {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CoinDB{
		db:         db,
		listDB:     listDB,
		batchSize:  batchSize,
		crashRatio: crashRatio,
	}
}

func getCoin(db dbm.DB, outpoint bc.Outpoint) (*storage.Coin, error) {
	data := db.Get(CalcCoinKey(&outpoint))
	if data == nil {
		return nil, nil
	}

	coin, err := storage.DeserializeCoin(data)
	if err != nil {
		return nil, errors.Sub(ErrCorrupt, err)
	}
	return coin, nil
}

// GetCoin returns the coin at outpoint, or nil if absent.
func (c *CoinDB) GetCoin(outpoint bc.Outpoint) (*storage.Coin, error) {
	return getCoin(c.db, outpoint)
}

// HaveCoin reports whether a coin record exists at outpoint.
func (c *CoinDB) HaveCoin(outpoint bc.Outpoint) bool {
	return c.db.Exists(CalcCoinKey(&outpoint))
}

// GetBestBlock returns the tip the database is consistent with, or the
// zero hash while a transition marker is present.
func (c *CoinDB) GetBestBlock() bc.Hash {
	data := c.db.Get(bestBlockKey())
	if data == nil {
		return bc.Hash{}
	}
	if len(data) != 32 {
		common.PanicCrisis(common.Fmt("malformed best-block record: %X", data))
	}

	var b32 [32]byte
	copy(b32[:], data)
	return bc.NewHash(b32)
}

// GetHeadBlocks returns the transition marker [target, previous], or nil
// when the database is in its consistent form.
func (c *CoinDB) GetHeadBlocks() []bc.Hash {
	data := c.db.Get(headBlocksKey())
	if data == nil {
		return nil
	}
	if len(data)%32 != 0 {
		common.PanicCrisis(common.Fmt("malformed head-blocks record: %X", data))
	}

	hashes := make([]bc.Hash, 0, len(data)/32)
	for off := 0; off < len(data); off += 32 {
		var b32 [32]byte
		copy(b32[:], data[off:off+32])
		hashes = append(hashes, bc.NewHash(b32))
	}
	return hashes
}

func serializeHashes(hashes []bc.Hash) []byte {
	out := make([]byte, 0, len(hashes)*32)
	for _, h := range hashes {
		out = append(out, h.Bytes()...)
	}
	return out
}

// WriteTransitionMarker durably flags an in-progress transition to
// hashBlock before any dependent store writes data for the new tip. The
// same marker is re-asserted by BatchWrite's first batch; writing it here
// first extends the guard over stores living in other databases.
func (c *CoinDB) WriteTransitionMarker(hashBlock *bc.Hash) error {
	if hashBlock.IsZero() {
		common.PanicCrisis("transition marker with null tip hash")
	}

	oldTip := c.GetBestBlock()
	if oldTip.IsZero() {
		if oldHeads := c.GetHeadBlocks(); len(oldHeads) == 2 {
			if oldHeads[0] != *hashBlock {
				common.PanicCrisis(common.Fmt("transition to %s in progress, cannot commit %s",
					oldHeads[0].String(), hashBlock.String()))
			}
			oldTip = oldHeads[1]
		}
	}

	batch := c.db.NewBatch()
	batch.Delete(bestBlockKey())
	batch.Set(headBlocksKey(), serializeHashes([]bc.Hash{*hashBlock, oldTip}))
	if err := batch.WriteSync(); err != nil {
		return errors.Wrap(err, "writing transition marker")
	}
	return nil
}

// BatchWrite is the durable commit: it drains the dirty map into coin
// records under the head-blocks transition marker, so that a crash at any
// point leaves either the old tip or a recoverable in-between state.
func (c *CoinDB) BatchWrite(coins state.CoinsMap, hashBlock *bc.Hash) error {
	if hashBlock.IsZero() {
		common.PanicCrisis("coin batch write with null tip hash")
	}

	oldTip := c.GetBestBlock()
	if oldTip.IsZero() {
		// We may be in the middle of replaying a prior interrupted
		// commit toward the same target.
		if oldHeads := c.GetHeadBlocks(); len(oldHeads) == 2 {
			if oldHeads[0] != *hashBlock {
				common.PanicCrisis(common.Fmt("transition to %s in progress, cannot commit %s",
					oldHeads[0].String(), hashBlock.String()))
			}
			oldTip = oldHeads[1]
		}
	}

	// In the first batch, mark the database as being in the middle of a
	// transition from oldTip to hashBlock. A vector is used for future
	// extensibility, to support interrupting after partial writes from
	// multiple independent reorgs.
	batch := c.db.NewBatch()
	batch.Delete(bestBlockKey())
	batch.Set(headBlocksKey(), serializeHashes([]bc.Hash{*hashBlock, oldTip}))

	count := 0
	changed := 0
	for outpoint, entry := range coins {
		if entry.Flags&state.CoinEntryDirty != 0 {
			key := CalcCoinKey(&outpoint)
			if entry.Coin.Spent {
				batch.Delete(key)
			} else {
				batch.Set(key, storage.SerializeCoin(entry.Coin))
			}
			changed++
		}
		count++
		delete(coins, outpoint)

		if batch.SizeEstimate() > c.batchSize {
			log.WithFields(log.Fields{
				"module": logModule,
				"size":   batch.SizeEstimate(),
			}).Debug("writing partial coin batch")
			if err := batch.Write(); err != nil {
				return errors.Wrap(err, "writing partial coin batch")
			}
			batch.Clear()

			if c.crashRatio > 0 && rand.Intn(c.crashRatio) == 0 {
				log.WithFields(log.Fields{"module": logModule}).Error("simulating a crash")
				os.Exit(0)
			}
		}
	}

	if c.listDB != nil {
		// land the tail of the coin stream before the reverse index
		if err := batch.Write(); err != nil {
			return errors.Wrap(err, "writing partial coin batch")
		}
		batch.Clear()
		if err := c.listDB.Flush(); err != nil {
			return err
		}
	}

	// In the last batch, mark the database as consistent with hashBlock
	// again.
	batch.Delete(headBlocksKey())
	batch.Set(bestBlockKey(), hashBlock.Bytes())
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "writing final coin batch")
	}

	log.WithFields(log.Fields{
		"module":  logModule,
		"changed": changed,
		"count":   count,
		"tip":     hashBlock.String(),
	}).Debug("committed coin database")
	return nil
}

// EstimateSize approximates the on-disk footprint of the coin records.
func (c *CoinDB) EstimateSize() uint64 {
	return c.db.EstimateSize([]byte{dbCoin}, []byte{dbCoin + 1})
}

// Cursor iterates every coin record in key order against a database
// snapshot, so it holds no lock against concurrent commits.
func (c *CoinDB) Cursor() state.CoinsCursor {
	return &coinDBCursor{
		iter: c.db.IteratorPrefix([]byte{dbCoin}),
		best: c.GetBestBlock(),
	}
}

type coinDBCursor struct {
	iter dbm.Iterator
	best bc.Hash
}

func (cur *coinDBCursor) Next() bool { return cur.iter.Next() }

func (cur *coinDBCursor) Outpoint() (bc.Outpoint, bool) {
	return decodeCoinKey(cur.iter.Key())
}

func (cur *coinDBCursor) Coin() (*storage.Coin, error) {
	coin, err := storage.DeserializeCoin(cur.iter.Value())
	if err != nil {
		return nil, errors.Sub(ErrCorrupt, err)
	}
	return coin, nil
}

func (cur *coinDBCursor) GetBestBlock() bc.Hash { return cur.best }

func (cur *coinDBCursor) Release() { cur.iter.Release() }

// NeedsUpgrade reports whether legacy per-tx coin records remain.
func (c *CoinDB) NeedsUpgrade() bool {
	iter := c.db.IteratorPrefix([]byte{dbCoins})
	defer iter.Release()
	return iter.Next()
}

// Upgrade converts legacy per-tx records to per-txout form. The pass is
// idempotent and may be interrupted; completed work is durable and the
// pass resumes where it left off on the next start. progress receives
// whole percentage points.
func (c *CoinDB) Upgrade(interrupt func() bool, progress func(percent int)) error {
	iter := c.db.IteratorPrefix([]byte{dbCoins})
	defer iter.Release()

	log.WithFields(log.Fields{"module": logModule}).Info("upgrading coin database to per-txout format")

	batch := c.db.NewBatch()
	prevKey := []byte{dbCoins}
	count := 0
	reported := -1

	for iter.Next() {
		if interrupt != nil && interrupt() {
			if err := batch.Write(); err != nil {
				return errors.Wrap(err, "writing upgrade batch")
			}
			log.WithFields(log.Fields{"module": logModule}).Info("coin database upgrade cancelled")
			return ErrInterrupted
		}

		key := iter.Key()
		if len(key) != 33 {
			return errors.WithDetailf(ErrCorrupt, "legacy coin key of length %d", len(key))
		}

		if count%256 == 0 {
			// progress follows the position of the tx-hash keyspace
			high := int(key[1])<<8 | int(key[2])
			percent := (high*100 + 32768) / 65536
			if progress != nil && percent != reported {
				progress(percent)
				reported = percent
			}
		}
		count++

		legacy, err := storage.DeserializeLegacyCoins(iter.Value())
		if err != nil {
			return errors.Sub(ErrCorrupt, err)
		}

		var b32 [32]byte
		copy(b32[:], key[1:])
		txHash := bc.NewHash(b32)

		for i, out := range legacy.Outputs {
			if out == nil || script.IsUnspendable(out.Script) {
				continue
			}
			outpoint := bc.NewOutpoint(txHash, uint64(i))
			coin := storage.NewCoin(out.Amount, out.Script, legacy.BlockHeight, legacy.IsCoinBase)
			batch.Set(CalcCoinKey(&outpoint), storage.SerializeCoin(coin))
		}
		batch.Delete(key)

		if batch.SizeEstimate() > upgradeBatchSize {
			if err := batch.Write(); err != nil {
				return errors.Wrap(err, "writing upgrade batch")
			}
			batch.Clear()
			c.db.CompactRange(prevKey, key)
			prevKey = append([]byte(nil), key...)
		}
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "writing upgrade batch")
	}
	c.db.CompactRange([]byte{dbCoins}, []byte{dbCoins + 1})

	if progress != nil {
		progress(100)
	}
	log.WithFields(log.Fields{
		"module":  logModule,
		"records": count,
	}).Info("coin database upgrade done")
	return nil
}
