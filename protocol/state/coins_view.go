package state

import (
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/script"
)

// Cache entry flags.
const (
	// CoinEntryDirty means the entry differs from the parent view and a
	// write is owed downward.
	CoinEntryDirty uint8 = 1 << iota
	// CoinEntryFresh means the entry is known to be absent from every
	// lower view, so a spend can erase it outright instead of writing a
	// tombstone down.
	CoinEntryFresh
)

// CoinsCacheEntry is a coin plus its cache bookkeeping flags.
type CoinsCacheEntry struct {
	Coin  *storage.Coin
	Flags uint8
}

// CoinsMap is the dirty-entry stream a cache flushes to its parent.
type CoinsMap map[bc.Outpoint]*CoinsCacheEntry

// CoinsCursor iterates every live coin of a view in key order, reflecting a
// snapshot as of cursor creation.
type CoinsCursor interface {
	Next() bool
	Outpoint() (bc.Outpoint, bool)
	Coin() (*storage.Coin, error)
	GetBestBlock() bc.Hash
	Release()
}

// CoinsView is one layer of the coin-state stack.
type CoinsView interface {
	// GetCoin returns the coin at outpoint, or nil if the view holds no
	// live coin there.
	GetCoin(outpoint bc.Outpoint) (*storage.Coin, error)
	HaveCoin(outpoint bc.Outpoint) bool
	GetBestBlock() bc.Hash
	GetHeadBlocks() []bc.Hash
	BatchWrite(coins CoinsMap, hashBlock *bc.Hash) error
	Cursor() CoinsCursor
	EstimateSize() uint64
}

// CoinsViewBacked forwards every operation to a base view. Embed it to
// override a subset.
type CoinsViewBacked struct {
	Base CoinsView
}

func (v *CoinsViewBacked) GetCoin(outpoint bc.Outpoint) (*storage.Coin, error) {
	return v.Base.GetCoin(outpoint)
}

func (v *CoinsViewBacked) HaveCoin(outpoint bc.Outpoint) bool {
	return v.Base.HaveCoin(outpoint)
}

func (v *CoinsViewBacked) GetBestBlock() bc.Hash { return v.Base.GetBestBlock() }

func (v *CoinsViewBacked) GetHeadBlocks() []bc.Hash { return v.Base.GetHeadBlocks() }

func (v *CoinsViewBacked) BatchWrite(coins CoinsMap, hashBlock *bc.Hash) error {
	return v.Base.BatchWrite(coins, hashBlock)
}

func (v *CoinsViewBacked) Cursor() CoinsCursor { return v.Base.Cursor() }

func (v *CoinsViewBacked) EstimateSize() uint64 { return v.Base.EstimateSize() }

var (
	// ErrOverwriteCoin is returned when a coin is added on top of a live
	// entry without the overwrite flag (only legitimate for historic
	// duplicate-coinbase replays).
	ErrOverwriteCoin = errors.New("adding new coin that replaces live entry")
	errFreshMisuse   = errors.New("FRESH flag misapplied to coin that exists in parent view")
)

var _ CoinsView = (*CoinsViewCache)(nil)

// CoinsViewCache is an in-memory layer over a parent CoinsView. Reads miss
// to the parent and memoize; writes accumulate with dirty/fresh tracking
// until Flush pushes them down one level.
//
// The cache is not internally synchronized. One mutator at a time; readers
// that need isolation use Cursor on the durable leaf.
type CoinsViewCache struct {
	base             CoinsView
	entries          CoinsMap
	hashBlock        bc.Hash
	cachedCoinsUsage uint64
}

// NewCoinsViewCache creates an empty cache over base.
func NewCoinsViewCache(base CoinsView) *CoinsViewCache {
	return &CoinsViewCache{
		base:    base,
		entries: make(CoinsMap),
	}
}

func (v *CoinsViewCache) fetchCoin(outpoint bc.Outpoint) (*CoinsCacheEntry, error) {
	if entry, ok := v.entries[outpoint]; ok {
		return entry, nil
	}

	coin, err := v.base.GetCoin(outpoint)
	if err != nil {
		return nil, err
	}
	if coin == nil {
		return nil, nil
	}

	entry := &CoinsCacheEntry{Coin: coin}
	if coin.Spent {
		entry.Flags |= CoinEntryFresh
	}
	v.entries[outpoint] = entry
	v.cachedCoinsUsage += coin.DynamicMemoryUsage()
	return entry, nil
}

// GetCoin returns the live coin at outpoint or nil.
func (v *CoinsViewCache) GetCoin(outpoint bc.Outpoint) (*storage.Coin, error) {
	entry, err := v.fetchCoin(outpoint)
	if err != nil || entry == nil || entry.Coin.Spent {
		return nil, err
	}
	return entry.Coin, nil
}

// HaveCoin reports whether a live coin exists at outpoint in this view or
// any parent.
func (v *CoinsViewCache) HaveCoin(outpoint bc.Outpoint) bool {
	entry, err := v.fetchCoin(outpoint)
	return err == nil && entry != nil && !entry.Coin.Spent
}

// HaveCoinInCache reports cache residency without descending to the parent.
func (v *CoinsViewCache) HaveCoinInCache(outpoint bc.Outpoint) bool {
	entry, ok := v.entries[outpoint]
	return ok && !entry.Coin.Spent
}

// GetBestBlock returns the tip this view's state corresponds to.
func (v *CoinsViewCache) GetBestBlock() bc.Hash {
	if v.hashBlock.IsZero() {
		v.hashBlock = v.base.GetBestBlock()
	}
	return v.hashBlock
}

// SetBestBlock records the tip the accumulated mutations correspond to.
func (v *CoinsViewCache) SetBestBlock(hash bc.Hash) {
	v.hashBlock = hash
}

// GetHeadBlocks proxies the transitional marker of the durable leaf.
func (v *CoinsViewCache) GetHeadBlocks() []bc.Hash {
	return v.base.GetHeadBlocks()
}

// AddCoin inserts a coin created at outpoint. possibleOverwrite tolerates
// the historic duplicate-coinbase case; otherwise adding on top of a live
// coin is a caller bug.
func (v *CoinsViewCache) AddCoin(outpoint bc.Outpoint, coin *storage.Coin, possibleOverwrite bool) error {
	if coin.Spent {
		return errors.New("adding spent coin")
	}
	if script.IsUnspendable(coin.Script) {
		return nil
	}

	entry, ok := v.entries[outpoint]
	if !ok {
		entry = &CoinsCacheEntry{Coin: &storage.Coin{Spent: true}}
		v.entries[outpoint] = entry
	} else {
		v.cachedCoinsUsage -= entry.Coin.DynamicMemoryUsage()
	}

	fresh := false
	if !possibleOverwrite {
		if !entry.Coin.Spent {
			return errors.Wrap(ErrOverwriteCoin, outpoint.String())
		}
		// A spent entry that is not dirty cannot exist below us, so the
		// new coin may be erased outright if it is spent again before
		// the next flush.
		fresh = entry.Flags&CoinEntryDirty == 0
	}

	entry.Coin = coin
	entry.Flags |= CoinEntryDirty
	if fresh {
		entry.Flags |= CoinEntryFresh
	}
	v.cachedCoinsUsage += coin.DynamicMemoryUsage()
	return nil
}

// SpendCoin removes the coin at outpoint, returning a copy of it. A FRESH
// entry is erased outright; anything else leaves a DIRTY tombstone for the
// parent.
func (v *CoinsViewCache) SpendCoin(outpoint bc.Outpoint) (*storage.Coin, bool) {
	entry, err := v.fetchCoin(outpoint)
	if err != nil || entry == nil {
		return nil, false
	}

	v.cachedCoinsUsage -= entry.Coin.DynamicMemoryUsage()
	spent := *entry.Coin

	if entry.Flags&CoinEntryFresh != 0 {
		delete(v.entries, outpoint)
	} else {
		entry.Flags |= CoinEntryDirty
		entry.Coin.Clear()
	}
	return &spent, true
}

// BatchWrite merges a child cache's dirty map into this one, consuming the
// child entries as it goes.
func (v *CoinsViewCache) BatchWrite(coins CoinsMap, hashBlock *bc.Hash) error {
	for outpoint, it := range coins {
		delete(coins, outpoint)
		if it.Flags&CoinEntryDirty == 0 {
			continue
		}

		entry, ok := v.entries[outpoint]
		if !ok {
			// A FRESH spent child entry never existed below the child,
			// nothing to record.
			if it.Flags&CoinEntryFresh != 0 && it.Coin.Spent {
				continue
			}
			entry = &CoinsCacheEntry{Coin: it.Coin, Flags: CoinEntryDirty}
			if it.Flags&CoinEntryFresh != 0 {
				entry.Flags |= CoinEntryFresh
			}
			v.entries[outpoint] = entry
			v.cachedCoinsUsage += entry.Coin.DynamicMemoryUsage()
			continue
		}

		if it.Flags&CoinEntryFresh != 0 && !entry.Coin.Spent {
			return errors.Wrap(errFreshMisuse, outpoint.String())
		}

		if entry.Flags&CoinEntryFresh != 0 && it.Coin.Spent {
			// created and spent without ever reaching a lower layer
			v.cachedCoinsUsage -= entry.Coin.DynamicMemoryUsage()
			delete(v.entries, outpoint)
			continue
		}

		v.cachedCoinsUsage -= entry.Coin.DynamicMemoryUsage()
		entry.Coin = it.Coin
		entry.Flags |= CoinEntryDirty
		v.cachedCoinsUsage += entry.Coin.DynamicMemoryUsage()
	}

	if hashBlock != nil {
		v.hashBlock = *hashBlock
	}
	return nil
}

// Flush pushes every dirty entry down one level and empties the cache.
func (v *CoinsViewCache) Flush() error {
	if err := v.base.BatchWrite(v.entries, &v.hashBlock); err != nil {
		return err
	}
	v.entries = make(CoinsMap)
	v.cachedCoinsUsage = 0
	return nil
}

// Uncache drops a clean cache entry to free memory. Dirty entries stay.
func (v *CoinsViewCache) Uncache(outpoint bc.Outpoint) {
	entry, ok := v.entries[outpoint]
	if !ok || entry.Flags != 0 {
		return
	}
	v.cachedCoinsUsage -= entry.Coin.DynamicMemoryUsage()
	delete(v.entries, outpoint)
}

// CacheSize returns the number of resident entries.
func (v *CoinsViewCache) CacheSize() int {
	return len(v.entries)
}

// DynamicMemoryUsage approximates the heap held by resident coins; the
// caller uses it for eviction decisions.
func (v *CoinsViewCache) DynamicMemoryUsage() uint64 {
	return v.cachedCoinsUsage + uint64(len(v.entries))*64
}

// Cursor iterates the durable leaf under this cache.
func (v *CoinsViewCache) Cursor() CoinsCursor { return v.base.Cursor() }

// EstimateSize proxies the durable leaf's size estimate.
func (v *CoinsViewCache) EstimateSize() uint64 { return v.base.EstimateSize() }
