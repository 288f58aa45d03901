package state

import (
	"testing"

	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/protocol/bc"
)

// memCoinsView is a map-backed leaf view for cache tests.
type memCoinsView struct {
	coins map[bc.Outpoint]*storage.Coin
	best  bc.Hash
}

func newMemCoinsView() *memCoinsView {
	return &memCoinsView{coins: make(map[bc.Outpoint]*storage.Coin)}
}

func (v *memCoinsView) GetCoin(outpoint bc.Outpoint) (*storage.Coin, error) {
	coin, ok := v.coins[outpoint]
	if !ok {
		return nil, nil
	}
	clone := *coin
	return &clone, nil
}

func (v *memCoinsView) HaveCoin(outpoint bc.Outpoint) bool {
	_, ok := v.coins[outpoint]
	return ok
}

func (v *memCoinsView) GetBestBlock() bc.Hash { return v.best }

func (v *memCoinsView) GetHeadBlocks() []bc.Hash { return nil }

func (v *memCoinsView) BatchWrite(coins CoinsMap, hashBlock *bc.Hash) error {
	for outpoint, entry := range coins {
		if entry.Flags&CoinEntryDirty != 0 {
			if entry.Coin.Spent {
				delete(v.coins, outpoint)
			} else {
				clone := *entry.Coin
				v.coins[outpoint] = &clone
			}
		}
		delete(coins, outpoint)
	}
	if hashBlock != nil {
		v.best = *hashBlock
	}
	return nil
}

func (v *memCoinsView) Cursor() CoinsCursor { return nil }

func (v *memCoinsView) EstimateSize() uint64 { return 0 }

func testOutpoint(n uint64) bc.Outpoint {
	return bc.NewOutpoint(bc.Hash{V0: n}, 0)
}

func p2pkhScript() []byte {
	script := []byte{0x76, 0xa9, 0x14}
	script = append(script, make([]byte, 20)...)
	return append(script, 0x88, 0xac)
}

func TestAddSpendFresh(t *testing.T) {
	base := newMemCoinsView()
	view := NewCoinsViewCache(base)
	op := testOutpoint(1)

	if err := view.AddCoin(op, storage.NewCoin(100, p2pkhScript(), 1, false), false); err != nil {
		t.Fatal(err)
	}

	entry := view.entries[op]
	if entry.Flags != CoinEntryDirty|CoinEntryFresh {
		t.Fatalf("new coin flags = %b want DIRTY|FRESH", entry.Flags)
	}

	// spending a FRESH coin erases the entry outright
	if _, ok := view.SpendCoin(op); !ok {
		t.Fatal("spend of cached coin failed")
	}
	if _, ok := view.entries[op]; ok {
		t.Fatal("FRESH entry should be erased on spend, not tombstoned")
	}

	// nothing must reach the base on flush
	tip := bc.Hash{V0: 0xaa}
	view.SetBestBlock(tip)
	if err := view.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(base.coins) != 0 {
		t.Fatalf("base got %d coins want 0", len(base.coins))
	}
}

func TestSpendFromBase(t *testing.T) {
	base := newMemCoinsView()
	op := testOutpoint(1)
	base.coins[op] = storage.NewCoin(50, p2pkhScript(), 3, false)

	view := NewCoinsViewCache(base)

	coin, err := view.GetCoin(op)
	if err != nil || coin == nil {
		t.Fatalf("GetCoin = %v, %v", coin, err)
	}
	if view.entries[op].Flags != 0 {
		t.Fatal("memoized read must not be DIRTY or FRESH")
	}

	spent, ok := view.SpendCoin(op)
	if !ok || spent.Amount != 50 {
		t.Fatalf("SpendCoin = %+v, %v", spent, ok)
	}
	entry := view.entries[op]
	if entry.Flags&CoinEntryDirty == 0 || entry.Flags&CoinEntryFresh != 0 {
		t.Fatalf("spend of base coin flags = %b want DIRTY only", entry.Flags)
	}
	if !entry.Coin.Spent {
		t.Fatal("entry should be a tombstone")
	}

	tip := bc.Hash{V0: 0xbb}
	view.SetBestBlock(tip)
	if err := view.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, ok := base.coins[op]; ok {
		t.Fatal("tombstone should delete the base coin")
	}
	if base.best != tip {
		t.Fatal("flush did not carry the tip")
	}
}

func TestOverwriteRejected(t *testing.T) {
	base := newMemCoinsView()
	view := NewCoinsViewCache(base)
	op := testOutpoint(1)

	if err := view.AddCoin(op, storage.NewCoin(1, p2pkhScript(), 1, false), false); err != nil {
		t.Fatal(err)
	}
	if err := view.AddCoin(op, storage.NewCoin(2, p2pkhScript(), 2, false), false); err == nil {
		t.Fatal("overwriting a live coin must fail without the overwrite flag")
	}
	if err := view.AddCoin(op, storage.NewCoin(2, p2pkhScript(), 2, true), true); err != nil {
		t.Fatalf("possibleOverwrite add failed: %v", err)
	}
}

func TestLayeredBatchWrite(t *testing.T) {
	base := newMemCoinsView()
	bottom := NewCoinsViewCache(base)
	top := NewCoinsViewCache(bottom)

	opA, opB := testOutpoint(1), testOutpoint(2)

	// created and spent inside the top layer: must vanish entirely
	if err := top.AddCoin(opA, storage.NewCoin(10, p2pkhScript(), 5, false), false); err != nil {
		t.Fatal(err)
	}
	top.SpendCoin(opA)

	if err := top.AddCoin(opB, storage.NewCoin(20, p2pkhScript(), 5, false), false); err != nil {
		t.Fatal(err)
	}

	tip := bc.Hash{V0: 0xcc}
	top.SetBestBlock(tip)
	if err := top.Flush(); err != nil {
		t.Fatal(err)
	}

	if bottom.HaveCoinInCache(opA) {
		t.Fatal("create+spend leaked into the lower layer")
	}
	if !bottom.HaveCoin(opB) {
		t.Fatal("created coin did not reach the lower layer")
	}
	entry := bottom.entries[opB]
	if entry.Flags&CoinEntryFresh == 0 {
		t.Fatal("coin unknown to the leaf must stay FRESH in the lower layer")
	}

	bottom.SetBestBlock(tip)
	if err := bottom.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, ok := base.coins[opB]; !ok {
		t.Fatal("coin did not reach the leaf")
	}
}

func TestUncache(t *testing.T) {
	base := newMemCoinsView()
	op := testOutpoint(1)
	base.coins[op] = storage.NewCoin(5, p2pkhScript(), 1, false)

	view := NewCoinsViewCache(base)
	if _, err := view.GetCoin(op); err != nil {
		t.Fatal(err)
	}
	if view.CacheSize() != 1 {
		t.Fatal("read did not memoize")
	}

	view.Uncache(op)
	if view.CacheSize() != 0 {
		t.Fatal("clean entry not dropped")
	}

	// dirty entries must survive Uncache
	view.SpendCoin(op)
	view.Uncache(op)
	if view.CacheSize() != 1 {
		t.Fatal("dirty entry dropped by Uncache")
	}
}

func TestUnspendableNotAdded(t *testing.T) {
	view := NewCoinsViewCache(newMemCoinsView())
	op := testOutpoint(1)
	if err := view.AddCoin(op, storage.NewCoin(1, []byte{0x6a}, 1, false), false); err != nil {
		t.Fatal(err)
	}
	if view.CacheSize() != 0 {
		t.Fatal("op-return output must not enter the coin set")
	}
}
