package database

import (
	"testing"

	dbm "github.com/magnachain/magnachain/database/leveldb"
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/protocol/state"
	"github.com/magnachain/magnachain/testutil"
)

func testScript(fill byte) []byte {
	script := []byte{0x76, 0xa9, 0x14}
	for i := 0; i < 20; i++ {
		script = append(script, fill)
	}
	return append(script, 0x88, 0xac)
}

func dirtyEntry(coin *storage.Coin, fresh bool) *state.CoinsCacheEntry {
	flags := state.CoinEntryDirty
	if fresh {
		flags |= state.CoinEntryFresh
	}
	return &state.CoinsCacheEntry{Coin: coin, Flags: flags}
}

func spentEntry() *state.CoinsCacheEntry {
	coin := &storage.Coin{}
	coin.Clear()
	return &state.CoinsCacheEntry{Coin: coin, Flags: state.CoinEntryDirty}
}

func TestBatchWriteGenesis(t *testing.T) {
	db := dbm.NewMemDB()
	coinDB := NewCoinDB(db, nil, 0, 0)

	genesis := testutil.MustDecodeHash("1100000000000000000000000000000000000000000000000000000000000000")
	op := bc.NewOutpoint(genesis, 0)
	coins := state.CoinsMap{
		op: dirtyEntry(storage.NewCoin(50, testScript(0x01), 0, true), true),
	}

	tipG := bc.Hash{V0: 0x61}
	if err := coinDB.BatchWrite(coins, &tipG); err != nil {
		t.Fatal(err)
	}

	if got := coinDB.GetBestBlock(); got != tipG {
		t.Fatalf("best block = %s want %s", got.String(), tipG.String())
	}
	if heads := coinDB.GetHeadBlocks(); heads != nil {
		t.Fatalf("head blocks = %v want absent", heads)
	}

	coin, err := coinDB.GetCoin(op)
	if err != nil || coin == nil {
		t.Fatalf("GetCoin = %v, %v", coin, err)
	}
	if coin.Amount != 50 || coin.BlockHeight != 0 || !coin.IsCoinBase {
		t.Fatalf("coin = %+v", coin)
	}
	if !coinDB.HaveCoin(op) {
		t.Fatal("HaveCoin = false for live coin")
	}
	if len(coins) != 0 {
		t.Fatal("BatchWrite must consume the dirty map")
	}
}

func TestBatchWriteSpendAndReAdd(t *testing.T) {
	db := dbm.NewMemDB()
	coinDB := NewCoinDB(db, nil, 0, 0)

	op1 := bc.NewOutpoint(bc.Hash{V0: 0x11}, 0)
	op2 := bc.NewOutpoint(bc.Hash{V0: 0x22}, 0)

	tipG := bc.Hash{V0: 0x61}
	coins := state.CoinsMap{op1: dirtyEntry(storage.NewCoin(50, testScript(0x01), 0, true), true)}
	if err := coinDB.BatchWrite(coins, &tipG); err != nil {
		t.Fatal(err)
	}

	tipB1 := bc.Hash{V0: 0x62}
	coins = state.CoinsMap{
		op1: spentEntry(),
		op2: dirtyEntry(storage.NewCoin(50, testScript(0x01), 1, false), true),
	}
	if err := coinDB.BatchWrite(coins, &tipB1); err != nil {
		t.Fatal(err)
	}

	if coin, _ := coinDB.GetCoin(op1); coin != nil {
		t.Fatal("spent coin still present")
	}
	if coin, _ := coinDB.GetCoin(op2); coin == nil {
		t.Fatal("created coin missing")
	}
	if got := coinDB.GetBestBlock(); got != tipB1 {
		t.Fatalf("best block = %s want %s", got.String(), tipB1.String())
	}
}

func TestBatchWritePartialFlush(t *testing.T) {
	db := dbm.NewMemDB()
	// batch threshold of one byte forces a partial flush per entry
	coinDB := NewCoinDB(db, nil, 1, 0)

	coins := state.CoinsMap{}
	for i := uint64(1); i <= 64; i++ {
		op := bc.NewOutpoint(bc.Hash{V0: i}, i)
		coins[op] = dirtyEntry(storage.NewCoin(int64(i), testScript(byte(i)), i, false), true)
	}

	tip := bc.Hash{V0: 0x70}
	if err := coinDB.BatchWrite(coins, &tip); err != nil {
		t.Fatal(err)
	}

	for i := uint64(1); i <= 64; i++ {
		op := bc.NewOutpoint(bc.Hash{V0: i}, i)
		if coin, _ := coinDB.GetCoin(op); coin == nil || coin.Amount != int64(i) {
			t.Fatalf("coin %d missing or wrong after chunked commit: %+v", i, coin)
		}
	}
	if got := coinDB.GetBestBlock(); got != tip {
		t.Fatal("tip not consistent after chunked commit")
	}
}

func TestRecoveryFromTransitionMarker(t *testing.T) {
	db := dbm.NewMemDB()
	coinDB := NewCoinDB(db, nil, 0, 0)

	oldTip := bc.Hash{V0: 1}
	target := bc.Hash{V0: 2}

	// a crash mid-commit leaves the transitional form on disk
	db.Delete(bestBlockKey())
	db.Set(headBlocksKey(), serializeHashes([]bc.Hash{target, oldTip}))

	if got := coinDB.GetBestBlock(); !got.IsZero() {
		t.Fatalf("best block = %s want unset in transitional state", got.String())
	}
	heads := coinDB.GetHeadBlocks()
	if len(heads) != 2 || heads[0] != target || heads[1] != oldTip {
		t.Fatalf("head blocks = %v want [target, oldTip]", heads)
	}

	// the caller replays toward the same target; the retried commit must
	// adopt oldTip from the marker and land cleanly
	op := bc.NewOutpoint(bc.Hash{V0: 0x33}, 0)
	coins := state.CoinsMap{op: dirtyEntry(storage.NewCoin(7, testScript(0x03), 2, false), true)}
	if err := coinDB.BatchWrite(coins, &target); err != nil {
		t.Fatal(err)
	}

	if got := coinDB.GetBestBlock(); got != target {
		t.Fatalf("best block = %s want target", got.String())
	}
	if coinDB.GetHeadBlocks() != nil {
		t.Fatal("transition marker survived the completed commit")
	}
}

func TestCursorSnapshot(t *testing.T) {
	db := dbm.NewMemDB()
	coinDB := NewCoinDB(db, nil, 0, 0)

	tip := bc.Hash{V0: 0x71}
	coins := state.CoinsMap{}
	want := map[bc.Outpoint]int64{}
	for i := uint64(1); i <= 10; i++ {
		op := bc.NewOutpoint(bc.Hash{V0: i}, i%3)
		coins[op] = dirtyEntry(storage.NewCoin(int64(i), testScript(byte(i)), i, false), true)
		want[op] = int64(i)
	}
	if err := coinDB.BatchWrite(coins, &tip); err != nil {
		t.Fatal(err)
	}

	cursor := coinDB.Cursor()
	defer cursor.Release()

	// a commit after the cursor was opened must not show through
	late := state.CoinsMap{bc.NewOutpoint(bc.Hash{V0: 0x99}, 0): dirtyEntry(storage.NewCoin(99, testScript(0x99), 11, false), true)}
	tip2 := bc.Hash{V0: 0x72}
	if err := coinDB.BatchWrite(late, &tip2); err != nil {
		t.Fatal(err)
	}

	if cursor.GetBestBlock() != tip {
		t.Fatal("cursor best block mismatch")
	}

	got := map[bc.Outpoint]int64{}
	for cursor.Next() {
		op, ok := cursor.Outpoint()
		if !ok {
			t.Fatal("cursor yielded an undecodable key")
		}
		coin, err := cursor.Coin()
		if err != nil {
			t.Fatal(err)
		}
		got[op] = coin.Amount
	}

	if !testutil.DeepEqual(got, want) {
		t.Fatalf("cursor walked %v want %v", got, want)
	}
}

func TestUpgrade(t *testing.T) {
	db := dbm.NewMemDB()
	coinDB := NewCoinDB(db, nil, 0, 0)

	if coinDB.NeedsUpgrade() {
		t.Fatal("fresh database claims to need an upgrade")
	}

	txHash := bc.Hash{V0: 0x51}
	legacy := &storage.LegacyCoins{
		IsCoinBase:  false,
		BlockHeight: 12,
		Outputs: []*storage.LegacyTxOut{
			{Amount: 100, Script: testScript(0x01)},
			nil,
			{Amount: 300, Script: testScript(0x03)},
			{Amount: 0, Script: []byte{0x6a}}, // unspendable, must be dropped
		},
	}
	key := append([]byte{dbCoins}, txHash.Bytes()...)
	db.Set(key, storage.SerializeLegacyCoins(legacy))

	if !coinDB.NeedsUpgrade() {
		t.Fatal("legacy record not detected")
	}

	var percents []int
	if err := coinDB.Upgrade(nil, func(p int) { percents = append(percents, p) }); err != nil {
		t.Fatal(err)
	}

	if coinDB.NeedsUpgrade() {
		t.Fatal("legacy records survived the upgrade")
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress reports = %v want trailing 100", percents)
	}

	for _, c := range []struct {
		index  uint64
		amount int64
		exists bool
	}{
		{0, 100, true},
		{1, 0, false},
		{2, 300, true},
		{3, 0, false},
	} {
		coin, err := coinDB.GetCoin(bc.NewOutpoint(txHash, c.index))
		if err != nil {
			t.Fatal(err)
		}
		if c.exists != (coin != nil) {
			t.Fatalf("output %d: exists = %v want %v", c.index, coin != nil, c.exists)
		}
		if coin != nil {
			if coin.Amount != c.amount || coin.BlockHeight != 12 {
				t.Fatalf("output %d: coin = %+v", c.index, coin)
			}
		}
	}
}

func TestUpgradeInterrupted(t *testing.T) {
	db := dbm.NewMemDB()
	coinDB := NewCoinDB(db, nil, 0, 0)

	for i := uint64(1); i <= 4; i++ {
		txHash := bc.Hash{V0: i}
		legacy := &storage.LegacyCoins{
			BlockHeight: i,
			Outputs:     []*storage.LegacyTxOut{{Amount: int64(i), Script: testScript(byte(i))}},
		}
		db.Set(append([]byte{dbCoins}, txHash.Bytes()...), storage.SerializeLegacyCoins(legacy))
	}

	err := coinDB.Upgrade(func() bool { return true }, nil)
	if errors.Root(err) != ErrInterrupted {
		t.Fatalf("err = %v want ErrInterrupted", err)
	}

	// the pass is idempotent, a resumed run finishes the job
	if err := coinDB.Upgrade(nil, nil); err != nil {
		t.Fatal(err)
	}
	if coinDB.NeedsUpgrade() {
		t.Fatal("upgrade did not resume to completion")
	}
}
