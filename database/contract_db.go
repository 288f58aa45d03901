package database

import (
	"encoding/binary"
	"sync"

	log "github.com/sirupsen/logrus"

	dbm "github.com/magnachain/magnachain/database/leveldb"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/protocol/state"
)

// Contract database key namespaces. The contract store lives in its own
// database directory, separate from the chainstate namespaces.
const (
	dbContractData   byte = 'D'
	dbContractHeight byte = 'h'
)

func calcContractDataKey(id state.ContractID) []byte {
	return append([]byte{dbContractData}, id[:]...)
}

func calcContractHeightKey(id state.ContractID, height uint64) []byte {
	key := make([]byte, 0, 1+20+8)
	key = append(key, dbContractHeight)
	key = append(key, id[:]...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return append(key, buf[:]...)
}

// ErrConflictingGroups reports a block whose caller-supplied transaction
// grouping is not conflict-free: two groups wrote the same contract, so
// parallel execution would not equal sequential execution.
var ErrConflictingGroups = errors.New("contract groups have overlapping write sets")

// VM executes a single contract transaction against a working context.
// One instance is owned by each pool worker; implementations need not be
// safe for concurrent use.
type VM interface {
	Execute(call *ContractCall, ctx *state.ContractContext) error
}

// ContractCall is one contract-invoking transaction as the execution layer
// sees it.
type ContractCall struct {
	TxID     bc.Hash
	Contract state.ContractID
	// Deposit is escrowed into the contract by this transaction,
	// Withdraw is paid out of it. A withdraw that would drive the
	// escrowed balance negative fails the transaction.
	Deposit  int64
	Withdraw int64
}

// BlockContracts is the contract payload of one block. Groups is the
// caller-partitioned transaction grouping: groups run in parallel, calls
// within a group run sequentially in block order.
type BlockContracts struct {
	Hash   bc.Hash
	Height uint64
	Prev   *state.BlockNode
	Groups [][]*ContractCall
}

// heightEntry is one block's reverse delta for a contract at a height.
// Several entries can accumulate at the same height across forks; the last
// committed one is the entry folded into the current data.
type heightEntry struct {
	blockHash bc.Hash
	delta     *state.ContractDelta
}

type heightItem struct {
	height  uint64
	entries []heightEntry
}

func (item *heightItem) active() *heightEntry {
	return &item.entries[len(item.entries)-1]
}

// contractHistory is one contract's in-memory state: current data plus the
// retained per-height snapshots, ascending by height.
type contractHistory struct {
	info  *state.ContractInfo
	items []*heightItem
}

// ContractDB tracks per-contract storage with per-height snapshots so
// reorgs can be undone, and runs each block's contract transactions on a
// fixed worker pool.
type ContractDB struct {
	db dbm.DB

	// mu guards contracts; per-block staging lives in group-local
	// ContractContext values merged under mu at block commit.
	mu        sync.Mutex
	contracts map[state.ContractID]*contractHistory

	// vms is written only at pool registration and indexed by worker id
	// without locks thereafter.
	vms      []VM
	tasks    chan *contractTask
	quit     chan struct{}
	quitOnce sync.Once
}

// NewContractDB opens the contract store and starts workers goroutines,
// each owning the VM newVM builds for its worker id. A nil factory leaves
// the store readable and rollbackable but unable to execute blocks.
func NewContractDB(db dbm.DB, workers int, newVM func(worker int) VM) *ContractDB {
	if workers <= 0 {
		workers = 1
	}

	cdb := &ContractDB{
		db:        db,
		contracts: make(map[state.ContractID]*contractHistory),
		vms:       make([]VM, workers),
		tasks:     make(chan *contractTask),
		quit:      make(chan struct{}),
	}
	if newVM != nil {
		for i := 0; i < workers; i++ {
			cdb.vms[i] = newVM(i)
		}
	}
	for i := 0; i < workers; i++ {
		go cdb.worker(i)
	}
	return cdb
}

// Close stops the worker pool.
func (cdb *ContractDB) Close() {
	cdb.quitOnce.Do(func() { close(cdb.quit) })
}

func (cdb *ContractDB) worker(id int) {
	vm := cdb.vms[id]
	for {
		select {
		case task := <-cdb.tasks:
			task.run(vm)
			task.wg.Done()
		case <-cdb.quit:
			return
		}
	}
}

type contractTask struct {
	cdb     *ContractDB
	block   *BlockContracts
	calls   []*ContractCall
	ctx     *state.ContractContext
	amounts *state.CoinAmountCache
	wg      *sync.WaitGroup
}

// run executes one group sequentially. Failed transactions are discarded,
// successful ones commit into the group context.
func (t *contractTask) run(vm VM) {
	for _, call := range t.calls {
		if _, ok := t.ctx.GetData(call.Contract); !ok {
			if info, err := t.cdb.GetContractInfo(call.Contract, t.block.Prev); err == nil && info != nil {
				t.ctx.SetData(call.Contract, info)
			}
		}

		t.amounts.Add(call.Contract, call.Deposit)
		if err := t.amounts.Sub(call.Contract, call.Withdraw); err != nil {
			t.amounts.Sub(call.Contract, call.Deposit)
			t.ctx.ClearCache()
			log.WithFields(log.Fields{
				"module": logModule,
				"tx":     call.TxID.String(),
			}).Warning("contract transaction overdraws escrow")
			continue
		}

		if err := vm.Execute(call, t.ctx); err != nil {
			t.amounts.Add(call.Contract, call.Withdraw)
			t.amounts.Sub(call.Contract, call.Deposit)
			t.ctx.ClearCache()
			log.WithFields(log.Fields{
				"module": logModule,
				"tx":     call.TxID.String(),
				"error":  err,
			}).Warning("contract transaction failed")
			continue
		}

		t.ctx.Commit()
		final := state.TxFinalData{
			ContractCoins: map[state.ContractID]int64{call.Contract: t.amounts.Amount(call.Contract)},
			Data:          state.ContractData{},
		}
		if info, ok := t.ctx.GetData(call.Contract); ok {
			final.Data[call.Contract] = info
		}
		t.ctx.TxFinalData = append(t.ctx.TxFinalData, final)
	}
}

// RunBlockContract executes a block's contract transactions in the
// caller-provided group partition and merges the results into ctx. The
// grouping must be conflict-free; overlapping write sets are rejected with
// ErrConflictingGroups, matching what sequential execution would allow.
func (cdb *ContractDB) RunBlockContract(block *BlockContracts, ctx *state.ContractContext, amounts *state.CoinAmountCache) error {
	if cdb.vms[0] == nil {
		return errors.New("contract execution disabled, no VM registered")
	}

	tasks := make([]*contractTask, 0, len(block.Groups))
	var wg sync.WaitGroup

	for _, group := range block.Groups {
		task := &contractTask{
			cdb:     cdb,
			block:   block,
			calls:   group,
			ctx:     state.NewContractContext(),
			amounts: amounts,
			wg:      &wg,
		}
		tasks = append(tasks, task)
		wg.Add(1)
		cdb.tasks <- task
	}
	wg.Wait()

	written := make(map[state.ContractID]int)
	for i, task := range tasks {
		for id := range task.ctx.Deltas() {
			if prev, ok := written[id]; ok && prev != i {
				return errors.Wrapf(ErrConflictingGroups, "contract %x in groups %d and %d", id[:4], prev, i)
			}
			written[id] = i
		}
	}

	cdb.mu.Lock()
	defer cdb.mu.Unlock()
	for _, task := range tasks {
		ctx.Merge(task.ctx)
	}
	return nil
}

func (cdb *ContractDB) loadContract(id state.ContractID) (*contractHistory, error) {
	if hist, ok := cdb.contracts[id]; ok {
		return hist, nil
	}

	data := cdb.db.Get(calcContractDataKey(id))
	if data == nil {
		return nil, nil
	}
	info, err := deserializeContractInfo(data)
	if err != nil {
		return nil, err
	}

	hist := &contractHistory{info: info}
	iter := cdb.db.IteratorPrefix(append([]byte{dbContractHeight}, id[:]...))
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != 1+20+8 {
			return nil, errors.WithDetail(ErrCorrupt, "malformed contract height key")
		}
		height := binary.BigEndian.Uint64(key[21:])
		entries, err := deserializeHeightEntries(iter.Value())
		if err != nil {
			return nil, err
		}
		hist.items = append(hist.items, &heightItem{height: height, entries: entries})
	}

	cdb.contracts[id] = hist
	return hist, nil
}

// ancestorHash walks node's parent chain to the given height.
func ancestorHash(node *state.BlockNode, height uint64) (bc.Hash, bool) {
	for node != nil && node.Height > height {
		node = node.Parent
	}
	if node == nil || node.Height != height {
		return bc.Hash{}, false
	}
	return node.Hash, true
}

// GetContractInfo returns the contract's state as of the chain ending at
// prev: snapshots committed above prev, or committed for blocks not on
// prev's chain, are unwound from the current data first. The result is a
// private copy.
func (cdb *ContractDB) GetContractInfo(id state.ContractID, prev *state.BlockNode) (*state.ContractInfo, error) {
	cdb.mu.Lock()
	defer cdb.mu.Unlock()

	hist, err := cdb.loadContract(id)
	if err != nil || hist == nil {
		return nil, err
	}

	prevHeight := uint64(0)
	if prev != nil {
		prevHeight = prev.Height
	}

	info := hist.info.Clone()
	for i := len(hist.items) - 1; i >= 0; i-- {
		item := hist.items[i]
		entry := item.active()

		if item.height <= prevHeight {
			hash, ok := ancestorHash(prev, item.height)
			if ok && hash == entry.blockHash {
				// everything below was committed along prev's chain
				break
			}
		}

		if entry.delta != nil {
			info = entry.delta.Apply(info)
			if info == nil {
				return nil, nil
			}
		}
	}
	return info, nil
}

// WriteBlockContractInfoToDisk commits a connected block's contract
// changes: the new current data plus one per-height reverse-delta entry
// for every touched contract. It rides inside the caller's tip
// transition, before the chainstate's final consistency marker.
func (cdb *ContractDB) WriteBlockContractInfoToDisk(blockHash *bc.Hash, height uint64, ctx *state.ContractContext) error {
	cdb.mu.Lock()
	defer cdb.mu.Unlock()

	batch := cdb.db.NewBatch()
	committed := ctx.Committed()

	for id, delta := range ctx.Deltas() {
		info := committed[id]
		if info == nil {
			continue
		}

		hist, err := cdb.loadContract(id)
		if err != nil {
			return err
		}
		if hist == nil {
			hist = &contractHistory{}
			cdb.contracts[id] = hist
		}
		hist.info = info.Clone()

		var item *heightItem
		if n := len(hist.items); n > 0 && hist.items[n-1].height == height {
			item = hist.items[n-1]
		} else {
			item = &heightItem{height: height}
			hist.items = append(hist.items, item)
		}

		// crash replay can re-commit the same block; replace, don't stack
		replaced := false
		for i := range item.entries {
			if item.entries[i].blockHash == *blockHash {
				item.entries[i].delta = delta
				replaced = true
				break
			}
		}
		if !replaced {
			item.entries = append(item.entries, heightEntry{blockHash: *blockHash, delta: delta})
		}

		batch.Set(calcContractDataKey(id), serializeContractInfo(hist.info))
		batch.Set(calcContractHeightKey(id, height), serializeHeightEntries(item.entries))
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "writing block contract batch")
	}

	log.WithFields(log.Fields{
		"module":    logModule,
		"height":    height,
		"contracts": len(ctx.Deltas()),
	}).Debug("committed block contract data")
	return nil
}

// RollbackBlockContract undoes one disconnected block: every contract
// touched by it has the reverse delta applied and the height entry
// removed.
func (cdb *ContractDB) RollbackBlockContract(blockHash *bc.Hash, height uint64) error {
	cdb.mu.Lock()
	defer cdb.mu.Unlock()

	batch := cdb.db.NewBatch()

	for id, hist := range cdb.contracts {
		if err := cdb.rollbackOne(batch, id, hist, blockHash, height); err != nil {
			return err
		}
	}

	// contracts not resident in memory may still hold entries for the block
	iter := cdb.db.IteratorPrefix([]byte{dbContractHeight})
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != 1+20+8 || binary.BigEndian.Uint64(key[21:]) != height {
			continue
		}
		var id state.ContractID
		copy(id[:], key[1:21])
		if _, resident := cdb.contracts[id]; resident {
			continue
		}
		hist, err := cdb.loadContract(id)
		if err != nil {
			return err
		}
		if err := cdb.rollbackOne(batch, id, hist, blockHash, height); err != nil {
			return err
		}
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "writing contract rollback batch")
	}
	return nil
}

func (cdb *ContractDB) rollbackOne(batch dbm.Batch, id state.ContractID, hist *contractHistory, blockHash *bc.Hash, height uint64) error {
	n := len(hist.items)
	if n == 0 || hist.items[n-1].height != height {
		return nil
	}

	item := hist.items[n-1]
	entry := item.active()
	if entry.blockHash != *blockHash {
		return nil
	}

	if entry.delta != nil {
		hist.info = entry.delta.Apply(hist.info)
	}

	item.entries = item.entries[:len(item.entries)-1]
	if len(item.entries) == 0 {
		hist.items = hist.items[:n-1]
		batch.Delete(calcContractHeightKey(id, height))
	} else {
		batch.Set(calcContractHeightKey(id, height), serializeHeightEntries(item.entries))
	}

	if hist.info == nil {
		delete(cdb.contracts, id)
		batch.Delete(calcContractDataKey(id))
	} else {
		batch.Set(calcContractDataKey(id), serializeContractInfo(hist.info))
	}
	return nil
}

// PruneContractInfo coalesces snapshots below the finality horizon: the
// oldest retained entry absorbs everything dropped beneath it, so rolling
// back to any retained height stays possible while pre-horizon data is
// freed. The scan polls interrupt between contracts.
func (cdb *ContractDB) PruneContractInfo(finalizedHeight uint64, interrupt func() bool) error {
	cdb.mu.Lock()
	defer cdb.mu.Unlock()

	// sweep every contract with durable height entries into memory first
	ids := make(map[state.ContractID]bool)
	iter := cdb.db.IteratorPrefix([]byte{dbContractHeight})
	for iter.Next() {
		key := iter.Key()
		if len(key) == 1+20+8 {
			var id state.ContractID
			copy(id[:], key[1:21])
			ids[id] = true
		}
	}
	iter.Release()

	batch := cdb.db.NewBatch()
	pruned := 0
	for id := range ids {
		if interrupt != nil && interrupt() {
			if err := batch.Write(); err != nil {
				return errors.Wrap(err, "writing contract prune batch")
			}
			return ErrInterrupted
		}

		hist, err := cdb.loadContract(id)
		if err != nil {
			return err
		}
		if hist == nil {
			continue
		}

		cut := 0
		for cut < len(hist.items) && hist.items[cut].height < finalizedHeight {
			cut++
		}
		if cut == 0 {
			continue
		}

		if cut < len(hist.items) {
			absorber := hist.items[cut].active()
			if absorber.delta == nil {
				absorber.delta = &state.ContractDelta{Prev: make(map[string][]byte)}
			}
			for i := cut - 1; i >= 0; i-- {
				if d := hist.items[i].active().delta; d != nil {
					absorber.delta.Absorb(d)
				}
			}
			batch.Set(calcContractHeightKey(id, hist.items[cut].height), serializeHeightEntries(hist.items[cut].entries))
		}

		for i := 0; i < cut; i++ {
			batch.Delete(calcContractHeightKey(id, hist.items[i].height))
			pruned++
		}
		hist.items = hist.items[cut:]
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "writing contract prune batch")
	}

	log.WithFields(log.Fields{
		"module":  logModule,
		"horizon": finalizedHeight,
		"pruned":  pruned,
	}).Debug("pruned contract snapshots")
	return nil
}
