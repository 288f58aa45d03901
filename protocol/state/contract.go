package state

import (
	"sync"

	"github.com/magnachain/magnachain/errors"
)

// ContractID is the 20-byte identity of a contract.
type ContractID [20]byte

// ContractInfo is one contract's current state: its program plus its
// storage map.
type ContractInfo struct {
	Code    []byte
	Storage map[string][]byte
}

// NewContractInfo returns an empty contract with the given program.
func NewContractInfo(code []byte) *ContractInfo {
	return &ContractInfo{Code: code, Storage: make(map[string][]byte)}
}

// Clone deep-copies the contract state.
func (info *ContractInfo) Clone() *ContractInfo {
	clone := &ContractInfo{
		Code:    append([]byte(nil), info.Code...),
		Storage: make(map[string][]byte, len(info.Storage)),
	}
	for k, v := range info.Storage {
		clone.Storage[k] = append([]byte(nil), v...)
	}
	return clone
}

// ContractData maps contract ids to their state.
type ContractData map[ContractID]*ContractInfo

// ContractDelta is the reverse delta for one contract in one block: the
// minimum information needed to rebuild the contract's storage at height-1
// from its storage at height.
type ContractDelta struct {
	// Created means the contract did not exist before the block; undoing
	// the block removes it entirely.
	Created bool
	// Prev holds the prior value of every storage key the block touched.
	// A nil value records that the key was absent.
	Prev map[string][]byte
}

// Apply undoes the block's effect on info. It returns nil when the
// contract itself must be removed.
func (d *ContractDelta) Apply(info *ContractInfo) *ContractInfo {
	if d.Created {
		return nil
	}
	for k, v := range d.Prev {
		if v == nil {
			delete(info.Storage, k)
		} else {
			info.Storage[k] = append([]byte(nil), v...)
		}
	}
	return info
}

// Absorb folds an older delta into this one so the dropped entry's undo
// information survives pruning. Where both record a key, the older value
// wins: it is the deeper prior state, and composed application must land
// there.
func (d *ContractDelta) Absorb(older *ContractDelta) {
	if older.Created {
		d.Created = true
	}
	for k, v := range older.Prev {
		d.Prev[k] = v
	}
}

// TxFinalData is the journal record of one successful contract
// transaction: the escrow balances and contract states it left behind.
type TxFinalData struct {
	ContractCoins map[ContractID]int64
	Data          ContractData
}

// ContractContext is the staging area for contract execution inside one
// block. Cache holds a single transaction's tentative writes; Data holds
// the block's committed state; the delta set records what Data looked like
// before the block so the whole thing can be reversed.
type ContractContext struct {
	cache  ContractData
	data   ContractData
	deltas map[ContractID]*ContractDelta

	// TxFinalData is appended once per successfully committed transaction.
	TxFinalData []TxFinalData
}

// NewContractContext returns an empty execution context.
func NewContractContext() *ContractContext {
	return &ContractContext{
		cache:  make(ContractData),
		data:   make(ContractData),
		deltas: make(map[ContractID]*ContractDelta),
	}
}

// SetCache stages a tentative per-transaction write. The staged storage is
// an overlay over the committed state: a nil value deletes the key.
func (ctx *ContractContext) SetCache(id ContractID, info *ContractInfo) {
	ctx.cache[id] = info
}

// SetData installs committed state, normally loaded from the durable store
// before execution starts. It records no undo information.
func (ctx *ContractContext) SetData(id ContractID, info *ContractInfo) {
	ctx.data[id] = info
}

// GetData reads through the staging layers: transaction cache first, then
// block data.
func (ctx *ContractContext) GetData(id ContractID) (*ContractInfo, bool) {
	if info, ok := ctx.cache[id]; ok {
		return info, true
	}
	info, ok := ctx.data[id]
	return info, ok
}

// Committed returns the block-committed state map.
func (ctx *ContractContext) Committed() ContractData {
	return ctx.data
}

// Deltas returns the per-contract reverse deltas accumulated by Commit.
func (ctx *ContractContext) Deltas() map[ContractID]*ContractDelta {
	return ctx.deltas
}

// Commit folds the transaction cache into the block data, recording prior
// values into the block's reverse delta the first time each key is
// touched.
func (ctx *ContractContext) Commit() {
	for id, staged := range ctx.cache {
		prev, existed := ctx.data[id]

		delta, ok := ctx.deltas[id]
		if !ok {
			delta = &ContractDelta{Prev: make(map[string][]byte)}
			if !existed {
				delta.Created = true
			}
			ctx.deltas[id] = delta
		}

		if !existed {
			clone := NewContractInfo(append([]byte(nil), staged.Code...))
			for k, v := range staged.Storage {
				if v != nil {
					clone.Storage[k] = append([]byte(nil), v...)
				}
			}
			ctx.data[id] = clone
			continue
		}

		if !delta.Created {
			for k := range staged.Storage {
				if _, seen := delta.Prev[k]; seen {
					continue
				}
				if old, ok := prev.Storage[k]; ok {
					delta.Prev[k] = append([]byte(nil), old...)
				} else {
					delta.Prev[k] = nil
				}
			}
		}
		for k, v := range staged.Storage {
			if v == nil {
				delete(prev.Storage, k)
			} else {
				prev.Storage[k] = v
			}
		}
	}
	ctx.cache = make(ContractData)
}

// Merge folds a group context into ctx. Groups are required to have
// disjoint write sets, so the merge is plain map union; committed data,
// undo records and the transaction journal all carry over.
func (ctx *ContractContext) Merge(group *ContractContext) {
	for id, info := range group.data {
		ctx.data[id] = info
	}
	for id, delta := range group.deltas {
		ctx.deltas[id] = delta
	}
	ctx.TxFinalData = append(ctx.TxFinalData, group.TxFinalData...)
}

// ClearCache discards a failed transaction's staged writes.
func (ctx *ContractContext) ClearCache() {
	ctx.cache = make(ContractData)
}

// ClearData discards the block's committed state and undo records.
func (ctx *ContractContext) ClearData() {
	ctx.data = make(ContractData)
	ctx.deltas = make(map[ContractID]*ContractDelta)
	ctx.TxFinalData = nil
}

// ClearAll resets the context completely.
func (ctx *ContractContext) ClearAll() {
	ctx.ClearCache()
	ctx.ClearData()
}

// ErrNegativeBalance reports an attempted overdraw of a contract's
// escrowed coins.
var ErrNegativeBalance = errors.New("contract balance below zero")

// CoinAmountCache tracks the coins escrowed by each contract during block
// execution and refuses to let any balance go negative.
type CoinAmountCache struct {
	mtx     sync.Mutex
	amounts map[ContractID]int64
}

// NewCoinAmountCache returns an empty balance cache.
func NewCoinAmountCache() *CoinAmountCache {
	return &CoinAmountCache{amounts: make(map[ContractID]int64)}
}

// Amount returns the tracked balance for id.
func (c *CoinAmountCache) Amount(id ContractID) int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.amounts[id]
}

// SetAmount seeds the balance for id, overwriting any tracked value.
func (c *CoinAmountCache) SetAmount(id ContractID, amount int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.amounts[id] = amount
}

// Add credits amount to id's balance.
func (c *CoinAmountCache) Add(id ContractID, amount int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.amounts[id] += amount
}

// Sub debits amount from id's balance, failing rather than going negative.
func (c *CoinAmountCache) Sub(id ContractID, amount int64) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.amounts[id] < amount {
		return errors.Wrapf(ErrNegativeBalance, "contract %x", id[:4])
	}
	c.amounts[id] -= amount
	return nil
}
