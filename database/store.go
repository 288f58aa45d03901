package database

import (
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/protocol/state"
)

var errInvalidRollback = errors.New("rollback of a block with no parent")

// A Store encapsulates the chain-state databases: the coin view leaf, the
// block-index catalog, the contract store, and the address reverse index.
// It commits one tip transition as a single logical transaction.
type Store struct {
	coinDB     *CoinDB
	blockTree  *BlockTreeDB
	contractDB *ContractDB
	listDB     *CoinListDB
}

// NewStore assembles the chain-state layer. listDB and contractDB may be
// nil when the address index or contract support is disabled.
func NewStore(coinDB *CoinDB, blockTree *BlockTreeDB, contractDB *ContractDB, listDB *CoinListDB) *Store {
	return &Store{
		coinDB:     coinDB,
		blockTree:  blockTree,
		contractDB: contractDB,
		listDB:     listDB,
	}
}

// CoinDB exposes the durable coin view.
func (s *Store) CoinDB() *CoinDB { return s.coinDB }

// BlockTree exposes the block-index store.
func (s *Store) BlockTree() *BlockTreeDB { return s.blockTree }

// ContractDB exposes the contract state store.
func (s *Store) ContractDB() *ContractDB { return s.contractDB }

// CoinListDB exposes the address reverse index.
func (s *Store) CoinListDB() *CoinListDB { return s.listDB }

// GetCoin returns the durable coin at outpoint, or nil.
func (s *Store) GetCoin(outpoint bc.Outpoint) (*storage.Coin, error) {
	return s.coinDB.GetCoin(outpoint)
}

// SaveChainStatus commits a connected block's effects as one logical
// transaction. Order matters for crash consistency:
//
//  1. block records land first, synchronously - an orphaned record is
//     harmless, a missing one is not,
//  2. the transition marker flags the tip change in progress,
//  3. the contract store's deltas ride under that marker,
//  4. BatchWrite streams coins and the address index, then clears the
//     marker and names the new tip.
func (s *Store) SaveChainStatus(node *state.BlockNode, fileInfo map[int32]*BlockFileInfo, lastFile int32, coins state.CoinsMap, ctx *state.ContractContext) error {
	if err := s.blockTree.WriteBatchSync(fileInfo, lastFile, []*state.BlockNode{node}); err != nil {
		return err
	}

	if err := s.coinDB.WriteTransitionMarker(&node.Hash); err != nil {
		return err
	}

	if s.contractDB != nil && ctx != nil {
		if err := s.contractDB.WriteBlockContractInfoToDisk(&node.Hash, node.Height, ctx); err != nil {
			return err
		}
	}

	if s.listDB != nil {
		s.listDB.ImportCoins(coins)
	}
	return s.coinDB.BatchWrite(coins, &node.Hash)
}

// RollbackChainStatus undoes a disconnected block: the contract store
// unwinds its height entries and the coin map (carrying the reversing
// spends and deletions the caller derived from undo data) is committed
// toward the parent tip, all under one transition marker.
func (s *Store) RollbackChainStatus(node *state.BlockNode, coins state.CoinsMap) error {
	if node.Parent == nil {
		return errInvalidRollback
	}

	if err := s.coinDB.WriteTransitionMarker(&node.Parent.Hash); err != nil {
		return err
	}

	if s.contractDB != nil {
		if err := s.contractDB.RollbackBlockContract(&node.Hash, node.Height); err != nil {
			return err
		}
	}

	if s.listDB != nil {
		s.listDB.ImportCoins(coins)
	}
	return s.coinDB.BatchWrite(coins, &node.Parent.Hash)
}

// CheckCoinFormat returns ErrUpgradeRequired while legacy per-tx coin
// records remain on disk; the caller runs CoinDB().Upgrade and retries.
func (s *Store) CheckCoinFormat() error {
	if s.coinDB.NeedsUpgrade() {
		return ErrUpgradeRequired
	}
	return nil
}

// LoadBlockIndex rebuilds the in-memory block index from the durable
// catalog, interning parent pointers and verifying stored work.
func (s *Store) LoadBlockIndex(interrupt func() bool) (*state.BlockIndex, error) {
	blockIndex := state.NewBlockIndex()
	if err := s.blockTree.LoadBlockIndexGuts(blockIndex.InsertBlockIndex, interrupt); err != nil {
		return nil, err
	}
	return blockIndex, nil
}
