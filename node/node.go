// Package node assembles the chain-state layer out of its stores and owns
// their lifecycle.
package node

import (
	"sync"

	log "github.com/sirupsen/logrus"

	cfg "github.com/magnachain/magnachain/config"
	"github.com/magnachain/magnachain/consensus"
	"github.com/magnachain/magnachain/database"
	dbm "github.com/magnachain/magnachain/database/leveldb"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/state"
)

const logModule = "node"

// defaultWorkers is the contract worker pool size.
const defaultWorkers = 4

// Node owns the chain-state databases and the in-memory block index.
type Node struct {
	config *cfg.Config
	params *consensus.Params

	chainstateDB dbm.DB
	blockIndexDB dbm.DB
	contractDB   dbm.DB

	store      *database.Store
	blockIndex *state.BlockIndex

	quit     chan struct{}
	quitOnce sync.Once
}

func paramsFor(chainID string) *consensus.Params {
	switch chainID {
	case "testnet":
		return &consensus.TestNetParams
	case "solonet":
		return &consensus.SoloNetParams
	default:
		return &consensus.MainNetParams
	}
}

// NewNode opens the persistent layout under the configured data directory
// (chainstate/, blocks/index/, contract/), runs any pending coin-database
// upgrade, and loads the block index.
func NewNode(config *cfg.Config, newVM func(worker int) database.VM) (*Node, error) {
	n := &Node{
		config: config,
		params: paramsFor(config.ChainID),
		quit:   make(chan struct{}),
	}

	dbDir := config.DBDir()
	backend := config.DB.Backend
	n.chainstateDB = dbm.NewDBWithCache("chainstate", backend, dbDir, config.DB.Cache)
	n.blockIndexDB = dbm.NewDBWithCache("blocks/index", backend, dbDir, config.DB.Cache)
	n.contractDB = dbm.NewDBWithCache("contract", backend, dbDir, config.DB.Cache)

	listDB := database.NewCoinListDB(n.chainstateDB, config.DB.BatchSize)
	coinDB := database.NewCoinDB(n.chainstateDB, listDB, config.DB.BatchSize, config.DB.CrashRatio)
	blockTree := database.NewBlockTreeDB(n.blockIndexDB, n.params)
	contractDB := database.NewContractDB(n.contractDB, defaultWorkers, newVM)
	n.store = database.NewStore(coinDB, blockTree, contractDB, listDB)

	if config.DB.Reindex {
		blockTree.WriteReindexing(true)
	}
	if config.DB.TxIndex {
		blockTree.WriteFlag("txindex", true)
	}

	if err := n.store.CheckCoinFormat(); errors.Root(err) == database.ErrUpgradeRequired {
		reported := -1
		err := coinDB.Upgrade(n.interruptRequested, func(percent int) {
			if percent/10 != reported {
				reported = percent / 10
				log.WithFields(log.Fields{
					"module":  logModule,
					"percent": percent,
				}).Info("upgrading coin database")
			}
		})
		if err != nil {
			n.closeDBs()
			return nil, err
		}
	}

	blockIndex, err := n.store.LoadBlockIndex(n.interruptRequested)
	if err != nil {
		n.closeDBs()
		return nil, err
	}
	n.blockIndex = blockIndex
	return n, nil
}

// Store returns the assembled chain-state layer.
func (n *Node) Store() *database.Store { return n.store }

// BlockIndex returns the in-memory block catalog.
func (n *Node) BlockIndex() *state.BlockIndex { return n.blockIndex }

// RequestShutdown flips the process-wide interrupt; long scans observe it
// between steps.
func (n *Node) RequestShutdown() {
	n.quitOnce.Do(func() { close(n.quit) })
}

func (n *Node) interruptRequested() bool {
	select {
	case <-n.quit:
		return true
	default:
		return false
	}
}

func (n *Node) closeDBs() {
	if cdb := n.store; cdb != nil && cdb.ContractDB() != nil {
		cdb.ContractDB().Close()
	}
	n.chainstateDB.Close()
	n.blockIndexDB.Close()
	n.contractDB.Close()
}

// Stop shuts the worker pool and the databases down.
func (n *Node) Stop() {
	n.RequestShutdown()
	n.closeDBs()
	log.WithFields(log.Fields{"module": logModule}).Info("node stopped")
}
