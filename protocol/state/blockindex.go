package state

import (
	"sort"
	"sync"

	"github.com/magnachain/magnachain/protocol/bc"
)

// approxNodesPerDay is an approximation of the number of new blocks there
// are in a day on average.
const approxNodesPerDay = 24 * 24

// BlockStatus is the validation-state bitmask of a block record.
type BlockStatus uint32

const (
	// BlockValidHeader through BlockValidScripts form an ordered ladder;
	// the low bits hold the highest rung reached.
	BlockValidHeader       BlockStatus = 1
	BlockValidTree         BlockStatus = 2
	BlockValidTransactions BlockStatus = 3
	BlockValidChain        BlockStatus = 4
	BlockValidScripts      BlockStatus = 5
	BlockValidMask         BlockStatus = 7

	// BlockHaveData means the full block body is stored in a block file.
	BlockHaveData BlockStatus = 8
	// BlockHaveUndo means the undo data is stored in an undo file.
	BlockHaveUndo BlockStatus = 16

	BlockFailed      BlockStatus = 32
	BlockFailedChild BlockStatus = 64
)

// BlockNode represents a block within the block chain and carries its
// on-disk placement. Parent pointers are interned handles resolved through
// the owning BlockIndex, never freestanding copies.
type BlockNode struct {
	Parent     *BlockNode
	Hash       bc.Hash
	Version    uint64
	Height     uint64
	Timestamp  uint64
	Bits       uint32
	Nonce      uint64
	MerkleRoot bc.Hash

	// contract-result commitments of this and the previous block
	MerkleRootWithData     bc.Hash
	MerkleRootWithPrevData bc.Hash

	// proof-of-stake signing fields
	StakePrevout bc.Outpoint
	BlockSig     []byte

	// on-disk placement and bookkeeping
	Status  BlockStatus
	NumTx   uint64
	File    int32
	DataPos uint32
	UndoPos uint32
}

// HaveData reports whether the block body is on disk.
func (node *BlockNode) HaveData() bool {
	return node.Status&BlockHaveData != 0
}

// HaveUndo reports whether the undo data is on disk.
func (node *BlockNode) HaveUndo() bool {
	return node.Status&BlockHaveUndo != 0
}

// CalcPastMedianTime returns the median timestamp of the last several
// ancestors, used for lock-time checks.
func (node *BlockNode) CalcPastMedianTime() uint64 {
	const medianTimeBlocks = 11

	timestamps := []uint64{}
	iterNode := node
	for i := 0; i < medianTimeBlocks && iterNode != nil; i++ {
		timestamps = append(timestamps, iterNode.Timestamp)
		iterNode = iterNode.Parent
	}

	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2]
}

// BlockIndex is the in-memory catalog of every known block, tracking the
// active chain as a height-indexed array.
type BlockIndex struct {
	sync.RWMutex

	index     map[bc.Hash]*BlockNode
	mainChain []*BlockNode
}

// NewBlockIndex will create a empty BlockIndex
func NewBlockIndex() *BlockIndex {
	return &BlockIndex{
		index:     make(map[bc.Hash]*BlockNode),
		mainChain: make([]*BlockNode, 0, approxNodesPerDay),
	}
}

// AddNode will add node to the index map
func (bi *BlockIndex) AddNode(node *BlockNode) {
	bi.Lock()
	bi.index[node.Hash] = node
	bi.Unlock()
}

// InsertBlockIndex interns a hash: it returns the existing node for it, or
// creates and indexes an empty one. This is the deduplicating constructor
// the block-index load wires parent pointers through.
func (bi *BlockIndex) InsertBlockIndex(hash bc.Hash) *BlockNode {
	if hash.IsZero() {
		return nil
	}

	bi.Lock()
	defer bi.Unlock()
	if node, ok := bi.index[hash]; ok {
		return node
	}

	node := &BlockNode{Hash: hash}
	bi.index[hash] = node
	return node
}

// GetNode will search node from the index map
func (bi *BlockIndex) GetNode(hash *bc.Hash) *BlockNode {
	bi.RLock()
	defer bi.RUnlock()
	return bi.index[*hash]
}

// BlockExist check does the block existed in blockIndex
func (bi *BlockIndex) BlockExist(hash *bc.Hash) bool {
	bi.RLock()
	_, ok := bi.index[*hash]
	bi.RUnlock()
	return ok
}

// BestNode returns the tip of the active chain.
func (bi *BlockIndex) BestNode() *BlockNode {
	bi.RLock()
	defer bi.RUnlock()
	if len(bi.mainChain) == 0 {
		return nil
	}
	return bi.mainChain[len(bi.mainChain)-1]
}

// InMainchain reports whether the block is on the active chain.
func (bi *BlockIndex) InMainchain(hash bc.Hash) bool {
	bi.RLock()
	defer bi.RUnlock()

	node, ok := bi.index[hash]
	if !ok {
		return false
	}
	return bi.nodeByHeight(node.Height) == node
}

// NodeByHeight returns the active-chain node at the specified height.
func (bi *BlockIndex) NodeByHeight(height uint64) *BlockNode {
	bi.RLock()
	defer bi.RUnlock()
	return bi.nodeByHeight(height)
}

// SetMainChain walks back from node rewriting the active-chain array.
func (bi *BlockIndex) SetMainChain(node *BlockNode) {
	bi.Lock()
	defer bi.Unlock()

	needed := node.Height + 1
	if uint64(cap(bi.mainChain)) < needed {
		nodes := make([]*BlockNode, needed, needed+approxNodesPerDay)
		copy(nodes, bi.mainChain)
		bi.mainChain = nodes
	} else {
		i := uint64(len(bi.mainChain))
		bi.mainChain = bi.mainChain[0:needed]
		for ; i < needed; i++ {
			bi.mainChain[i] = nil
		}
	}

	for node != nil && bi.mainChain[node.Height] != node {
		bi.mainChain[node.Height] = node
		node = node.Parent
	}
}

func (bi *BlockIndex) nodeByHeight(height uint64) *BlockNode {
	if height >= uint64(len(bi.mainChain)) {
		return nil
	}
	return bi.mainChain[height]
}
