package database

import (
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
	log "github.com/sirupsen/logrus"

	"github.com/magnachain/magnachain/consensus"
	dbm "github.com/magnachain/magnachain/database/leveldb"
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/protocol/state"
)

// BlockFileInfo summarizes one blkNNNNN.dat file.
type BlockFileInfo struct {
	Blocks      uint64
	Size        uint64
	UndoSize    uint64
	HeightFirst uint64
	HeightLast  uint64
	TimeFirst   uint64
	TimeLast    uint64
}

// AddBlock folds one stored block into the file summary.
func (info *BlockFileInfo) AddBlock(height, timestamp uint64) {
	if info.Blocks == 0 || height < info.HeightFirst {
		info.HeightFirst = height
	}
	if info.Blocks == 0 || timestamp < info.TimeFirst {
		info.TimeFirst = timestamp
	}
	info.Blocks++
	if height > info.HeightLast {
		info.HeightLast = height
	}
	if timestamp > info.TimeLast {
		info.TimeLast = timestamp
	}
}

func serializeBlockFileInfo(info *BlockFileInfo) []byte {
	var buf [10]byte
	out := make([]byte, 0, 24)
	for _, v := range []uint64{info.Blocks, info.Size, info.UndoSize,
		info.HeightFirst, info.HeightLast, info.TimeFirst, info.TimeLast} {
		out = append(out, buf[:storage.PutVLQ(buf[:], v)]...)
	}
	return out
}

func deserializeBlockFileInfo(serialized []byte) (*BlockFileInfo, error) {
	info := &BlockFileInfo{}
	offset := 0
	for _, field := range []*uint64{&info.Blocks, &info.Size, &info.UndoSize,
		&info.HeightFirst, &info.HeightLast, &info.TimeFirst, &info.TimeLast} {
		if offset >= len(serialized) {
			return nil, errors.WithDetail(ErrCorrupt, "truncated block file info")
		}
		v, read := storage.DeserializeVLQ(serialized[offset:])
		*field = v
		offset += read
	}
	return info, nil
}

// DiskTxPos locates one transaction inside a block file.
type DiskTxPos struct {
	File     int32
	BlockPos uint32
	TxOffset uint32
}

// TxIndexEntry pairs a transaction hash with its file position for the
// bulk index writer.
type TxIndexEntry struct {
	Hash bc.Hash
	Pos  DiskTxPos
}

func serializeDiskTxPos(pos *DiskTxPos) []byte {
	var buf [10]byte
	out := make([]byte, 0, 12)
	for _, v := range []uint64{uint64(uint32(pos.File)), uint64(pos.BlockPos), uint64(pos.TxOffset)} {
		out = append(out, buf[:storage.PutVLQ(buf[:], v)]...)
	}
	return out
}

func deserializeDiskTxPos(serialized []byte) (*DiskTxPos, error) {
	pos := &DiskTxPos{}
	offset := 0
	fields := []func(uint64){
		func(v uint64) { pos.File = int32(v) },
		func(v uint64) { pos.BlockPos = uint32(v) },
		func(v uint64) { pos.TxOffset = uint32(v) },
	}
	for _, set := range fields {
		if offset >= len(serialized) {
			return nil, errors.WithDetail(ErrCorrupt, "truncated tx position")
		}
		v, read := storage.DeserializeVLQ(serialized[offset:])
		set(v)
		offset += read
	}
	return pos, nil
}

// serializeBlockRecord encodes a block-index record: the bookkeeping
// scalars, the file placement guarded by the status bits, then the header
// fields needed to reconstruct and verify the block.
func serializeBlockRecord(node *state.BlockNode) []byte {
	var buf [10]byte
	out := make([]byte, 0, 128)
	put := func(v uint64) { out = append(out, buf[:storage.PutVLQ(buf[:], v)]...) }

	put(node.Height)
	put(uint64(node.Status))
	put(node.NumTx)
	if node.Status&(state.BlockHaveData|state.BlockHaveUndo) != 0 {
		put(uint64(uint32(node.File)))
	}
	if node.Status&state.BlockHaveData != 0 {
		put(uint64(node.DataPos))
	}
	if node.Status&state.BlockHaveUndo != 0 {
		put(uint64(node.UndoPos))
	}

	put(node.Version)
	if node.Parent != nil {
		out = append(out, node.Parent.Hash.Bytes()...)
	} else {
		out = append(out, make([]byte, 32)...)
	}
	out = append(out, node.MerkleRoot.Bytes()...)
	out = append(out, node.MerkleRootWithData.Bytes()...)
	out = append(out, node.MerkleRootWithPrevData.Bytes()...)
	put(node.Timestamp)
	put(uint64(node.Bits))
	put(node.Nonce)

	out = append(out, node.StakePrevout.Hash.Bytes()...)
	put(node.StakePrevout.Index)
	put(uint64(len(node.BlockSig)))
	out = append(out, node.BlockSig...)
	return out
}

// blockRecord is the decoded disk form before parent interning.
type blockRecord struct {
	node     state.BlockNode
	prevHash bc.Hash
}

func deserializeBlockRecord(serialized []byte) (*blockRecord, error) {
	rec := &blockRecord{}
	offset := 0

	next := func() (uint64, error) {
		if offset >= len(serialized) {
			return 0, errors.WithDetail(ErrCorrupt, "truncated block record")
		}
		v, read := storage.DeserializeVLQ(serialized[offset:])
		offset += read
		return v, nil
	}
	readHash := func() (bc.Hash, error) {
		if len(serialized)-offset < 32 {
			return bc.Hash{}, errors.WithDetail(ErrCorrupt, "truncated block record")
		}
		var b32 [32]byte
		copy(b32[:], serialized[offset:offset+32])
		offset += 32
		return bc.NewHash(b32), nil
	}

	var v uint64
	var err error
	if rec.node.Height, err = next(); err != nil {
		return nil, err
	}
	if v, err = next(); err != nil {
		return nil, err
	}
	rec.node.Status = state.BlockStatus(v)
	if rec.node.NumTx, err = next(); err != nil {
		return nil, err
	}
	if rec.node.Status&(state.BlockHaveData|state.BlockHaveUndo) != 0 {
		if v, err = next(); err != nil {
			return nil, err
		}
		rec.node.File = int32(v)
	}
	if rec.node.Status&state.BlockHaveData != 0 {
		if v, err = next(); err != nil {
			return nil, err
		}
		rec.node.DataPos = uint32(v)
	}
	if rec.node.Status&state.BlockHaveUndo != 0 {
		if v, err = next(); err != nil {
			return nil, err
		}
		rec.node.UndoPos = uint32(v)
	}

	if rec.node.Version, err = next(); err != nil {
		return nil, err
	}
	if rec.prevHash, err = readHash(); err != nil {
		return nil, err
	}
	if rec.node.MerkleRoot, err = readHash(); err != nil {
		return nil, err
	}
	if rec.node.MerkleRootWithData, err = readHash(); err != nil {
		return nil, err
	}
	if rec.node.MerkleRootWithPrevData, err = readHash(); err != nil {
		return nil, err
	}
	if rec.node.Timestamp, err = next(); err != nil {
		return nil, err
	}
	if v, err = next(); err != nil {
		return nil, err
	}
	rec.node.Bits = uint32(v)
	if rec.node.Nonce, err = next(); err != nil {
		return nil, err
	}

	if rec.node.StakePrevout.Hash, err = readHash(); err != nil {
		return nil, err
	}
	if rec.node.StakePrevout.Index, err = next(); err != nil {
		return nil, err
	}
	sigLen, err := next()
	if err != nil {
		return nil, err
	}
	if uint64(len(serialized)-offset) < sigLen {
		return nil, errors.WithDetail(ErrCorrupt, "truncated block record")
	}
	rec.node.BlockSig = make([]byte, sigLen)
	copy(rec.node.BlockSig, serialized[offset:])
	return rec, nil
}

const maxCachedBlockRecords = 1024

// BlockTreeDB is the durable catalog of every known block header, its
// on-disk placement, and the assorted chain-wide bookkeeping records that
// live beside it.
type BlockTreeDB struct {
	db     dbm.DB
	params *consensus.Params

	lruRecords *lru.Cache
	single     singleflight.Group
}

// NewBlockTreeDB wraps the blocks/index database.
func NewBlockTreeDB(db dbm.DB, params *consensus.Params) *BlockTreeDB {
	return &BlockTreeDB{
		db:         db,
		params:     params,
		lruRecords: lru.New(maxCachedBlockRecords),
	}
}

// WriteBatchSync lands the changed file summaries, the last-file pointer,
// and the changed block records in one synchronous batch.
func (b *BlockTreeDB) WriteBatchSync(fileInfo map[int32]*BlockFileInfo, lastFile int32, nodes []*state.BlockNode) error {
	startTime := time.Now()
	batch := b.db.NewBatch()

	for file, info := range fileInfo {
		batch.Set(CalcBlockFileInfoKey(file), serializeBlockFileInfo(info))
	}

	var buf [10]byte
	batch.Set(lastBlockFileKey(), buf[:storage.PutVLQ(buf[:], uint64(uint32(lastFile)))])

	for _, node := range nodes {
		batch.Set(CalcBlockIndexKey(&node.Hash), serializeBlockRecord(node))
		b.lruRecords.Remove(node.Hash)
	}

	if err := batch.WriteSync(); err != nil {
		return errors.Wrap(err, "writing block index batch")
	}

	log.WithFields(log.Fields{
		"module":   logModule,
		"files":    len(fileInfo),
		"blocks":   len(nodes),
		"duration": time.Since(startTime),
	}).Debug("block index saved on disk")
	return nil
}

// ReadBlockFileInfo returns the summary for file, or nil if unknown.
func (b *BlockTreeDB) ReadBlockFileInfo(file int32) (*BlockFileInfo, error) {
	data := b.db.Get(CalcBlockFileInfoKey(file))
	if data == nil {
		return nil, nil
	}
	return deserializeBlockFileInfo(data)
}

// ReadLastBlockFile returns the number of the newest block file.
func (b *BlockTreeDB) ReadLastBlockFile() (int32, bool) {
	data := b.db.Get(lastBlockFileKey())
	if data == nil {
		return 0, false
	}
	v, _ := storage.DeserializeVLQ(data)
	return int32(v), true
}

// GetBlockRecord returns the stored index record for hash without parent
// wiring, through a small lru cache.
func (b *BlockTreeDB) GetBlockRecord(hash *bc.Hash) (*state.BlockNode, error) {
	if cached, ok := b.lruRecords.Get(*hash); ok {
		return cached.(*state.BlockNode), nil
	}

	rec, err := b.single.Do(hash.String(), func() (interface{}, error) {
		data := b.db.Get(CalcBlockIndexKey(hash))
		if data == nil {
			return (*state.BlockNode)(nil), nil
		}
		decoded, err := deserializeBlockRecord(data)
		if err != nil {
			return nil, err
		}
		node := decoded.node
		node.Hash = *hash
		b.lruRecords.Add(*hash, &node)
		return &node, nil
	})
	if err != nil {
		return nil, err
	}
	return rec.(*state.BlockNode), nil
}

// WriteReindexing sets or clears the presence-only reindex marker.
func (b *BlockTreeDB) WriteReindexing(reindexing bool) {
	if reindexing {
		b.db.SetSync(reindexFlagKey(), []byte{'1'})
	} else {
		b.db.DeleteSync(reindexFlagKey())
	}
}

// IsReindexing reports whether a reindex was in progress at last shutdown.
func (b *BlockTreeDB) IsReindexing() bool {
	return b.db.Exists(reindexFlagKey())
}

// ReadTxIndex returns the stored position for a transaction, or nil.
func (b *BlockTreeDB) ReadTxIndex(hash *bc.Hash) (*DiskTxPos, error) {
	data := b.db.Get(CalcTxIndexKey(hash))
	if data == nil {
		return nil, nil
	}
	return deserializeDiskTxPos(data)
}

// WriteTxIndex bulk-writes transaction positions. It is a separate batch
// from the main path so the indexer can be disabled independently.
func (b *BlockTreeDB) WriteTxIndex(entries []TxIndexEntry) error {
	batch := b.db.NewBatch()
	for i := range entries {
		batch.Set(CalcTxIndexKey(&entries[i].Hash), serializeDiskTxPos(&entries[i].Pos))
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "writing tx index batch")
	}
	return nil
}

// WriteFlag stores a named feature flag as '1' or '0'.
func (b *BlockTreeDB) WriteFlag(name string, value bool) {
	ch := byte('0')
	if value {
		ch = '1'
	}
	b.db.Set(CalcFlagKey(name), []byte{ch})
}

// ReadFlag returns a named flag and whether it was ever written.
func (b *BlockTreeDB) ReadFlag(name string) (value bool, exists bool) {
	data := b.db.Get(CalcFlagKey(name))
	if data == nil {
		return false, false
	}
	return len(data) == 1 && data[0] == '1', true
}

// LoadBlockIndexGuts scans every block record, wiring parent pointers
// through the caller's interning function and verifying each record's
// proof of work against its stored bits. The scan polls interrupt so a
// shutdown request aborts between records.
func (b *BlockTreeDB) LoadBlockIndexGuts(insertBlockIndex func(bc.Hash) *state.BlockNode, interrupt func() bool) error {
	startTime := time.Now()
	iter := b.db.IteratorPrefix([]byte{dbBlockIndex})
	defer iter.Release()

	count := 0
	for iter.Next() {
		if interrupt != nil && interrupt() {
			return ErrInterrupted
		}

		key := iter.Key()
		if len(key) != 33 {
			return errors.WithDetailf(ErrCorrupt, "block index key of length %d", len(key))
		}
		var b32 [32]byte
		copy(b32[:], key[1:])
		hash := bc.NewHash(b32)

		rec, err := deserializeBlockRecord(iter.Value())
		if err != nil {
			return err
		}

		node := insertBlockIndex(hash)
		node.Parent = insertBlockIndex(rec.prevHash)
		node.Height = rec.node.Height
		node.Version = rec.node.Version
		node.Timestamp = rec.node.Timestamp
		node.Bits = rec.node.Bits
		node.Nonce = rec.node.Nonce
		node.MerkleRoot = rec.node.MerkleRoot
		node.MerkleRootWithData = rec.node.MerkleRootWithData
		node.MerkleRootWithPrevData = rec.node.MerkleRootWithPrevData
		node.StakePrevout = rec.node.StakePrevout
		node.BlockSig = rec.node.BlockSig
		node.Status = rec.node.Status
		node.NumTx = rec.node.NumTx
		node.File = rec.node.File
		node.DataPos = rec.node.DataPos
		node.UndoPos = rec.node.UndoPos

		if !consensus.CheckProofOfWork(hash, node.Bits, b.params) {
			return errors.WithDetailf(ErrCorrupt, "proof of work check failed for %s", hash.String())
		}
		count++
	}

	log.WithFields(log.Fields{
		"module":   logModule,
		"blocks":   count,
		"duration": time.Since(startTime),
	}).Debug("loaded block index from database")
	return nil
}
