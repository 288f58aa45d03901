package database

import (
	"github.com/magnachain/magnachain/database/storage"
	"github.com/magnachain/magnachain/errors"
	"github.com/magnachain/magnachain/protocol/bc"
	"github.com/magnachain/magnachain/protocol/state"
)

func appendVLQ(out []byte, n uint64) []byte {
	var buf [10]byte
	return append(out, buf[:storage.PutVLQ(buf[:], n)]...)
}

func readVLQ(serialized []byte, offset int) (uint64, int, error) {
	if offset >= len(serialized) {
		return 0, offset, errors.WithDetail(ErrCorrupt, "truncated contract record")
	}
	v, read := storage.DeserializeVLQ(serialized[offset:])
	return v, offset + read, nil
}

func readBytes(serialized []byte, offset int) ([]byte, int, error) {
	n, offset, err := readVLQ(serialized, offset)
	if err != nil {
		return nil, offset, err
	}
	if uint64(len(serialized)-offset) < n {
		return nil, offset, errors.WithDetail(ErrCorrupt, "truncated contract record")
	}
	out := make([]byte, n)
	copy(out, serialized[offset:])
	return out, offset + int(n), nil
}

func serializeContractInfo(info *state.ContractInfo) []byte {
	out := appendVLQ(nil, uint64(len(info.Code)))
	out = append(out, info.Code...)
	out = appendVLQ(out, uint64(len(info.Storage)))
	for k, v := range info.Storage {
		out = appendVLQ(out, uint64(len(k)))
		out = append(out, k...)
		out = appendVLQ(out, uint64(len(v)))
		out = append(out, v...)
	}
	return out
}

func deserializeContractInfo(serialized []byte) (*state.ContractInfo, error) {
	code, offset, err := readBytes(serialized, 0)
	if err != nil {
		return nil, err
	}

	count, offset, err := readVLQ(serialized, offset)
	if err != nil {
		return nil, err
	}

	info := state.NewContractInfo(code)
	for i := uint64(0); i < count; i++ {
		var k, v []byte
		if k, offset, err = readBytes(serialized, offset); err != nil {
			return nil, err
		}
		if v, offset, err = readBytes(serialized, offset); err != nil {
			return nil, err
		}
		info.Storage[string(k)] = v
	}
	return info, nil
}

func serializeDelta(delta *state.ContractDelta) []byte {
	created := byte(0)
	if delta.Created {
		created = 1
	}
	out := []byte{created}
	out = appendVLQ(out, uint64(len(delta.Prev)))
	for k, v := range delta.Prev {
		out = appendVLQ(out, uint64(len(k)))
		out = append(out, k...)
		if v == nil {
			out = append(out, 0)
			continue
		}
		out = append(out, 1)
		out = appendVLQ(out, uint64(len(v)))
		out = append(out, v...)
	}
	return out
}

func deserializeDelta(serialized []byte) (*state.ContractDelta, error) {
	if len(serialized) == 0 {
		return nil, errors.WithDetail(ErrCorrupt, "empty contract delta")
	}

	delta := &state.ContractDelta{
		Created: serialized[0] == 1,
		Prev:    make(map[string][]byte),
	}

	count, offset, err := readVLQ(serialized, 1)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		var k []byte
		if k, offset, err = readBytes(serialized, offset); err != nil {
			return nil, err
		}
		if offset >= len(serialized) {
			return nil, errors.WithDetail(ErrCorrupt, "truncated contract delta")
		}
		present := serialized[offset]
		offset++
		if present == 0 {
			delta.Prev[string(k)] = nil
			continue
		}
		var v []byte
		if v, offset, err = readBytes(serialized, offset); err != nil {
			return nil, err
		}
		delta.Prev[string(k)] = v
	}
	return delta, nil
}

func serializeHeightEntries(entries []heightEntry) []byte {
	out := appendVLQ(nil, uint64(len(entries)))
	for i := range entries {
		out = append(out, entries[i].blockHash.Bytes()...)
		if entries[i].delta == nil {
			out = append(out, 0)
			continue
		}
		out = append(out, 1)
		d := serializeDelta(entries[i].delta)
		out = appendVLQ(out, uint64(len(d)))
		out = append(out, d...)
	}
	return out
}

func deserializeHeightEntries(serialized []byte) ([]heightEntry, error) {
	count, offset, err := readVLQ(serialized, 0)
	if err != nil {
		return nil, err
	}

	entries := make([]heightEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(serialized)-offset < 33 {
			return nil, errors.WithDetail(ErrCorrupt, "truncated contract height entry")
		}
		var b32 [32]byte
		copy(b32[:], serialized[offset:offset+32])
		offset += 32

		entry := heightEntry{blockHash: bc.NewHash(b32)}
		present := serialized[offset]
		offset++
		if present == 1 {
			var d []byte
			if d, offset, err = readBytes(serialized, offset); err != nil {
				return nil, err
			}
			if entry.delta, err = deserializeDelta(d); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
