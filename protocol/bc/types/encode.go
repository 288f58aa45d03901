package types

import (
	"encoding/binary"
	"io"

	"github.com/magnachain/magnachain/errors"
)

var errCountTooLarge = errors.New("serialized count exceeds sanity bound")

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// writeCompactSize writes the classic wire-format variable-length count:
// one byte below 0xfd, otherwise a marker byte followed by a little-endian
// 16-, 32- or 64-bit value.
func writeCompactSize(w io.Writer, v uint64) error {
	var buf [9]byte
	switch {
	case v < 0xfd:
		buf[0] = byte(v)
		_, err := w.Write(buf[:1])
		return err
	case v <= 0xffff:
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:3], uint16(v))
		_, err := w.Write(buf[:3])
		return err
	case v <= 0xffffffff:
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:5], uint32(v))
		_, err := w.Write(buf[:5])
		return err
	default:
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:9], v)
		_, err := w.Write(buf[:9])
		return err
	}
}

func readCompactSize(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, err
	}

	switch buf[0] {
	case 0xfd:
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(buf[:2])), nil
	case 0xfe:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(buf[:4])), nil
	case 0xff:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(buf[:8]), nil
	default:
		return uint64(buf[0]), nil
	}
}
