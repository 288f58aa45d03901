package bc

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/magnachain/magnachain/errors"
)

// Hash is a 32-byte value stored as four big-endian uint64 words. It is
// used for block hashes, transaction hashes, and merkle nodes.
type Hash struct {
	V0, V1, V2, V3 uint64
}

// NewHash convert the input byte array to hash
func NewHash(b32 [32]byte) (h Hash) {
	h.V0 = binary.BigEndian.Uint64(b32[0:8])
	h.V1 = binary.BigEndian.Uint64(b32[8:16])
	h.V2 = binary.BigEndian.Uint64(b32[16:24])
	h.V3 = binary.BigEndian.Uint64(b32[24:32])
	return h
}

// Byte32 return the byte array representation
func (h Hash) Byte32() (b32 [32]byte) {
	binary.BigEndian.PutUint64(b32[0:8], h.V0)
	binary.BigEndian.PutUint64(b32[8:16], h.V1)
	binary.BigEndian.PutUint64(b32[16:24], h.V2)
	binary.BigEndian.PutUint64(b32[24:32], h.V3)
	return b32
}

// MarshalText satisfies the TextMarshaler interface.
// It returns the hash as a hex-encoded string.
func (h Hash) MarshalText() ([]byte, error) {
	b := h.Byte32()
	v := make([]byte, 64)
	hex.Encode(v, b[:])
	return v, nil
}

// UnmarshalText satisfies the TextUnmarshaler interface.
// It decodes hex data from b into h.
func (h *Hash) UnmarshalText(v []byte) error {
	var b [32]byte
	if len(v) != 64 {
		return errors.Wrapf(errBadHashLen, "got %d bytes", len(v))
	}
	if _, err := hex.Decode(b[:], v); err != nil {
		return err
	}
	*h = NewHash(b)
	return nil
}

// UnmarshalJSON satisfies the json.Unmarshaler interface.
// If b is a JSON-encoded null, it copies the zero-value into h. Otherwise, it
// decodes hex data from b into h.
func (h *Hash) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*h = Hash{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return errBadHashLen
	}
	return h.UnmarshalText(b[1 : len(b)-1])
}

// MarshalJSON satisfies the json.Marshaler interface.
func (h Hash) MarshalJSON() ([]byte, error) {
	b, err := h.MarshalText()
	if err != nil {
		return nil, err
	}
	return []byte(`"` + string(b) + `"`), nil
}

var errBadHashLen = errors.New("bad hash length")

// Bytes returns the byte representation
func (h Hash) Bytes() []byte {
	b32 := h.Byte32()
	return b32[:]
}

// String returns the hex-encoded representation
func (h Hash) String() string {
	b, _ := h.MarshalText()
	return string(b)
}

// WriteTo satisfies the io.WriterTo interface.
func (h Hash) WriteTo(w io.Writer) (int64, error) {
	b32 := h.Byte32()
	n, err := w.Write(b32[:])
	return int64(n), err
}

// ReadFrom satisfies the io.ReaderFrom interface.
func (h *Hash) ReadFrom(r io.Reader) (int64, error) {
	var b32 [32]byte
	n, err := io.ReadFull(r, b32[:])
	if err != nil {
		return int64(n), err
	}
	*h = NewHash(b32)
	return int64(n), nil
}

// IsZero tells whether a Hash pointer is nil or points to an all-zero hash.
func (h *Hash) IsZero() bool {
	if h == nil {
		return true
	}
	return *h == Hash{}
}
