package storage

import (
	"bytes"
	"testing"
)

func TestVLQRoundTrip(t *testing.T) {
	cases := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x00}},
		{129, []byte{0x80, 0x01}},
		{255, []byte{0x80, 0x7f}},
		{256, []byte{0x81, 0x00}},
		{65535, []byte{0x82, 0xfe, 0x7f}},
	}

	for _, c := range cases {
		buf := make([]byte, SerializeSizeVLQ(c.n))
		if n := PutVLQ(buf, c.n); n != len(c.want) {
			t.Errorf("PutVLQ(%d) wrote %d bytes want %d", c.n, n, len(c.want))
		}
		if !bytes.Equal(buf, c.want) {
			t.Errorf("PutVLQ(%d) = %x want %x", c.n, buf, c.want)
		}

		got, read := DeserializeVLQ(buf)
		if got != c.n || read != len(c.want) {
			t.Errorf("DeserializeVLQ(%x) = %d,%d want %d,%d", buf, got, read, c.n, len(c.want))
		}
	}
}

func TestAmountCompression(t *testing.T) {
	amounts := []uint64{0, 1, 9, 1000, 10000, 12345678, 50000000, 100000000, 500000000, 1000000000, 20999999999999999}
	for _, amt := range amounts {
		if got := decompressAmount(compressAmount(amt)); got != amt {
			t.Errorf("amount %d round-tripped to %d", amt, got)
		}
	}

	// spot-check known encodings
	known := map[uint64]uint64{
		0:          0,
		1000:       4,
		10000:      5,
		12345678:   111111101,
		50000000:   48,
		100000000:  9,
		500000000:  49,
		1000000000: 10,
	}
	for amt, want := range known {
		if got := compressAmount(amt); got != want {
			t.Errorf("compressAmount(%d) = %d want %d", amt, got, want)
		}
	}
}

func TestCoinRoundTrip(t *testing.T) {
	cases := []*Coin{
		NewCoin(5000000000, []byte{0x76, 0xa9, 0x14, 0x01, 0x02, 0x88, 0xac}, 0, true),
		NewCoin(1, nil, 1<<30, false),
		NewCoin(0, []byte{0x6a}, 7, false),
	}

	for i, c := range cases {
		got, err := DeserializeCoin(SerializeCoin(c))
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got.Amount != c.Amount || got.BlockHeight != c.BlockHeight || got.IsCoinBase != c.IsCoinBase {
			t.Errorf("case %d: got %+v want %+v", i, got, c)
		}
		if !bytes.Equal(got.Script, c.Script) {
			t.Errorf("case %d: script %x want %x", i, got.Script, c.Script)
		}
	}
}

func TestCoinDeserializeErrors(t *testing.T) {
	for _, b := range [][]byte{{}, {0x02}, {0x02, 0x04}, {0x02, 0x04, 0x09, 0x01}} {
		if _, err := DeserializeCoin(b); err == nil {
			t.Errorf("DeserializeCoin(%x) succeeded on truncated input", b)
		}
	}
}

func TestLegacyCoinsRoundTrip(t *testing.T) {
	script := []byte{0x76, 0xa9, 0x14, 0xaa, 0x88, 0xac}
	cases := []*LegacyCoins{
		{
			IsCoinBase:  true,
			BlockHeight: 0,
			Outputs:     []*LegacyTxOut{{Amount: 5000000000, Script: script}},
		},
		{
			BlockHeight: 120891,
			Outputs:     []*LegacyTxOut{nil, {Amount: 1000, Script: script}},
		},
		{
			BlockHeight: 99,
			Outputs: []*LegacyTxOut{
				nil, nil, nil, nil,
				{Amount: 384, Script: script},
				nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
				{Amount: 2, Script: script},
			},
		},
	}

	for i, c := range cases {
		got, err := DeserializeLegacyCoins(SerializeLegacyCoins(c))
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got.IsCoinBase != c.IsCoinBase || got.BlockHeight != c.BlockHeight {
			t.Errorf("case %d: got %+v want %+v", i, got, c)
		}
		// the decoder materializes at least two slots, extras must be spent
		if len(got.Outputs) < len(c.Outputs) {
			t.Fatalf("case %d: %d outputs want at least %d", i, len(got.Outputs), len(c.Outputs))
		}
		for j := len(c.Outputs); j < len(got.Outputs); j++ {
			if got.Outputs[j] != nil {
				t.Errorf("case %d output %d: phantom unspent output", i, j)
			}
		}
		for j := range c.Outputs {
			switch {
			case c.Outputs[j] == nil:
				if got.Outputs[j] != nil {
					t.Errorf("case %d output %d: want spent", i, j)
				}
			case got.Outputs[j] == nil:
				t.Errorf("case %d output %d: lost", i, j)
			default:
				if got.Outputs[j].Amount != c.Outputs[j].Amount {
					t.Errorf("case %d output %d: amount %d want %d", i, j, got.Outputs[j].Amount, c.Outputs[j].Amount)
				}
			}
		}
	}
}
