package script

import (
	"bytes"
	"testing"
)

func p2pkhScript(hash20 []byte) []byte {
	script := []byte{OpDup, OpHash160, 20}
	script = append(script, hash20...)
	return append(script, OpEqualVerify, OpCheckSig)
}

func TestExtractDestination(t *testing.T) {
	hash := bytes.Repeat([]byte{0xaa}, 20)
	branchHash := bytes.Repeat([]byte{0xbb}, 32)

	p2sh := []byte{OpHash160, 20}
	p2sh = append(p2sh, hash...)
	p2sh = append(p2sh, OpEqual)

	contract := []byte{OpContract, 0x01}
	contract = append(contract, bytes.Repeat([]byte{0xcc}, 20)...)

	branch := []byte{OpTransBranch, 32}
	branch = append(branch, branchHash...)

	pubkey := append([]byte{33}, bytes.Repeat([]byte{0x02}, 33)...)
	p2pk := append(pubkey, OpCheckSig)

	cases := []struct {
		name   string
		script []byte
		kind   DestKind
		ok     bool
	}{
		{"p2pkh", p2pkhScript(hash), DestKeyHash, true},
		{"p2sh", p2sh, DestScriptHash, true},
		{"p2pk", p2pk, DestKeyHash, true},
		{"contract", contract, DestContract, true},
		{"branch", branch, DestBranchTransfer, true},
		{"empty", nil, DestUnresolved, false},
		{"opreturn", []byte{OpReturn, 0x01, 0x02}, DestUnresolved, false},
		{"truncated push", []byte{5, 0x01}, DestUnresolved, false},
	}

	for _, c := range cases {
		dest, ok := ExtractDestination(c.script)
		if ok != c.ok {
			t.Errorf("%s: ok = %v want %v", c.name, ok, c.ok)
			continue
		}
		if ok && dest.Kind != c.kind {
			t.Errorf("%s: kind = %v want %v", c.name, dest.Kind, c.kind)
		}
	}

	dest, ok := ExtractDestination(p2pkhScript(hash))
	if !ok || !bytes.Equal(dest.Hash[:], hash) {
		t.Errorf("p2pkh hash = %x want %x", dest.Hash, hash)
	}
}

func TestIsUnspendable(t *testing.T) {
	if !IsUnspendable([]byte{OpReturn}) {
		t.Error("OP_RETURN should be unspendable")
	}
	if !IsUnspendable(bytes.Repeat([]byte{0x51}, maxScriptSize+1)) {
		t.Error("oversize script should be unspendable")
	}
	if IsUnspendable(p2pkhScript(bytes.Repeat([]byte{0x01}, 20))) {
		t.Error("p2pkh should be spendable")
	}
}
