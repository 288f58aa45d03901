package state

import (
	"bytes"
	"testing"
)

func cid(n byte) (id ContractID) {
	id[0] = n
	return id
}

func TestContractContextCommit(t *testing.T) {
	ctx := NewContractContext()

	base := NewContractInfo([]byte("code"))
	base.Storage["k1"] = []byte("v1")
	base.Storage["k2"] = []byte("v2")
	ctx.SetData(cid(1), base)

	staged := NewContractInfo([]byte("code"))
	staged.Storage["k1"] = []byte("v1'")
	staged.Storage["k2"] = nil // delete
	staged.Storage["k3"] = []byte("v3")
	ctx.SetCache(cid(1), staged)
	ctx.Commit()

	info, ok := ctx.GetData(cid(1))
	if !ok {
		t.Fatal("contract lost on commit")
	}
	if !bytes.Equal(info.Storage["k1"], []byte("v1'")) {
		t.Errorf("k1 = %q want v1'", info.Storage["k1"])
	}
	if _, ok := info.Storage["k2"]; ok {
		t.Error("k2 should be deleted")
	}
	if !bytes.Equal(info.Storage["k3"], []byte("v3")) {
		t.Errorf("k3 = %q want v3", info.Storage["k3"])
	}

	delta := ctx.Deltas()[cid(1)]
	if delta == nil || delta.Created {
		t.Fatalf("delta = %+v want update delta", delta)
	}

	// applying the reverse delta restores the original storage
	restored := delta.Apply(info)
	if !bytes.Equal(restored.Storage["k1"], []byte("v1")) {
		t.Errorf("restored k1 = %q want v1", restored.Storage["k1"])
	}
	if !bytes.Equal(restored.Storage["k2"], []byte("v2")) {
		t.Errorf("restored k2 = %q want v2", restored.Storage["k2"])
	}
	if _, ok := restored.Storage["k3"]; ok {
		t.Error("restored state should not hold k3")
	}
}

func TestContractContextCreateAndDiscard(t *testing.T) {
	ctx := NewContractContext()

	staged := NewContractInfo([]byte("new code"))
	staged.Storage["k"] = []byte("v")
	ctx.SetCache(cid(2), staged)
	ctx.Commit()

	delta := ctx.Deltas()[cid(2)]
	if delta == nil || !delta.Created {
		t.Fatalf("delta = %+v want created", delta)
	}
	info, _ := ctx.GetData(cid(2))
	if delta.Apply(info) != nil {
		t.Fatal("undoing a creation must remove the contract")
	}

	// a failed transaction's cache is discarded wholesale
	ctx.SetCache(cid(3), NewContractInfo(nil))
	ctx.ClearCache()
	if _, ok := ctx.GetData(cid(3)); ok {
		t.Fatal("discarded cache leaked into data")
	}
}

func TestContractContextFirstTouchWins(t *testing.T) {
	ctx := NewContractContext()
	base := NewContractInfo(nil)
	base.Storage["k"] = []byte("original")
	ctx.SetData(cid(1), base)

	// two transactions touch the same key; the delta must remember the
	// pre-block value, not the intermediate one
	s1 := NewContractInfo(nil)
	s1.Storage["k"] = []byte("first")
	ctx.SetCache(cid(1), s1)
	ctx.Commit()

	s2 := NewContractInfo(nil)
	s2.Storage["k"] = []byte("second")
	ctx.SetCache(cid(1), s2)
	ctx.Commit()

	info, _ := ctx.GetData(cid(1))
	restored := ctx.Deltas()[cid(1)].Apply(info)
	if !bytes.Equal(restored.Storage["k"], []byte("original")) {
		t.Errorf("restored k = %q want original", restored.Storage["k"])
	}
}

func TestDeltaAbsorb(t *testing.T) {
	// newer delta restores k=b, older restores k=a and j=x; the
	// composition must restore the older values
	newer := &ContractDelta{Prev: map[string][]byte{"k": []byte("b")}}
	older := &ContractDelta{Prev: map[string][]byte{"k": []byte("a"), "j": []byte("x")}}

	newer.Absorb(older)
	if !bytes.Equal(newer.Prev["k"], []byte("a")) {
		t.Errorf("absorbed k = %q want a", newer.Prev["k"])
	}
	if !bytes.Equal(newer.Prev["j"], []byte("x")) {
		t.Errorf("absorbed j = %q want x", newer.Prev["j"])
	}
}

func TestCoinAmountCache(t *testing.T) {
	cache := NewCoinAmountCache()
	id := cid(9)

	cache.Add(id, 100)
	if err := cache.Sub(id, 40); err != nil {
		t.Fatal(err)
	}
	if got := cache.Amount(id); got != 60 {
		t.Fatalf("amount = %d want 60", got)
	}
	if err := cache.Sub(id, 61); err == nil {
		t.Fatal("overdraw must fail")
	}
	if got := cache.Amount(id); got != 60 {
		t.Fatalf("failed overdraw changed balance to %d", got)
	}
}
