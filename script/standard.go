// Package script dissects output scripts far enough to classify who owns
// them. It is not an interpreter; only the standard templates the indexers
// care about are recognized.
package script

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160"
)

// Opcodes used by the recognized templates.
const (
	OpReturn      = 0x6a
	OpDup         = 0x76
	OpEqual       = 0x87
	OpEqualVerify = 0x88
	OpHash160     = 0xa9
	OpCheckSig    = 0xac

	// MagnaChain extensions.
	OpContract       = 0xc1
	OpContractChange = 0xc2
	OpTransBranch    = 0xc3

	opPushData1 = 0x4c
	opPushData2 = 0x4d
	opPushData4 = 0x4e
)

const maxScriptSize = 10000

// DestKind tags the result of ExtractDestination.
type DestKind int

const (
	// DestUnresolved marks a script no template matched.
	DestUnresolved DestKind = iota
	// DestKeyHash is a pay-to-pubkey-hash (or pay-to-pubkey) output.
	DestKeyHash
	// DestScriptHash is a pay-to-script-hash output.
	DestScriptHash
	// DestContract is a contract-owned output.
	DestContract
	// DestBranchTransfer is an output escrowed for a side branch.
	DestBranchTransfer
)

// Destination is the script-derived owner of an output: a kind tag plus the
// 20-byte key the indexers file it under.
type Destination struct {
	Kind DestKind
	Hash [20]byte
}

// Hash160 returns RIPEMD160(SHA256(b)), the address form of keys, scripts
// and branch identifiers.
func Hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// IsUnspendable reports whether the script can provably never be spent.
func IsUnspendable(script []byte) bool {
	return (len(script) > 0 && script[0] == OpReturn) || len(script) > maxScriptSize
}

// getOp reads one operation starting at pc, returning the opcode, its
// pushed data (nil for non-push opcodes) and the next offset. ok is false
// when the script is malformed.
func getOp(script []byte, pc int) (opcode byte, data []byte, next int, ok bool) {
	if pc >= len(script) {
		return 0, nil, pc, false
	}

	opcode = script[pc]
	pc++

	var size int
	switch {
	case opcode < opPushData1:
		size = int(opcode)
	case opcode == opPushData1:
		if pc+1 > len(script) {
			return 0, nil, pc, false
		}
		size = int(script[pc])
		pc++
	case opcode == opPushData2:
		if pc+2 > len(script) {
			return 0, nil, pc, false
		}
		size = int(script[pc]) | int(script[pc+1])<<8
		pc += 2
	case opcode == opPushData4:
		if pc+4 > len(script) {
			return 0, nil, pc, false
		}
		size = int(script[pc]) | int(script[pc+1])<<8 | int(script[pc+2])<<16 | int(script[pc+3])<<24
		pc += 4
	default:
		return opcode, nil, pc, true
	}

	if pc+size > len(script) {
		return 0, nil, pc, false
	}
	return opcode, script[pc : pc+size], pc + size, true
}

// ExtractDestination classifies the script's owner. The boolean is false
// only for DestUnresolved results.
func ExtractDestination(script []byte) (Destination, bool) {
	// pay-to-pubkey-hash: DUP HASH160 <20> EQUALVERIFY CHECKSIG
	if len(script) == 25 && script[0] == OpDup && script[1] == OpHash160 &&
		script[2] == 20 && script[23] == OpEqualVerify && script[24] == OpCheckSig {
		var d Destination
		d.Kind = DestKeyHash
		copy(d.Hash[:], script[3:23])
		return d, true
	}

	// pay-to-script-hash: HASH160 <20> EQUAL
	if len(script) == 23 && script[0] == OpHash160 && script[1] == 20 &&
		script[22] == OpEqual {
		var d Destination
		d.Kind = DestScriptHash
		copy(d.Hash[:], script[2:22])
		return d, true
	}

	// pay-to-pubkey: <33|65> CHECKSIG
	if (len(script) == 35 || len(script) == 67) &&
		script[0] == byte(len(script)-2) && script[len(script)-1] == OpCheckSig {
		return Destination{Kind: DestKeyHash, Hash: Hash160(script[1 : len(script)-1])}, true
	}

	opcode, _, pc, ok := getOp(script, 0)
	if !ok {
		return Destination{}, false
	}

	switch opcode {
	case OpContract, OpContractChange:
		// the contract id trails the opcode marker byte
		if len(script) < pc+1+20 {
			return Destination{}, false
		}
		var d Destination
		d.Kind = DestContract
		copy(d.Hash[:], script[len(script)-20:])
		return d, true

	case OpTransBranch:
		_, data, _, ok := getOp(script, pc)
		if !ok || len(data) != 32 {
			return Destination{}, false
		}
		return Destination{Kind: DestBranchTransfer, Hash: Hash160(data)}, true
	}

	return Destination{}, false
}
