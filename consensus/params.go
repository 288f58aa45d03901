package consensus

import "github.com/holiman/uint256"

// Params holds the consensus constants the state layer needs.
type Params struct {
	ChainID  string
	PowLimit *uint256.Int
}

func mustTarget(hex string) *uint256.Int {
	t, err := uint256.FromHex(hex)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	// MainNetParams are the production network parameters.
	MainNetParams = Params{
		ChainID:  "mainnet",
		PowLimit: mustTarget("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
	}

	// TestNetParams relax the work bound for the public test network.
	TestNetParams = Params{
		ChainID:  "testnet",
		PowLimit: mustTarget("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
	}

	// SoloNetParams carry the loosest work bound, a target of up to
	// 2^255-1, for single-node setups and tests.
	SoloNetParams = Params{
		ChainID:  "solonet",
		PowLimit: mustTarget("0x7fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
	}
)
