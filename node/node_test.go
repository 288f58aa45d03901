package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	cfg "github.com/magnachain/magnachain/config"
)

func testConfig(t *testing.T) *cfg.Config {
	config := cfg.DefaultConfig()
	config.DB.Backend = "memdb"
	config.SetRoot(t.TempDir())
	return config
}

func TestNodeLifecycle(t *testing.T) {
	n, err := NewNode(testConfig(t), nil)
	require.NoError(t, err)

	require.NotNil(t, n.Store())
	require.NotNil(t, n.Store().CoinDB())
	require.NotNil(t, n.Store().BlockTree())
	require.NotNil(t, n.BlockIndex())

	require.False(t, n.interruptRequested())
	n.RequestShutdown()
	require.True(t, n.interruptRequested())

	n.Stop()
}

func TestNodeReindexAndTxIndexFlags(t *testing.T) {
	config := testConfig(t)
	config.DB.Reindex = true
	config.DB.TxIndex = true

	n, err := NewNode(config, nil)
	require.NoError(t, err)
	defer n.Stop()

	require.True(t, n.Store().BlockTree().IsReindexing())
	v, exists := n.Store().BlockTree().ReadFlag("txindex")
	require.True(t, exists)
	require.True(t, v)
}

func TestParamsFor(t *testing.T) {
	require.Equal(t, "testnet", paramsFor("testnet").ChainID)
	require.Equal(t, "solonet", paramsFor("solonet").ChainID)
	require.Equal(t, "mainnet", paramsFor("anything-else").ChainID)
}
