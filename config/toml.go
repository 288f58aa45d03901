package config

import (
	"path"

	cmn "github.com/tendermint/tmlibs/common"
)

/****** these are for production settings ***********/
func EnsureRoot(rootDir string, network string) {
	cmn.EnsureDir(rootDir, 0700)
	cmn.EnsureDir(rootDir+"/data", 0700)

	configFilePath := path.Join(rootDir, "config.toml")

	// Write default config file if missing.
	if !cmn.FileExists(configFilePath) {
		cmn.MustWriteFile(configFilePath, []byte(selectNetwork(network)), 0644)
	}
}

var defaultConfigTmpl = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml
node_alias = ""
log_level = "info"
`

var dbConfigTmpl = `
[db]
db_backend = "leveldb"
db_dir = "data"
db_cache = 268435456
db_batch_size = 16777216
db_crash_ratio = 0
reindex = false
tx_index = false
`

var mainNetConfigTmpl = `chain_id = "mainnet"
`

var testNetConfigTmpl = `chain_id = "testnet"
`

var soloNetConfigTmpl = `chain_id = "solonet"
`

// Select network seeds to merge a new string.
func selectNetwork(network string) string {
	switch network {
	case "mainnet":
		return defaultConfigTmpl + mainNetConfigTmpl + dbConfigTmpl
	case "testnet":
		return defaultConfigTmpl + testNetConfigTmpl + dbConfigTmpl
	default:
		return defaultConfigTmpl + soloNetConfigTmpl + dbConfigTmpl
	}
}
