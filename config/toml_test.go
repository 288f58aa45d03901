package config

import (
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestEnsureRoot(t *testing.T) {
	tmpDir, err := ioutil.TempDir("", "config-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	EnsureRoot(tmpDir, "mainnet")

	data, err := ioutil.ReadFile(path.Join(tmpDir, "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	checkConfig(t, string(data))
}

type tomlConfig struct {
	ChainID  string `toml:"chain_id"`
	LogLevel string `toml:"log_level"`
	DB       struct {
		Backend    string `toml:"db_backend"`
		Dir        string `toml:"db_dir"`
		BatchSize  int    `toml:"db_batch_size"`
		CrashRatio int    `toml:"db_crash_ratio"`
		TxIndex    bool   `toml:"tx_index"`
	} `toml:"db"`
}

func checkConfig(t *testing.T, configFile string) {
	var decoded tomlConfig
	if _, err := toml.Decode(configFile, &decoded); err != nil {
		t.Fatalf("default template does not parse: %v", err)
	}

	if decoded.ChainID != "mainnet" {
		t.Errorf("chain_id = %q want mainnet", decoded.ChainID)
	}
	if decoded.DB.Backend != "leveldb" {
		t.Errorf("db_backend = %q want leveldb", decoded.DB.Backend)
	}
	if decoded.DB.BatchSize != 16<<20 {
		t.Errorf("db_batch_size = %d want %d", decoded.DB.BatchSize, 16<<20)
	}
	if decoded.DB.TxIndex {
		t.Error("tx_index should default to off")
	}
}

func TestSelectNetwork(t *testing.T) {
	for _, network := range []string{"mainnet", "testnet", "solonet"} {
		var decoded tomlConfig
		if _, err := toml.Decode(selectNetwork(network), &decoded); err != nil {
			t.Fatalf("%s template does not parse: %v", network, err)
		}
	}
}
