package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
)

var (
	// CommonConfig means config object
	CommonConfig *Config
)

type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`
	// Options for services
	DB *DBConfig `mapstructure:"db"`
}

// Default configurable parameters.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		DB:         DefaultDBConfig(),
	}
}

// Set the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

//-----------------------------------------------------------------------------
// BaseConfig
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	//The alias of the node
	NodeAlias string `mapstructure:"node_alias"`

	//The ID of the network to json
	ChainID string `mapstructure:"chain_id"`

	//log level to set
	LogLevel string `mapstructure:"log_level"`

	// log file name
	LogFile string `mapstructure:"log_file"`
}

// Default configurable base parameters.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		NodeAlias: "",
		ChainID:   "mainnet",
		LogLevel:  "info",
	}
}

// DBConfig holds the chain-state database options.
type DBConfig struct {
	// Database backend: leveldb | memdb
	Backend string `mapstructure:"db_backend"`

	// Database directory, relative to the root dir
	Path string `mapstructure:"db_dir"`

	// Cache holds the per-store cache budget in bytes.
	Cache int `mapstructure:"db_cache"`

	// BatchSize is the partial-flush threshold of a durable commit, in
	// bytes.
	BatchSize int `mapstructure:"db_batch_size"`

	// CrashRatio aborts the process with probability 1/CrashRatio after
	// each partial flush. Zero disables the fault injection.
	CrashRatio int `mapstructure:"db_crash_ratio"`

	// Reindex forces a rebuild of the block index from block files.
	Reindex bool `mapstructure:"reindex"`

	// TxIndex maintains the transaction position index.
	TxIndex bool `mapstructure:"tx_index"`
}

// DefaultDBConfig returns the production database settings.
func DefaultDBConfig() *DBConfig {
	return &DBConfig{
		Backend:   "leveldb",
		Path:      "data",
		Cache:     256 << 20,
		BatchSize: 16 << 20,
	}
}

func (cfg *Config) DBDir() string {
	return rootify(cfg.DB.Path, cfg.RootDir)
}

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// DefaultDataDir is the default data directory to use for the databases
// and other persistence requirements.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := homeDir()
	if home == "" {
		return "./.magnachain"
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "MagnaChain")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "MagnaChain")
	default:
		return filepath.Join(home, ".magnachain")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
