package commands

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "github.com/magnachain/magnachain/config"
)

var initFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize config directory",
	Run:   initFiles,
}

func init() {
	initFilesCmd.Flags().String("chain_id", config.ChainID, "Select network type")
	RootCmd.AddCommand(initFilesCmd)
}

func initFiles(cmd *cobra.Command, args []string) {
	configFilePath := config.RootDir + "/config.toml"
	cfg.EnsureRoot(config.RootDir, config.ChainID)
	log.WithFields(log.Fields{
		"module": logModule,
		"config": configFilePath,
	}).Info("initialized magnachaind")
}
