package commands

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/magnachain/magnachain/node"
)

const logModule = "cmd"

var runNodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the magnachaind",
	RunE:  runNode,
}

func init() {
	runNodeCmd.Flags().String("chain_id", config.ChainID, "Select network type")
	runNodeCmd.Flags().String("log_level", config.LogLevel, "Select log level (debug, info, warn, error or fatal)")

	runNodeCmd.Flags().String("db.db_backend", config.DB.Backend, "Database backend (leveldb | memdb)")
	runNodeCmd.Flags().Int("db.db_cache", config.DB.Cache, "Per-store database cache budget in bytes")
	runNodeCmd.Flags().Int("db.db_batch_size", config.DB.BatchSize, "Durable commit partial-flush threshold in bytes")
	runNodeCmd.Flags().Int("db.db_crash_ratio", config.DB.CrashRatio, "Abort with probability 1/N after partial flushes (0 disables)")
	runNodeCmd.Flags().Bool("db.reindex", config.DB.Reindex, "Force a block index rebuild")
	runNodeCmd.Flags().Bool("db.tx_index", config.DB.TxIndex, "Maintain the transaction position index")

	RootCmd.AddCommand(runNodeCmd)
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	setLogLevel(config.LogLevel)

	n, err := node.NewNode(config, nil)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"module":   logModule,
		"chain_id": config.ChainID,
	}).Info("magnachaind started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	n.Stop()
	return nil
}
