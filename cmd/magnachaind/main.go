package main

import (
	"os"

	"github.com/tendermint/tmlibs/cli"

	"github.com/magnachain/magnachain/cmd/magnachaind/commands"
)

func main() {
	cmd := cli.PrepareBaseCmd(commands.RootCmd, "MGC", os.ExpandEnv("./.magnachaind"))
	cmd.Execute()
}
