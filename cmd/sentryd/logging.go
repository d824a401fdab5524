package main

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
)

func setupLogging(verbosity int) {
	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), handler))
}
