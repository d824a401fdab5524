package main

import (
	"os"

	"github.com/naoina/toml"
)

// Config is the on-disk configuration for a sentryd instance: which eth/64
// network to present, where to listen for peers, and where to expose the
// control-plane HTTP/WS surface.
type Config struct {
	ClientID   string `toml:"client_id"`
	ListenAddr string `toml:"listen_addr"`
	ControlAddr string `toml:"control_addr"`
	NetworkID  uint64 `toml:"network_id"`
	GenesisHex string `toml:"genesis_hash"`
	StaticPeers []string `toml:"static_peers"`
}

func defaultConfig() Config {
	return Config{
		ClientID:    "sentryd/v0.1.0",
		ListenAddr:  ":30303",
		ControlAddr: "127.0.0.1:8545",
		NetworkID:   1,
	}
}

// loadConfig reads a TOML config file, falling back to defaultConfig values
// for any field the file leaves unset.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
