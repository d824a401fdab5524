// Command sentryd runs a standalone eth/64 sentry: it accepts RLPx peer
// connections, negotiates Hello and Status, answers header/body requests,
// and exposes peer state and an outbound-event stream over HTTP/WS.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/forkid"
	"github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/ethsentry/sentry/eth64"
	"github.com/ethsentry/sentry/rlpx"
	"github.com/ethsentry/sentry/sentry"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a sentryd TOML config file",
		Value: "sentryd.toml",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity (0=silent ... 4=debug, 5=trace)",
		Value: 3,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "sentryd"
	app.Usage = "standalone eth/64 RLPx sentry"
	app.Flags = []cli.Flag{configFlag, verbosityFlag}
	app.Commands = []cli.Command{peersCommand}
	app.Action = runSentry

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSentry(ctx *cli.Context) error {
	setupLogging(ctx.Int(verbosityFlag.Name))

	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		log.Warn("sentryd: using default config", "reason", err)
	}

	genesis := common.HexToHash(cfg.GenesisHex)
	backend := newDemoBackend(cfg.NetworkID, genesis)

	server := eth64.NewCapabilityServer(backend, backend, cfg.NetworkID, genesis, func(uint64) forkid.Filter {
		return acceptAnyForkID
	})
	server.RefreshStatusNow()
	server.Start()
	defer server.Stop()

	local := rlpx.HelloInfo{
		ClientID: cfg.ClientID,
		Caps:     rlpx.Capabilities{eth64.Capability()},
	}
	manager := sentry.NewManager(server, local)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("sentryd: listening on %s: %w", cfg.ListenAddr, err)
	}
	log.Info("sentryd: listening for peers", "addr", cfg.ListenAddr)
	go acceptPeers(listener, manager)

	control := sentry.NewHTTPControlServer(manager)
	log.Info("sentryd: control surface listening", "addr", cfg.ControlAddr)
	return http.ListenAndServe(cfg.ControlAddr, control)
}

func acceptPeers(listener net.Listener, manager *sentry.Manager) {
	var nextID uint64
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Error("sentryd: accept failed", "err", err)
			return
		}
		nextID++
		id := eth64.PeerID(fmt.Sprintf("%s-%d", conn.RemoteAddr(), nextID))
		transport := newFrameConnTransport(conn)
		go func() {
			if err := manager.AddPeer(id, transport); err != nil {
				log.Debug("sentryd: peer rejected", "peer", id, "err", err)
			}
		}()
	}
}
