package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	cli "gopkg.in/urfave/cli.v1"
)

var peersCommand = cli.Command{
	Name:  "peers",
	Usage: "list the peers currently known to a running sentryd",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "control-addr",
			Usage: "host:port of a running sentryd's control surface",
			Value: "127.0.0.1:8545",
		},
	},
	Action: listPeers,
}

type peerSummary struct {
	ID    string `json:"id"`
	Valid bool   `json:"valid"`
}

func listPeers(ctx *cli.Context) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/peers", ctx.String("control-addr")))
	if err != nil {
		return fmt.Errorf("sentryd peers: %w", err)
	}
	defer resp.Body.Close()

	var peers []peerSummary
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return fmt.Errorf("sentryd peers: decoding response: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Peer", "Status"})
	for _, p := range peers {
		status := color.RedString("pending")
		if p.Valid {
			status = color.GreenString("valid")
		}
		table.Append([]string{p.ID, status})
	}
	table.Render()
	return nil
}
