// Command hoprctl is the CLI client for a running hoprd node, adapted
// from cmd/lncli's command-table structure (urfave/cli commands, results
// printed via a formatting table) but without a gRPC stub: spec.md
// section 1 leaves REST/gRPC API exposure external, so there is no wire
// client here. Only pubkey does real work (it reads the local keystore);
// every other command returns notWiredErr.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"
)

const defaultDataDirname = "data"

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[hoprctl] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "hoprctl"
	app.Usage = "control plane for a HOPR relay node"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Value: defaultDataDirname,
			Usage: "directory holding the node's persisted identity keys",
		},
	}
	app.Commands = []cli.Command{
		pubkeyCommand,
		openChannelCommand,
		fundChannelCommand,
		closeChannelCommand,
		withdrawCommand,
		announceCommand,
		registerSafeCommand,
		channelCommand,
		channelsFromCommand,
		channelsToCommand,
		balanceCommand,
		safeAllowanceCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func keystorePath(ctx *cli.Context) string {
	return filepath.Join(ctx.GlobalString("datadir"), "identity.keys")
}
