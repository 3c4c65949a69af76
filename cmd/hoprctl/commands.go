package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"

	"github.com/hoprnet/hopr-relay/internal/identitystore"
)

// notWiredErr is what every command needing a live node returns: hoprctl
// has no RPC transport to dial (spec.md section 1 leaves REST/gRPC
// exposure external), so these commands document the call shape an
// embedder's own control-plane layer would implement, the way lncli's
// commands each map onto one lnrpc.LightningClient call.
var notWiredErr = fmt.Errorf("hoprctl: no control-plane connection wired for a running hoprd; this command shows the intended call shape only")

var pubkeyCommand = cli.Command{
	Name:  "pubkey",
	Usage: "print this node's offchain/onchain identity",
	Action: func(ctx *cli.Context) error {
		offchain, onchain, err := identitystore.Load(keystorePath(ctx))
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"field", "value"})
		t.AppendRow(table.Row{"onchain address", onchain.Address().String()})
		t.AppendRow(table.Row{"offchain pubkey", fmt.Sprintf("%x", offchain.Public().Bytes())})
		t.Render()
		return nil
	},
}

var openChannelCommand = cli.Command{
	Name:      "openchannel",
	Usage:     "open a channel to a destination with an initial balance",
	ArgsUsage: "dest balance",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var fundChannelCommand = cli.Command{
	Name:      "fundchannel",
	Usage:     "add balance to an existing channel",
	ArgsUsage: "channel_id balance",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var closeChannelCommand = cli.Command{
	Name:      "closechannel",
	Usage:     "close a channel by id",
	ArgsUsage: "channel_id",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var withdrawCommand = cli.Command{
	Name:      "withdraw",
	Usage:     "withdraw funds to an onchain address",
	ArgsUsage: "recipient amount",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var announceCommand = cli.Command{
	Name:  "announce",
	Usage: "announce this node's offchain identity on-chain",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var registerSafeCommand = cli.Command{
	Name:      "registersafe",
	Usage:     "bind this node's identity to a Safe module contract address",
	ArgsUsage: "safe_address",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var channelCommand = cli.Command{
	Name:      "channel",
	Usage:     "show the channel from src to dst",
	ArgsUsage: "src dst",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var channelsFromCommand = cli.Command{
	Name:      "channelsfrom",
	Usage:     "list outgoing channels from an address",
	ArgsUsage: "addr",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var channelsToCommand = cli.Command{
	Name:      "channelsto",
	Usage:     "list incoming channels to an address",
	ArgsUsage: "addr",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var balanceCommand = cli.Command{
	Name:      "balance",
	Usage:     "show this node's onchain balance for a currency",
	ArgsUsage: "currency_address",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}

var safeAllowanceCommand = cli.Command{
	Name:      "safeallowance",
	Usage:     "show this node's Safe module spending allowance",
	ArgsUsage: "safe_address",
	Action: func(ctx *cli.Context) error {
		return notWiredErr
	},
}
