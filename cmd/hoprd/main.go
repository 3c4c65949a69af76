// Command hoprd wires and runs one HOPR mixnet relay node. The binary's
// shape is lnd.go's: loadConfig, then open the identity keystore, then
// build and start the node, then block until an interrupt or the node's
// own error channel fires (grounded on lndMain/main in lnd.go).
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"

	"github.com/hoprnet/hopr-relay/hopr"
	"github.com/hoprnet/hopr-relay/internal/identitystore"
)

func hoprdMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := initLogging(cfg.LogLevel); err != nil {
		return err
	}
	hoprdLog.Infof("starting hoprd, data dir %q", cfg.DataDir)

	offchain, onchain, err := identitystore.LoadOrCreate(cfg.keystorePath())
	if err != nil {
		return err
	}
	hoprdLog.Infof("node identity: onchain address %s", onchain.Address())

	collab, err := wireCollaborators(cfg)
	if err != nil {
		return err
	}

	nodeCfg := hopr.DefaultConfig()
	nodeCfg.Identity = offchain
	nodeCfg.Onchain = onchain
	nodeCfg.Ticket = hopr.TicketPolicy{
		UnitPrice: big.NewInt(cfg.TicketAmount),
		WinProb:   cfg.TicketWinPct / 100,
	}
	nodeCfg.Transport = collab.transport
	nodeCfg.Chain = collab.chainCln
	nodeCfg.Repo = collab.repo
	nodeCfg.PayloadGen = collab.payloadGen
	nodeCfg.TxExecutor = collab.txExec
	nodeCfg.ConfirmDepth = collab.depth

	node := hopr.New(nodeCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("hoprd: starting node: %w", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	<-interrupt
	hoprdLog.Info("received interrupt, shutting down")
	cancel()

	return node.Stop()
}

func main() {
	if err := hoprdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
