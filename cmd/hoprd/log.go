package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/hopr"
	"github.com/hoprnet/hopr-relay/indexer"
	"github.com/hoprnet/hopr-relay/replay"
	"github.com/hoprnet/hopr-relay/session"
	"github.com/hoprnet/hopr-relay/surbbalancer"
)

var backendLog = btclog.NewBackend(os.Stdout)

var hoprdLog = backendLog.Logger("HPRD")

// initLogging installs one sublogger per package at level, the same
// per-subsystem btclog wiring lnd.go's logging does (grounded on lnd's
// UseLogger fan-out, just without the dozen-plus subsystem tags this
// node doesn't have).
func initLogging(level string) error {
	l, ok := btclog.LevelFromString(level)
	if !ok {
		l = btclog.InfoLvl
	}

	for _, sub := range []struct {
		tag string
		use func(btclog.Logger)
	}{
		{"NODE", hopr.UseLogger},
		{"ACTN", action.UseLogger},
		{"IDXR", indexer.UseLogger},
		{"RPLY", replay.UseLogger},
		{"SESS", session.UseLogger},
		{"SRBB", surbbalancer.UseLogger},
	} {
		logger := backendLog.Logger(sub.tag)
		logger.SetLevel(l)
		sub.use(logger)
	}

	hoprdLog.SetLevel(l)
	return nil
}
