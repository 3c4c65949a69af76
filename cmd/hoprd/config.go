package main

import (
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname  = "data"
	defaultLogLevel     = "info"
	defaultConfigFile   = "hoprd.conf"
	defaultTicketAmount = 100
	defaultTicketWinPct = 100
)

// config mirrors lnd's flat, flags-tagged config struct (loadConfig in
// lnd.go), sized down to what this node actually needs: an identity
// keystore, a ticket policy, and logging/timing knobs. The three external
// collaborators (transport, chain, repository) have no flags here since
// no concrete implementation of any of them ships in this module; see
// wireCollaborators in collaborators.go.
type config struct {
	DataDir  string `long:"datadir" description:"directory holding the node's persisted identity keys"`
	LogLevel string `long:"loglevel" description:"debug|info|warn|error|critical"`

	TicketAmount int64   `long:"ticketamount" description:"HOPR tokens charged per remaining relay hop, before the win-probability inverse scaling"`
	TicketWinPct float64 `long:"ticketwinpct" description:"ticket win probability, 0..100"`

	ConfigFile string `short:"C" long:"configfile" description:"path to a config file"`
}

func defaultConfig() config {
	return config{
		DataDir:      defaultDataDirname,
		LogLevel:     defaultLogLevel,
		TicketAmount: defaultTicketAmount,
		TicketWinPct: defaultTicketWinPct,
		ConfigFile:   defaultConfigFile,
	}
}

// loadConfig parses command-line flags over the defaults, then a config
// file if one exists at ConfigFile, then command-line flags again so
// flags always win over the file (the same two-pass precedence lnd's
// loadConfig uses).
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	preParser := flags.NewParser(&cfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		fileParser := flags.NewParser(&cfg, flags.Default)
		if err := flags.NewIniParser(fileParser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flagParser := flags.NewParser(&cfg, flags.Default)
	if _, err := flagParser.Parse(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *config) keystorePath() string {
	return filepath.Join(c.DataDir, "identity.keys")
}
