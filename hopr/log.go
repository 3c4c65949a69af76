package hopr

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger installs a logger for the top-level node package.
func UseLogger(l btclog.Logger) {
	log = l
}
