package actor

import "github.com/btcsuite/btclog/v2"

// log is the package-level subsystem logger (lnd/btcsuite convention).
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used for actor lifecycle events
// (registration, message dispatch, shutdown).
func UseLogger(logger btclog.Logger) {
	log = logger
}
