// Package config loads the rig core's YAML configuration.
//
// Values are layered: Default, then the file, then ROBOJAR_* environment
// variables (ROBOJAR_LEDGER_DIR, ROBOJAR_API_PORT, ...). Ledger locations,
// the valve count and the optional sinks are all explicit settings; no
// other package holds path constants of its own.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	paths := cfg.LedgerPath(cfg.Ledger.Valve)
package config
