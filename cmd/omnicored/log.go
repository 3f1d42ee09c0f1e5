package main

import (
	"github.com/omnilayer/omnicore/logs"
)

var cnfgLog, _ = logs.Get(logs.Tags.CNFG)

func initLog(cfg *config) error {
	if err := logs.InitLogRotators(cfg.logFile(), cfg.errLogFile()); err != nil {
		return err
	}
	return logs.ParseAndSetDebugLevels(cfg.DebugLevel)
}
