package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omnilayer/omnicore/core"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database/leveldb"
	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/interpreter"
	"github.com/omnilayer/omnicore/tally"
	"github.com/omnilayer/omnicore/util/panics"
)

// noopChainView and fatalAbort stand in for the host collaborators spec §6.3
// leaves to an external integration (host-chain block/tx delivery, RPC,
// p2p, all explicitly out of scope). Wiring a real host driver against
// core.Context's OnBlockConnected/OnBlockDisconnected/OnTxAdded/OnTxRemoved
// is the job of whatever embeds this module against an actual full node;
// this binary only proves the wiring compiles and the state store survives
// a cold start.
type noopChainView struct{}

func (noopChainView) TipHeight() uint64                   { return 0 }
func (noopChainView) TipTime() int64                      { return 0 }
func (noopChainView) BlockAt(uint64) (host.Block, bool)   { return host.Block{}, false }
func (noopChainView) ReadBlock(uint64) (host.Block, bool) { return host.Block{}, false }
func (noopChainView) IsInitialSync() bool                 { return false }

type fatalAbort struct {
	overrideForcedShutdown bool
	dbDir                  string
}

func (a fatalAbort) AbortNode(message string) {
	cnfgLog.Criticalf("fatal consensus error, aborting: %s", message)
	if !a.overrideForcedShutdown {
		cnfgLog.Warnf("removing %s before exiting; -overrideforcedshutdown skips this", a.dbDir)
		if err := os.RemoveAll(a.dbDir); err != nil {
			cnfgLog.Errorf("failed to remove data directory: %+v", err)
		}
	}
	panics.Exit(cnfgLog, message)
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := initLog(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.StartClean {
		cnfgLog.Warnf("-startclean specified, removing %s", cfg.dbDir())
		if err := os.RemoveAll(cfg.dbDir()); err != nil {
			cnfgLog.Criticalf("failed to remove data directory: %+v", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(cfg.dbDir(), 0700); err != nil {
		cnfgLog.Criticalf("failed to create data directory: %+v", err)
		os.Exit(1)
	}

	db, err := leveldb.Open(cfg.dbDir())
	if err != nil {
		cnfgLog.Criticalf("failed to open state database: %+v", err)
		os.Exit(1)
	}
	defer db.Close()

	ictx := &interpreter.Context{
		DB:                dbaccess.NewContext(db),
		Tally:             tally.New(),
		Params:            cfg.netParams(),
		AdminAllowSender:  cfg.adminAllowSender(),
		AdminIgnoreSender: cfg.ActivationIgnoreSender,
	}

	if cfg.ActivationAllowSender != "" || cfg.ActivationIgnoreSender {
		if err := interpreter.PostAdminOverrideAlert(ictx, "admin sender authorization relaxed by node configuration"); err != nil {
			cnfgLog.Errorf("failed to post admin override alert: %+v", err)
		}
	}

	abort := fatalAbort{overrideForcedShutdown: cfg.OverrideForcedShutdown, dbDir: cfg.dbDir()}
	coreCtx := core.New(ictx, noopChainView{}, abort, cfg.SkipStoringState)
	coreCtx.Start()
	coreCtx.StartProgressTicker(time.Duration(cfg.ProgressFrequency) * time.Second)

	cnfgLog.Infof("omnicored ready on %s, waiting for a host integration to drive block/tx callbacks", cfg.netParams().Name)
	cnfgLog.Debugf("seed block filter=%t (consulted by the host integration's sync loop, not this binary)", cfg.SeedBlockFilter)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	cnfgLog.Infof("shutdown requested")
	coreCtx.RequestShutdown()
	if err := coreCtx.Stop(); err != nil {
		cnfgLog.Errorf("error during shutdown: %+v", err)
	}
}
