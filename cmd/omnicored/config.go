package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/omni"
)

const (
	defaultLogFilename    = "omnicored.log"
	defaultErrLogFilename = "omnicored_err.log"
	defaultDBDirname      = "data"
)

// defaultHomeDir has no grounded equivalent to build on (util.AppDataDir
// isn't part of the retrieved reference pack), so it's hand-rolled from
// os.UserHomeDir: the one ambient concern in this package with no
// third-party library in the corpus covering it.
func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".omnicored")
}

var defaultDataDir = defaultHomeDir()

// config mirrors spec §6.4's CLI surface plus the ambient flags every
// daemon in the cmd/ tree carries (network selection, data directory,
// debug level), following cmd/txgen/config.go's struct-tag/parseConfig
// idiom.
type config struct {
	DataDir string `long:"datadir" description:"Directory to store the meta-protocol state database"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	RegTest bool `long:"regtest" description:"Use the regression test network"`

	StartClean bool `long:"startclean" description:"Wipe all persisted state and rebuild from genesis on this run"`

	SeedBlockFilter bool `long:"omniseedblockfilter" description:"Skip scanning blocks known in advance to carry no meta-protocol activity"`

	SkipStoringState bool `long:"omniskipstoringstate" description:"Persist checkpoints even below the network's normal storage threshold"`

	ActivationAllowSender  string `long:"omniactivationallowsender" description:"Accept this address as an authorized admin sender, in addition to the network's reserved address"`
	ActivationIgnoreSender bool   `long:"omniactivationignoresender" description:"Accept administrative transactions (activations, alerts) from any sender"`

	ProgressFrequency uint64 `long:"omniprogressfrequency" description:"Seconds between initial-sync progress log lines" default:"30"`

	DebugLevel string `long:"omnidebug" description:"Per-subsystem debug level: a bare level, all, none, or SUBSYS=level[,SUBSYS=level...]" default:"info"`

	OverrideForcedShutdown bool `long:"overrideforcedshutdown" description:"Skip removing the checkpoint directory when a fatal consensus-consistency error aborts the node"`
}

func parseConfig() (*config, error) {
	cfg := &config{
		DataDir: defaultDataDir,
	}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.TestNet && cfg.RegTest {
		return nil, fmt.Errorf("--testnet and --regtest cannot both be specified")
	}

	if cfg.ActivationIgnoreSender && cfg.ActivationAllowSender != "" {
		return nil, fmt.Errorf("--omniactivationignoresender already accepts every sender; --omniactivationallowsender is redundant with it")
	}

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}

	return cfg, nil
}

// netParams resolves the -testnet/-regtest selection to a network's
// consensus parameters, mainnet by default.
func (c *config) netParams() *dagparams.Params {
	switch {
	case c.RegTest:
		return dagparams.Regtest
	case c.TestNet:
		return dagparams.Testnet
	default:
		return dagparams.Mainnet
	}
}

func (c *config) dbDir() string {
	return filepath.Join(c.DataDir, defaultDBDirname)
}

func (c *config) logFile() string {
	return filepath.Join(c.DataDir, defaultLogFilename)
}

func (c *config) errLogFile() string {
	return filepath.Join(c.DataDir, defaultErrLogFilename)
}

func (c *config) adminAllowSender() omni.Address {
	return omni.Address(c.ActivationAllowSender)
}
