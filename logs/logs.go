// Package logs provides the per-subsystem leveled loggers used throughout
// omnicore. It is grounded on logger/logger.go (subsystem tag map, dynamic
// SetLogLevel/SetLogLevels, ParseAndSetDebugLevels for the -omnidebug
// flag), but backs each subsystem logger with go.uber.org/zap instead of
// logger's unexported internal "logs" backend (not retrievable from the
// example pack) and keeps github.com/jrick/logrotate as the rotating file
// sink, exactly as logger.go wires it.
package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jrick/logrotate/rotator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Tags is the closed set of subsystems a -omnidebug=<cat> category may name.
// "all" and "none" are handled specially by ParseAndSetDebugLevels and are
// not members of this set.
var Tags = struct {
	CORE, // core.Context wiring, startup/shutdown
	STOR, // C1 keyed store
	TALY, // C2 tally ledger
	PROP, // C3 property registry
	NFTR, // C4 NFT range store
	PYLD, // C5 payload codec
	PRSR, // C6 transaction parser
	INTP, // C7 interpreter
	PIPE, // C8 block pipeline
	RORG, // C9 reorg controller
	FEEC, // C10 fee cache
	CNFG string // CLI / configuration
}{
	CORE: "CORE", STOR: "STOR", TALY: "TALY", PROP: "PROP", NFTR: "NFTR",
	PYLD: "PYLD", PRSR: "PRSR", INTP: "INTP", PIPE: "PIPE", RORG: "RORG",
	FEEC: "FEEC", CNFG: "CNFG",
}

var allTags = []string{
	Tags.CORE, Tags.STOR, Tags.TALY, Tags.PROP, Tags.NFTR, Tags.PYLD,
	Tags.PRSR, Tags.INTP, Tags.PIPE, Tags.RORG, Tags.FEEC, Tags.CNFG,
}

// Logger is the interface every subsystem logger satisfies. Criticalf is
// kept distinct from Errorf because a Critical log line always precedes a
// node abort (spec §7's consistency/checkpoint-failure fatal path).
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})
	SetLevel(level Level)
}

// Level mirrors the six levels the -omnidebug flag accepts.
type Level int8

// The supported levels, ordered from most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

func levelFromString(s string) (Level, bool) {
	switch s {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "critical":
		return LevelCritical, true
	}
	return LevelInfo, false
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

type subsystemLogger struct {
	tag     string
	mu      sync.RWMutex
	level   Level
	sugared *zap.SugaredLogger
}

func (l *subsystemLogger) logf(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	threshold := l.level
	l.mu.RUnlock()
	if level < threshold {
		return
	}
	msg := fmt.Sprintf("[%s] %s", l.tag, fmt.Sprintf(format, args...))
	switch level {
	case LevelTrace, LevelDebug:
		l.sugared.Debug(msg)
	case LevelInfo:
		l.sugared.Info(msg)
	case LevelWarn:
		l.sugared.Warn(msg)
	case LevelError:
		l.sugared.Error(msg)
	default:
		l.sugared.Error(msg)
	}
}

func (l *subsystemLogger) Tracef(format string, args ...interface{})    { l.logf(LevelTrace, format, args...) }
func (l *subsystemLogger) Debugf(format string, args ...interface{})    { l.logf(LevelDebug, format, args...) }
func (l *subsystemLogger) Infof(format string, args ...interface{})     { l.logf(LevelInfo, format, args...) }
func (l *subsystemLogger) Warnf(format string, args ...interface{})     { l.logf(LevelWarn, format, args...) }
func (l *subsystemLogger) Errorf(format string, args ...interface{})    { l.logf(LevelError, format, args...) }
func (l *subsystemLogger) Criticalf(format string, args ...interface{}) { l.logf(LevelCritical, format, args...) }

func (l *subsystemLogger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

var (
	subsystemLoggers = map[string]*subsystemLogger{}
	backend           *zap.Logger
	logRotator        *rotator.Rotator
	errLogRotator     *rotator.Rotator
	initOnce          sync.Once
)

func init() {
	// A usable no-op backend exists before InitLogRotators runs, matching
	// logger.go's logWriter{}/errLogWriter{} guard on the "initiated" flag.
	backend = zap.NewNop()
	for _, tag := range allTags {
		subsystemLoggers[tag] = &subsystemLogger{tag: tag, level: LevelInfo, sugared: backend.Sugar()}
	}
}

// InitLogRotators wires every subsystem logger to write to logFile (and
// errLogFile for warnings and above), rotating at 10MiB with up to 3 roll
// files kept, matching logger.go's InitLogRotators/initLogRotator.
func InitLogRotators(logFile, errLogFile string) error {
	var err error
	initOnce.Do(func() {
		logRotator, err = newFileRotator(logFile)
		if err != nil {
			return
		}
		errLogRotator, err = newFileRotator(errLogFile)
		if err != nil {
			return
		}
		core := zapcore.NewTee(
			zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stdout), zapcore.DebugLevel),
			zapcore.NewCore(consoleEncoder(), zapcore.AddSync(logRotator), zapcore.DebugLevel),
			zapcore.NewCore(consoleEncoder(), zapcore.AddSync(errLogRotator), zapcore.WarnLevel),
		)
		backend = zap.New(core)
		for _, l := range subsystemLoggers {
			l.mu.Lock()
			l.sugared = backend.Sugar()
			l.mu.Unlock()
		}
	})
	return err
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func newFileRotator(logFile string) (*rotator.Rotator, error) {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return rotator.New(logFile, 10*1024, false, 3)
}

// Get returns the logger for a given subsystem tag, and whether the tag was
// recognized.
func Get(tag string) (Logger, bool) {
	l, ok := subsystemLoggers[tag]
	return l, ok
}

// SetLogLevel sets the level of a single subsystem. Invalid subsystems are
// ignored; an invalid level defaults to info.
func SetLogLevel(subsystemTag, logLevel string) {
	l, ok := subsystemLoggers[subsystemTag]
	if !ok {
		return
	}
	level, _ := levelFromString(logLevel)
	l.SetLevel(level)
}

// SetLogLevels sets every subsystem to the same level.
func SetLogLevels(logLevel string) {
	for tag := range subsystemLoggers {
		SetLogLevel(tag, logLevel)
	}
}

// SupportedSubsystems returns the closed set of subsystem tags, sorted.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ParseAndSetDebugLevels implements the -omnidebug=<cat> flag (spec §6.4):
// a bare level applies to every subsystem; "all" and "none" are special
// (maximum verbosity / fully silenced); otherwise a comma-separated list of
// SUBSYSTEM=level pairs sets individual subsystems.
func ParseAndSetDebugLevels(debugLevel string) error {
	switch debugLevel {
	case "all":
		SetLogLevels("trace")
		return nil
	case "none":
		for tag := range subsystemLoggers {
			subsystemLoggers[tag].SetLevel(LevelOff)
		}
		return nil
	}

	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.SplitN(pair, "=", 2)
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", pair)
		}
		subsysTag, level := fields[0], fields[1]
		if _, exists := Get(subsysTag); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysTag, strings.Join(SupportedSubsystems(), ", "))
		}
		if !validLogLevel(level) {
			return fmt.Errorf("the specified debug level [%s] is invalid", level)
		}
		SetLogLevel(subsysTag, level)
	}
	return nil
}

func validLogLevel(level string) bool {
	_, ok := levelFromString(level)
	return ok
}

// Close flushes and releases the rotating log files, if any were opened.
func Close() error {
	_ = backend.Sync()
	if logRotator != nil {
		logRotator.Close()
	}
	if errLogRotator != nil {
		errLogRotator.Close()
	}
	return nil
}
