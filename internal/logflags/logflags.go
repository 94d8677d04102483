// Package logflags configures subsystem-gated logging, mirroring the
// logger-per-concern setup the delve CLI builds on top of logrus:
// each subsystem gets its own *logrus.Entry so a caller can enable
// unwind-level tracing without drowning in processor-level noise.
package logflags

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	unwindLogger    = "unwind"
	symbolizeLogger = "symbolize"
	processorLogger = "processor"
)

var (
	mu      sync.Mutex
	enabled = map[string]bool{}
	root    = logrus.New()
)

func init() {
	root.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	root.Out = os.Stderr
}

// Setup parses a comma-separated list of subsystem names (as accepted
// by the CLI's --log flag, e.g. "unwind,processor") and enables
// trace- and debug-level logging for each. Blank entries (from stray commas) are
// skipped; an unrecognized subsystem name is rejected so a typo in
// --log fails fast instead of silently logging nothing.
func Setup(spec string) error {
	mu.Lock()
	defer mu.Unlock()
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch name {
		case unwindLogger, symbolizeLogger, processorLogger:
			enabled[name] = true
		default:
			return fmt.Errorf("logflags: unrecognized subsystem %q", name)
		}
	}
	root.SetLevel(logrus.TraceLevel)
	return nil
}

func logger(subsystem string) *logrus.Entry {
	mu.Lock()
	on := enabled[subsystem]
	mu.Unlock()
	if !on {
		dead := logrus.New()
		dead.SetOutput(io.Discard)
		dead.SetLevel(logrus.PanicLevel)
		return dead.WithField("layer", subsystem)
	}
	return root.WithField("layer", subsystem)
}

func Unwind() *logrus.Entry    { return logger(unwindLogger) }
func Symbolize() *logrus.Entry { return logger(symbolizeLogger) }
func Processor() *logrus.Entry { return logger(processorLogger) }
