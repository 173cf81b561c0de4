package core

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	engineLogOnce sync.Once
	engineLog     *log.Logger
)

func newEngineLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           log.InfoLevel,
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "Penumbra 🌒 ",
		// Report the caller of LogX, not LogX itself.
		CallerOffset: 1,
	})
}

func logger() *log.Logger {
	engineLogOnce.Do(func() {
		engineLog = newEngineLogger(os.Stderr)
	})
	return engineLog
}

// SetLogLevel parses one of debug, info, warn, error, fatal.
func SetLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("%w: log level %q: %s", ErrConfiguration, level, err)
	}
	logger().SetLevel(lvl)
	return nil
}

// SetLogOutput redirects engine logging, e.g. into a test buffer.
func SetLogOutput(w io.Writer) {
	logger().SetOutput(w)
}

func LogDebug(format string, args ...interface{}) {
	logger().Debugf(format, args...)
}

func LogInfo(format string, args ...interface{}) {
	logger().Infof(format, args...)
}

func LogWarn(format string, args ...interface{}) {
	logger().Warnf(format, args...)
}

func LogError(format string, args ...interface{}) {
	logger().Errorf(format, args...)
}

// LogFatal logs and exits the process.
func LogFatal(format string, args ...interface{}) {
	logger().Fatalf(format, args...)
}
