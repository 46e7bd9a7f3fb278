// Package klog is the structured diagnostic channel shared by every engine.
//
// Every engine logs through the same *logrus.Logger instance with
// log.WithFields(...), the pattern this codebase takes from the sham
// simulator rather than rolling per-engine loggers.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the package-level logger every internal/* package writes to.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel configures the minimum level emitted on the shared channel.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Log.WithField("requested", level).Warn("unknown log level, keeping previous level")
		return
	}
	Log.SetLevel(lvl)
}

// Fields is a re-export so callers don't need to import logrus directly.
type Fields = logrus.Fields
