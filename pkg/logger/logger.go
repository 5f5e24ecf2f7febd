package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log = newLogger()

func newLogger() *logrus.Logger {
	log := logrus.New()
	// progress lines own stdout, logs go to stderr
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		ForceColors:      true,
		DisableTimestamp: true,
	})

	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// SetLevel parses lvl and applies it, keeping the current level on bad input.
func SetLevel(lvl string) {
	if lvl == "" {
		return
	}
	parsed, err := logrus.ParseLevel(lvl)
	if err != nil {
		Log.Warnf("unknown log level %q, keeping %s", lvl, Log.GetLevel())
		return
	}
	Log.SetLevel(parsed)
}
