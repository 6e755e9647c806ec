package pkg

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// VerboseMode is a global switch to turn verbose mode off or on
var VerboseMode bool

// Log is the default log to use
var Log = newLogger()

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

// SetupLogging configures the shared logger. format is "text" or "json".
func SetupLogging(verbose bool, format string) {
	VerboseMode = verbose

	if format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	if verbose {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}
