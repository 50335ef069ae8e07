package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide structured logger.
var Logger = New("info")

// New builds a JSON logger writing to stderr. Unknown levels fall back to info.
func New(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// Configure replaces Logger's level from configuration.
func Configure(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.WithField("level", level).Warn("unknown log level, keeping info")
		return
	}
	Logger.SetLevel(parsed)
}
