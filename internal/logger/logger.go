package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"helpdesk-autoreply/internal/config"
)

// Init configures the standard logrus logger from the log section of the config.
func Init(cfg config.LogConfig) {
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		logrus.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.Environment) {
	case "production", "staging":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	logrus.Debugf("Log level set to: %s", logrus.GetLevel().String())
}
