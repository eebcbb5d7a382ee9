package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the default engine logger: JSON lines on stdout, level taken
// from SHIELD_LOG_LEVEL (info when unset or unparseable).
func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	level, err := logrus.ParseLevel(os.Getenv("SHIELD_LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
