package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var log = newLogger(os.Stdout)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		DataKey:         "extra",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
		},
	})
	return l
}

// SetOutput redirects log lines, mainly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetLevel accepts debug, info, warn, error. Unknown values keep info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warning", "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

func emit(level logrus.Level, msg string, extra map[string]interface{}) {
	entry := logrus.NewEntry(log)
	if len(extra) > 0 {
		entry = entry.WithFields(logrus.Fields(extra))
	}
	entry.Log(level, msg)
}

func Debug(msg string, extra map[string]interface{}) {
	emit(logrus.DebugLevel, msg, extra)
}

func Info(msg string, extra map[string]interface{}) {
	emit(logrus.InfoLevel, msg, extra)
}

func Warn(msg string, extra map[string]interface{}) {
	emit(logrus.WarnLevel, msg, extra)
}

func Error(msg string, extra map[string]interface{}) {
	emit(logrus.ErrorLevel, msg, extra)
}
