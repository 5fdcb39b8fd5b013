package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Field names shared by every package, so that JSON logs of one run can be
// filtered by node, scenario or target.
const (
	FieldNode      = "node"
	FieldScenario  = "scenario"
	FieldTarget    = "target"
	FieldOperation = "operation"
	FieldRun       = "run"
)

// Logger is the logger of the sfctest process.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(textFormatter())
}

func textFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// SetLogLevel parses level ("debug", "info", "warn", ...) and applies it.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput redirects log output, e.g. into a test buffer.
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat switches to one JSON object per line for log collectors.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns an entry carrying one field.
func WithField(key string, value any) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns an entry carrying several fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithNode tags an entry with a testbed node (compute, controller, installer).
func WithNode(node string) *logrus.Entry {
	return Logger.WithField(FieldNode, node)
}

// WithScenario tags an entry with the running scenario.
func WithScenario(name string) *logrus.Entry {
	return Logger.WithField(FieldScenario, name)
}

// WithTarget tags an entry with a traffic endpoint: client, server, a VNF
// name or an address.
func WithTarget(target string) *logrus.Entry {
	return Logger.WithField(FieldTarget, target)
}

// WithOperation tags an entry with a long-running operation such as the
// convergence watch.
func WithOperation(operation string) *logrus.Entry {
	return Logger.WithField(FieldOperation, operation)
}

func Debugf(format string, args ...any) { Logger.Debugf(format, args...) }
func Infof(format string, args ...any) { Logger.Infof(format, args...) }
func Warnf(format string, args ...any) { Logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { Logger.Errorf(format, args...) }
