package scm

import (
	"os"

	logging "github.com/op/go-logging"
)

// Logger wraps op/go-logging the way the runtime needs it used: GC
// cycles log at NOTICE and scheduler preemption at DEBUG, ports do not
// log (Close ignores errors), and the reader never logs at all (a malformed datum is the
// caller's problem, reported through the exception mechanism instead).
type Logger struct {
	log *logging.Logger
}

var loggingConfigured bool

func NewLogger(module string) *Logger {
	if !loggingConfigured {
		backend := logging.NewLogBackend(os.Stderr, "", 0)
		formatter := logging.MustStringFormatter(
			`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
		)
		formatted := logging.NewBackendFormatter(backend, formatter)
		leveled := logging.AddModuleLevel(formatted)
		leveled.SetLevel(logging.NOTICE, "")
		logging.SetBackend(leveled)
		loggingConfigured = true
	}
	return &Logger{log: logging.MustGetLogger(module)}
}

func (l *Logger) SetLevel(level string) {
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return
	}
	logging.SetLevel(lvl, "")
}

func (l *Logger) Debugf(format string, args ...interface{})  { l.log.Debugf(format, args...) }
func (l *Logger) Noticef(format string, args ...interface{}) { l.log.Noticef(format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.log.Warningf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})  { l.log.Errorf(format, args...) }
