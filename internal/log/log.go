// Package log sets up the leveled logger used for go-u2fhid's own
// diagnostics (frame tracing, discovery warnings). It is adapted from
// kryptco-kr's logging.go: a syslog backend when available, falling
// back to a colorized stderr backend, with an environment variable
// override for the log level.
package log

import (
	stdlog "log"
	"log/syslog"
	"os"

	"github.com/op/go-logging"
)

// Log is the package-wide logger. It starts wired to a plain stderr
// backend at NOTICE so the library is never silent-by-default before
// Setup is called; callers that want syslog or a different default
// level call Setup explicitly (as cmd/u2fhidtool does).
var Log = logging.MustGetLogger("u2fhid")

var stderrFormat = logging.MustStringFormatter(
	`%{color}u2fhid ▶ %{level:.4s} %{message}%{color:reset}`,
)

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, stderrFormat)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(logging.NOTICE, "")
	logging.SetBackend(leveled)
}

// Setup reconfigures Log with the given prefix and default level,
// optionally preferring a syslog backend (falling back to stderr if
// syslog is unavailable). The U2FHID_LOG_LEVEL environment variable,
// when set to one of CRITICAL/ERROR/WARNING/NOTICE/INFO/DEBUG,
// overrides defaultLevel.
func Setup(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	var backend logging.Backend
	if trySyslog {
		syslogBackend, err := logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
		if err == nil {
			backend = syslogBackend
			logging.SetFormatter(logging.MustStringFormatter(
				`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
			))
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("U2FHID_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, "")
	case "ERROR":
		leveled.SetLevel(logging.ERROR, "")
	case "WARNING":
		leveled.SetLevel(logging.WARNING, "")
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, "")
	case "INFO":
		leveled.SetLevel(logging.INFO, "")
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, "")
	default:
		leveled.SetLevel(defaultLevel, "")
	}

	logging.SetBackend(leveled)
	stdlog.SetOutput(os.Stderr)
	return Log
}
