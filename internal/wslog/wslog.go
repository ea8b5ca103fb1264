// Package wslog provides the process-wide structured logger and
// component-scoped child loggers used across wsrelay.
package wslog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Log zerolog.Logger

// Initialize configures the global logger. level is any zerolog level
// string ("debug", "info", ...); pretty switches between a
// human-readable console writer and JSON output.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "wsrelay").Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// WS returns the logger used by the server manager's dispatch/broadcast path.
func WS() *zerolog.Logger { return component("wsserver") }

// Client returns the logger used by the client runtime.
func Client() *zerolog.Logger { return component("wsclient") }

// Session returns the logger used by the session store and sweep job.
func Session() *zerolog.Logger { return component("session") }

// Auth returns the logger used by the auth gate.
func Auth() *zerolog.Logger { return component("authgate") }

// Router returns the logger used by route registration and the
// observability middleware.
func Router() *zerolog.Logger { return component("router") }

// DevCtx returns the logger used by the diagnostics ring-buffer sink.
func DevCtx() *zerolog.Logger { return component("devctx") }

// HTTP returns the logger used by the gin entrypoint's request logging middleware.
func HTTP() *zerolog.Logger { return component("http") }
