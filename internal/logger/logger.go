package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log = newConsole(os.Stdout)

func newConsole(w io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stdout}
	output.FormatLevel = func(i interface{}) string {
		return fmt.Sprintf("[%s]", i)
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// Init configures the global level. DEBUG in the environment enables debug output.
func Init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if _, ok := os.LookupEnv("DEBUG"); ok {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// SetOutput redirects all logging, mainly for tests.
func SetOutput(w io.Writer) {
	log = newConsole(w)
}

// With returns a child logger tagged with a component name and extra string fields
// given as key/value pairs.
func With(component string, kv ...string) zerolog.Logger {
	ctx := log.With().Str("component", component)
	for i := 0; i+1 < len(kv); i += 2 {
		ctx = ctx.Str(kv[i], kv[i+1])
	}
	return ctx.Logger()
}

func Debug(msg string, args ...interface{}) {
	log.Debug().Msgf(msg, args...)
}

func Info(msg string, args ...interface{}) {
	log.Info().Msgf(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	log.Warn().Msgf(msg, args...)
}

func Error(msg string, args ...interface{}) {
	log.Error().Msgf(msg, args...)
}

// Fatal logs and exits the process.
func Fatal(msg string, args ...interface{}) {
	log.Fatal().Msgf(msg, args...)
}
