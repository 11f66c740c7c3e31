package pack

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// packLogger writes the human-readable, timestamped .packlog audit file
// (spec.md §6), grounded on cuemby-warren/pkg/log/log.go's Init/WithX
// child-logger idiom. Every run gets its own correlation ID so concurrent
// or historical runs logged to the same file can be told apart.
type packLogger struct {
	logger zerolog.Logger
	runID  string
}

// newPackLogger builds a logger writing to w (typically the .packlog
// file, opened O_APPEND) with a fresh run correlation ID.
func newPackLogger(w io.Writer) packLogger {
	runID := uuid.New().String()

	base := zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}).With().Timestamp().Str("run_id", runID).Logger()

	return packLogger{logger: base, runID: runID}
}

func (l packLogger) phase(name string) zerolog.Logger {
	return l.logger.With().Str("phase", name).Logger()
}

func (l packLogger) info(msg string)  { l.logger.Info().Msg(msg) }
func (l packLogger) warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l packLogger) errorf(msg string, err error) {
	l.logger.Error().Err(err).Msg(msg)
}
