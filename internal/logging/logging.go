// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/Wyydra/duet/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func New(w io.Writer, cfg config.Logging) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger(), nil
}

// Init installs the logger as the global one used through zerolog/log.
func Init(w io.Writer, cfg config.Logging) (zerolog.Logger, error) {
	l, err := New(w, cfg)
	if err != nil {
		return l, err
	}
	log.Logger = l
	return l, nil
}
