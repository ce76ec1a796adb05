package badger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// badgerLogger routes badger's internal logging to zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func newBadgerLogger() badgerLogger {
	return badgerLogger{l: log.With().Str("component", "badger").Logger()}
}

func (b badgerLogger) Errorf(format string, v ...interface{}) {
	b.l.Error().Msg(line(format, v))
}

func (b badgerLogger) Warningf(format string, v ...interface{}) {
	b.l.Warn().Msg(line(format, v))
}

func (b badgerLogger) Infof(format string, v ...interface{}) {
	b.l.Debug().Msg(line(format, v))
}

func (b badgerLogger) Debugf(format string, v ...interface{}) {
	b.l.Trace().Msg(line(format, v))
}

func line(format string, v []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, v...))
}
