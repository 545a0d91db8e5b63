package testlog

import (
	"fmt"
	"testing"

	"github.com/danmuck/eventport/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Msgf("test=%s", t.Name())
}

// Logf records a test progress line through the shared console logger.
func Logf(format string, args ...any) {
	log.Debug().Msg(fmt.Sprintf(format, args...))
}
