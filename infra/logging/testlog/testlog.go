package testlog

import (
	"testing"

	"github.com/rs/zerolog"

	"rc/infra/logging"
)

// Start configures test logging and returns a logger that writes through
// t.Log, so output shows up next to the failing test.
func Start(t testing.TB) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	l := zerolog.New(zerolog.NewTestWriter(t)).With().Str("test", t.Name()).Logger()
	l.Info().Msg("test started")
	return l
}
