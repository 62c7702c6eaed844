// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup points the global logger at w, tags every line with the environment
// name and applies level. "silent" disables logging entirely.
func Setup(w io.Writer, environment, level string) {
	if w == nil {
		w = os.Stdout
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("env", strings.ToUpper(environment)).Logger()

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	switch {
	case strings.EqualFold(level, "silent"):
		lvl = zerolog.Disabled
	case err != nil || level == "":
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
