package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a stderr logger at level, or at fallback when level is
// empty. The build's stdout is never written to.
func NewLogger(level string, fallback logrus.Level) (*logrus.Logger, error) {
	return newLogger(os.Stderr, level, fallback)
}

func newLogger(w io.Writer, level string, fallback logrus.Level) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableQuote:     true,
	})
	log.SetLevel(fallback)

	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return log, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		log.SetLevel(parsed)
	}
	return log, nil
}
