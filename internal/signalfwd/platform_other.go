//go:build !unix

package signalfwd

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("signal forwarding is not supported on this platform")

// DefaultSignals is empty where forwarding is unsupported.
var DefaultSignals []os.Signal

var stopSignals map[os.Signal]bool

type defaultPlatform struct{}

func (defaultPlatform) install(signals []os.Signal, _ chan<- os.Signal) ([]Captured, []error) {
	skipped := make([]error, 0, len(signals))
	for _, sig := range signals {
		skipped = append(skipped, skipError(sig, "unsupported platform"))
	}
	return nil, skipped
}

func (defaultPlatform) forward(int, os.Signal) error {
	return errUnsupported
}

func (defaultPlatform) restore([]Captured, chan<- os.Signal) {}

func (defaultPlatform) stopSelf() error {
	return errUnsupported
}

// ParseSignals fails where forwarding is unsupported.
func ParseSignals(names []string) ([]os.Signal, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return nil, errUnsupported
}
