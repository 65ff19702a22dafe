//go:build !linux && !windows

package process

import "go.uber.org/zap"

type unsupportedBackend struct{}

func newBackend(_ *zap.Logger, _ string) backend {
	return unsupportedBackend{}
}

func (unsupportedBackend) name() string {
	return "unsupported"
}

func (unsupportedBackend) launch(launchRequest) (launched, error) {
	return launched{}, ErrUnsupportedPlatform
}
