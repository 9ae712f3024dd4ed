package plugin

import "errors"

var (
	// ErrConfiguration marks an invalid setup detected
	// before any page renders. It aborts the build.
	ErrConfiguration = errors.New("configuration error")

	// ErrDiscoveryIO marks an unreadable fragment. It
	// aborts the build.
	ErrDiscoveryIO = errors.New("fragment discovery failed")

	// ErrDataResolution marks a failing data provider. It
	// fails one asset.
	ErrDataResolution = errors.New("page data resolution failed")

	// ErrRender marks a render rejected by the engine or
	// the callback. It fails one asset.
	ErrRender = errors.New("page render failed")
)
