package sandbox

import "errors"

// ErrAppContainerUnavailable is returned when an AppContainer profile or
// its restricted token cannot be produced. Callers decide whether to fall
// back to an unconfined launch.
var ErrAppContainerUnavailable = errors.New("appcontainer sandbox unavailable")

// ErrEmptyCommand is returned by Policy for a command line with no tokens.
var ErrEmptyCommand = errors.New("empty command line")
