package adapter

import "errors"

// errInvalidToken is returned when a Token from a different Adapter is
// passed to Poll/Cancel; tokens are not portable across backends.
var errInvalidToken = errors.New("adapter: token not recognized by this adapter")
