package connector

import "errors"

// ErrClientClosed is the terminal error delivered to outstanding result
// handles and the stopped observer when Stop is called with a nil
// error (a caller-initiated clean close, as opposed to discovery
// exhaustion or another connector-fatal error).
var ErrClientClosed = errors.New("connector: client closed")
