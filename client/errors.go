package client

import "errors"

// ErrNotConnected is returned by StartConversation/StartStreamingConversation/
// Ping when called before Connect. After a Connect that failed, these
// methods do not return it.
var ErrNotConnected = errors.New("client: not connected")

// ErrClosed is returned by the same methods once Close has been called.
var ErrClosed = errors.New("client: closed")
