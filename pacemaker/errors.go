package pacemaker

import "errors"

// ErrHeartbeatTimeout is passed to Notifier.HeartbeatFailed when an
// outbound heartbeat's response_timeout elapses with no matching reply.
var ErrHeartbeatTimeout = errors.New("pacemaker: heartbeat response timed out")
