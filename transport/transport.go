// Package transport implements the per-connection holder described in
// spec.md §4.4: a byte reader/writer pair wrapped by a Framer, an
// inbound and outbound queue, a Pacemaker, and the four pumps (read,
// write, dispatch, heartbeat) that move frames between the socket and
// the Dispatcher.
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"escore/dispatcher"
	"escore/frame"
	"escore/pacemaker"

	"go.uber.org/zap"
)

// FailureHandler is invoked at most once, from whichever pump first
// observes the connection is gone (a read error or a write error).
// Heartbeat outcomes do not pass through it: they reach the Connector
// through pacemaker.Notifier. The Connector supplies this to learn about
// HandleConnectionClosed/HandleConnectionFailed.
type FailureHandler func(err error)

// Transport owns exactly one net.Conn. It is created fresh for every
// successful connect and destroyed on disconnect; the Dispatcher it
// attaches to outlives it.
type Transport struct {
	conn net.Conn
	disp *dispatcher.Dispatcher
	pace *pacemaker.Pacemaker
	log  *zap.Logger

	inbound  chan frame.Frame
	outbound chan frame.Frame

	onFailure FailureHandler
	shutdown  atomic.Bool
	failed    atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Config bundles the tunables a Transport needs at construction, kept
// distinct from client.Config so this package does not depend on it.
type Config struct {
	HeartbeatPeriod time.Duration
	ResponseTimeout time.Duration
	QueueSize       int
}

// New creates a Transport over conn. heartbeatNotifier is typically the
// Connector, which owns the three-strikes liveness judgement over the
// Pacemaker's per-probe outcomes. Call Start to spin up its pumps.
func New(conn net.Conn, disp *dispatcher.Dispatcher, cfg Config, heartbeatNotifier pacemaker.Notifier, onFailure FailureHandler, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	t := &Transport{
		conn:      conn,
		disp:      disp,
		log:       log,
		inbound:   make(chan frame.Frame, queueSize),
		outbound:  make(chan frame.Frame, queueSize),
		onFailure: onFailure,
		stopCh:    make(chan struct{}),
	}
	t.pace = pacemaker.New(cfg.HeartbeatPeriod, cfg.ResponseTimeout, heartbeatNotifier, t.outbound, log)
	return t
}

// Start attaches the Dispatcher (replaying tracked conversations) and
// then launches the four pumps. The Dispatcher replay happens-before
// the read pump starts, satisfying spec.md §5's ordering guarantee that
// replay precedes any new dispatch from the reconnected transport.
func (t *Transport) Start() {
	t.disp.Attach(t.outbound)

	t.wg.Add(4)
	go t.readPump()
	go t.writePump()
	go t.dispatchPump()
	go func() {
		defer t.wg.Done()
		t.pace.Run()
	}()
}

func (t *Transport) readPump() {
	defer t.wg.Done()
	dec := frame.NewDecoder()
	buf := make([]byte, 4096)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}
		// frame.Decode blocks in io.ReadFull until a whole frame has
		// arrived; the streaming Decoder is fed whatever each Read
		// returns instead, and keeps partial frames between reads.
		n, err := t.conn.Read(buf)
		if err != nil {
			t.fail(err)
			return
		}
		frames, err := dec.Feed(buf[:n])
		if err != nil {
			t.fail(err)
			return
		}
		for _, f := range frames {
			switch f.Command {
			case frame.CommandHeartbeatRequest, frame.CommandHeartbeatResponse:
				t.pace.HandleInbound(f)
			default:
				select {
				case t.inbound <- f:
				case <-t.stopCh:
					return
				}
			}
		}
	}
}

func (t *Transport) writePump() {
	defer t.wg.Done()
	for {
		select {
		case f := <-t.outbound:
			if err := frame.Encode(t.conn, f); err != nil {
				t.fail(err)
				return
			}
		case <-t.stopCh:
			return
		}
	}
}

func (t *Transport) dispatchPump() {
	defer t.wg.Done()
	for {
		select {
		case f := <-t.inbound:
			t.disp.Dispatch(f, t.outbound)
		case <-t.stopCh:
			return
		}
	}
}

func (t *Transport) fail(err error) {
	if t.shutdown.Load() {
		return // expected close from Stop(); not a real failure
	}
	if !t.failed.CompareAndSwap(false, true) {
		return // another pump already reported this connection's failure
	}
	t.log.Debug("transport failed", zap.Error(err))
	if t.onFailure != nil {
		t.onFailure(err)
	}
}

// Discard closes the underlying connection of a Transport that was
// never Start-ed — the Connector races a successful dial against a
// concurrent Stop/reconnect often enough that the loser needs a way to
// give up its socket without going through Stop, which would block
// forever waiting on a Pacemaker whose Run never launched.
func (t *Transport) Discard() {
	t.shutdown.Store(true)
	t.conn.Close()
}

// Stop cancels all four pumps, closes the socket, and detaches the
// Dispatcher. Idempotent. Unflushed outbound frames may be lost;
// conversations that authored them remain tracked and replay on the
// next Attach.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		t.shutdown.Store(true)
		close(t.stopCh)
		t.conn.Close()
		t.pace.Stop()
		t.wg.Wait()
		t.disp.Detach()
	})
}
