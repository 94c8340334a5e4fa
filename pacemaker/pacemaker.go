// Package pacemaker implements the heartbeat sub-component: answering
// inbound heartbeat probes inline, and sending outbound probes on a
// timer while judging peer liveness for the Connector.
package pacemaker

import (
	"sync"
	"time"

	"escore/frame"

	"go.uber.org/zap"
)

// DefaultPeriod and DefaultResponseTimeout match spec.md §4.2's
// defaults.
const (
	DefaultPeriod          = 30 * time.Second
	DefaultResponseTimeout = 10 * time.Second
)

// Notifier receives the Connector-facing liveness signals.
type Notifier interface {
	HeartbeatSuccess(id frame.ConversationID)
	HeartbeatFailed(err error)
}

// OutboundQueue is the write side the Pacemaker pushes heartbeat frames
// onto.
type OutboundQueue chan<- frame.Frame

// Pacemaker runs the send-wait-sleep outbound cycle described in
// spec.md §4.2 and answers inbound heartbeat requests. It does not own
// the socket; it is handed an outbound queue by its Transport and fed
// inbound frames by the Transport's read pump.
type Pacemaker struct {
	period          time.Duration
	responseTimeout time.Duration
	notifier        Notifier
	log             *zap.Logger
	out             OutboundQueue

	mu      sync.Mutex
	pending frame.ConversationID
	waiting bool

	acks chan frame.ConversationID
	stop chan struct{}
	done chan struct{}
}

// New creates a Pacemaker. A zero period/timeout falls back to the
// package defaults.
func New(period, responseTimeout time.Duration, notifier Notifier, out OutboundQueue, log *zap.Logger) *Pacemaker {
	if period <= 0 {
		period = DefaultPeriod
	}
	if responseTimeout <= 0 {
		responseTimeout = DefaultResponseTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pacemaker{
		period:          period,
		responseTimeout: responseTimeout,
		notifier:        notifier,
		out:             out,
		log:             log,
		acks:            make(chan frame.ConversationID, 1),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Run executes the send-wait-sleep heartbeat cycle until Stop is
// called. It is the Transport's heartbeat pump.
func (p *Pacemaker) Run() {
	defer close(p.done)
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sendAndWait()
		}
	}
}

func (p *Pacemaker) sendAndWait() {
	id := frame.NewConversationID()
	p.mu.Lock()
	p.pending = id
	p.waiting = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.waiting = false
		p.mu.Unlock()
	}()

	select {
	case p.out <- frame.Frame{Command: frame.CommandHeartbeatRequest, ConversationID: id}:
	case <-p.stop:
		return
	}

	timer := time.NewTimer(p.responseTimeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			p.log.Warn("heartbeat timed out", zap.String("conversation_id", id.String()))
			p.notifier.HeartbeatFailed(ErrHeartbeatTimeout)
			return
		case acked := <-p.acks:
			if acked != id {
				continue // stale ack for a previous, already-timed-out probe
			}
			p.notifier.HeartbeatSuccess(id)
			return
		case <-p.stop:
			return
		}
	}
}

// HandleInbound processes a frame the Transport's read pump identified
// as heartbeat traffic. A HeartbeatRequest is answered immediately on
// out, bypassing the Dispatcher entirely. A HeartbeatResponse is routed
// to the currently waiting send, if any.
func (p *Pacemaker) HandleInbound(f frame.Frame) {
	switch f.Command {
	case frame.CommandHeartbeatRequest:
		reply := frame.Frame{Command: frame.CommandHeartbeatResponse, ConversationID: f.ConversationID}
		select {
		case p.out <- reply:
		case <-p.stop:
		}
	case frame.CommandHeartbeatResponse:
		select {
		case p.acks <- f.ConversationID:
		default:
			// A previous ack is still sitting unread (sendAndWait will
			// drain and discard it as stale); drop this one rather than
			// block the read pump.
		}
	}
}

// Stop cancels the heartbeat pump. Idempotent via channel-close-once
// semantics is not needed here because Transport.Stop calls it exactly
// once per Pacemaker lifetime.
func (p *Pacemaker) Stop() {
	close(p.stop)
	<-p.done
}
