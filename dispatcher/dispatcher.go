// Package dispatcher owns the map of in-flight conversations, correlates
// inbound frames with the conversation that started them, and drives
// replay when a Transport reattaches after reconnect. It is the one
// component that outlives any single Transport.
package dispatcher

import (
	"context"
	"errors"
	"sync"

	"escore/conversation"
	"escore/frame"

	"go.uber.org/zap"
)

// ErrConversationCancelled is delivered to a ResultHandle/Iterator whose
// conversation was explicitly cancelled by its caller rather than
// resolved by the server.
var ErrConversationCancelled = errors.New("dispatcher: conversation cancelled")

// iteratorBufferSize is the default channel capacity backing every
// streaming conversation's Iterator. The reference design leaves queues
// unbounded; this is a pragmatic production-shaped bound — a slow
// consumer applies backpressure to the dispatch pump once it fills up,
// matching §5 "Resource bounds".
const iteratorBufferSize = 32

type trackedConversation struct {
	conv conversation.Conversation

	resultSlot   *conversation.ResultSlot
	iteratorFeed *conversation.IteratorFeed
}

// OutboundQueue is whatever Transport hands the dispatcher to enqueue
// frames for writing. It is a plain channel so replay and normal
// dispatch share one write path.
type OutboundQueue chan<- frame.Frame

// Dispatcher owns a ConversationID -> tracked conversation map across
// the lifetime of a Client, independent of any one Transport.
type Dispatcher struct {
	log *zap.Logger

	mu      sync.Mutex
	tracked map[frame.ConversationID]*trackedConversation
	out     OutboundQueue // nil while detached
}

// New creates an empty Dispatcher. A nil logger is replaced with a
// no-op logger.
func New(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:     log,
		tracked: make(map[frame.ConversationID]*trackedConversation),
	}
}

// StartConversation registers a conversation expecting a single scalar
// (or error) reply and returns its ResultHandle. If one-way, the start
// frame is sent (when attached) but the conversation is never tracked.
func (d *Dispatcher) StartConversation(conv conversation.Conversation) *conversation.ResultHandle {
	slot := conversation.NewResultSlot()
	d.start(conv, &trackedConversation{conv: conv, resultSlot: slot})
	return slot.Handle()
}

// StartStreamingConversation registers a conversation expecting an
// iterator-shaped reply (BeginIterator/... or BeginSubscription/...)
// and returns the caller-visible Iterator.
func (d *Dispatcher) StartStreamingConversation(conv conversation.Conversation) *conversation.Iterator {
	it, feed := conversation.NewIterator(iteratorBufferSize)
	d.start(conv, &trackedConversation{conv: conv, iteratorFeed: feed})
	return it
}

func (d *Dispatcher) start(conv conversation.Conversation, tc *trackedConversation) {
	startFrame := conv.Start()

	if conv.IsOneWay() {
		d.mu.Lock()
		out := d.out
		d.mu.Unlock()
		if out != nil {
			out <- startFrame
		}
		return
	}

	d.mu.Lock()
	d.tracked[conv.ID()] = tc
	out := d.out
	d.mu.Unlock()

	if out != nil {
		out <- startFrame
	}
}

// Attach is called when a Transport becomes active. It replays every
// tracked conversation's Start frame onto the new outbound queue before
// returning, so the Transport's read pump (started by the caller only
// after Attach returns) never races the replay.
func (d *Dispatcher) Attach(out OutboundQueue) {
	d.mu.Lock()
	d.out = out
	frames := make([]frame.Frame, 0, len(d.tracked))
	for _, tc := range d.tracked {
		frames = append(frames, tc.conv.Start())
	}
	d.mu.Unlock()

	for _, f := range frames {
		out <- f
	}
	d.log.Debug("dispatcher attached", zap.Int("replayed", len(frames)))
}

// Detach is called on Transport loss. Tracked conversations are kept;
// no state is lost, and no further frames can be sent until the next
// Attach.
func (d *Dispatcher) Detach() {
	d.mu.Lock()
	d.out = nil
	d.mu.Unlock()
	d.log.Debug("dispatcher detached")
}

// Cancel removes a conversation from the map and delivers
// ErrConversationCancelled to its waiter, without tearing down the
// Transport.
func (d *Dispatcher) Cancel(id frame.ConversationID) {
	d.mu.Lock()
	tc, ok := d.tracked[id]
	delete(d.tracked, id)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.reject(tc, ErrConversationCancelled)
}

// Dispatch looks up f's conversation, advances it, and actions the
// ReplyAction against the tracked result slot/iterator. Frames for an
// unknown conversation are logged and dropped. Called strictly
// sequentially from the owning Transport's dispatch pump — dispatch
// never holds the map mutex while waking a waiter.
func (d *Dispatcher) Dispatch(f frame.Frame, out OutboundQueue) {
	d.mu.Lock()
	tc, ok := d.tracked[f.ConversationID]
	d.mu.Unlock()
	if !ok {
		d.log.Warn("dispatch: unknown conversation, dropping frame",
			zap.String("conversation_id", f.ConversationID.String()))
		return
	}

	action := tc.conv.RespondTo(f)
	d.act(tc, action)

	if tc.conv.IsComplete() {
		d.mu.Lock()
		delete(d.tracked, f.ConversationID)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) act(tc *trackedConversation, action conversation.ReplyAction) {
	switch action.Kind {
	case conversation.ActionCompleteScalar:
		tc.resultSlot.Resolve(action.Scalar)
	case conversation.ActionCompleteError:
		tc.resultSlot.Reject(action.Err)
	case conversation.ActionBeginIterator:
		tc.iteratorFeed.Yield(action.Batch)
	case conversation.ActionYieldToIterator:
		tc.iteratorFeed.Yield(action.Batch)
	case conversation.ActionCompleteIterator:
		tc.iteratorFeed.Complete(action.Batch)
	case conversation.ActionRaiseToIterator:
		tc.iteratorFeed.Raise(action.Err)
	case conversation.ActionBeginSubscription:
		tc.iteratorFeed.Yield([]any{action.Descriptor})
	case conversation.ActionYieldToSubscription:
		tc.iteratorFeed.Yield([]any{action.Event})
	case conversation.ActionRaiseToSubscription:
		tc.iteratorFeed.Raise(action.Err)
	case conversation.ActionFinishSubscription:
		tc.iteratorFeed.Complete(nil)
	case conversation.ActionNone:
		// more input needed; nothing to deliver yet.
	}
}

func (d *Dispatcher) reject(tc *trackedConversation, err error) {
	if tc.resultSlot != nil {
		tc.resultSlot.Reject(err)
	}
	if tc.iteratorFeed != nil {
		tc.iteratorFeed.Raise(err)
	}
}

// Shutdown delivers terminalErr to every still-tracked conversation and
// clears the map, matching spec.md §5's "Stop delivers a terminal error
// to all outstanding result handles; iterators receive a terminal 'end'
// marker" rule: with a non-nil terminalErr, result handles and iterators
// both receive terminalErr. When terminalErr is nil, iterators see a
// clean end marker and result handles resolve with a nil value and a
// nil error, so callers pass a real err (e.g. connector.ErrClientClosed)
// to make the shutdown visible to scalar waiters.
func (d *Dispatcher) Shutdown(ctx context.Context, terminalErr error) {
	d.mu.Lock()
	tracked := d.tracked
	d.tracked = make(map[frame.ConversationID]*trackedConversation)
	d.out = nil
	d.mu.Unlock()

	for _, tc := range tracked {
		if tc.resultSlot != nil {
			tc.resultSlot.Reject(terminalErr)
		}
		if tc.iteratorFeed != nil {
			if terminalErr != nil {
				tc.iteratorFeed.Raise(terminalErr)
			} else {
				tc.iteratorFeed.Complete(nil)
			}
		}
	}
}

// Len reports how many conversations are currently tracked, used by
// tests asserting replay counts and by the connector's logging.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tracked)
}
