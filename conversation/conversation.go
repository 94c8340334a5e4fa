// Package conversation defines the Conversation capability the
// dispatcher treats as a black box, the ReplyAction sum type a
// conversation uses to drive the dispatcher, and the caller-visible
// result handles. The core (dispatcher, transport, connector) depends
// only on this package's interfaces; concrete conversations below are a
// representative sample used to exercise and test the core, not an
// exhaustive operation set.
package conversation

import "escore/frame"

// Conversation is the client-side state machine for one logical
// request/response (possibly streaming) exchange.
type Conversation interface {
	ID() frame.ConversationID
	// IsOneWay reports whether a reply is ever expected. One-way
	// conversations are sent and immediately forgotten by the dispatcher.
	IsOneWay() bool
	// Start produces the initial request frame. Called once at
	// StartConversation time and again, unchanged, on every replay.
	Start() frame.Frame
	// RespondTo advances the conversation's state in response to an
	// inbound frame and returns a directive for the dispatcher.
	RespondTo(f frame.Frame) ReplyAction
	// IsComplete is true exactly when the last ReplyAction produced by
	// RespondTo was terminal.
	IsComplete() bool
}

// ActionKind distinguishes the cases of ReplyAction.
type ActionKind int

const (
	ActionCompleteScalar ActionKind = iota
	ActionCompleteError
	ActionBeginIterator
	ActionYieldToIterator
	ActionCompleteIterator
	ActionRaiseToIterator
	ActionBeginSubscription
	ActionYieldToSubscription
	ActionRaiseToSubscription
	ActionFinishSubscription
	// ActionNone indicates a frame was consumed but the conversation
	// needs more input before producing a directive (e.g. intermediate
	// protocol handshake steps outside this design's scope).
	ActionNone
)

// ReplyAction is the tagged variant RespondTo returns. Only the fields
// relevant to Kind are populated; the dispatcher switches exhaustively
// on Kind (see dispatcher.Dispatcher.Dispatch).
type ReplyAction struct {
	Kind ActionKind

	Scalar any
	Err    error

	Batch      []any
	Descriptor any
	Event      any
}

func CompleteScalar(value any) ReplyAction {
	return ReplyAction{Kind: ActionCompleteScalar, Scalar: value}
}

func CompleteError(err error) ReplyAction {
	return ReplyAction{Kind: ActionCompleteError, Err: err}
}

// BeginIterator starts a streaming reply. The iterator's channel
// capacity is fixed by the dispatcher (dispatcher.iteratorBufferSize)
// at StartStreamingConversation time, before any reply has arrived, so
// there is no per-conversation hint to carry here.
func BeginIterator(initialBatch []any) ReplyAction {
	return ReplyAction{Kind: ActionBeginIterator, Batch: initialBatch}
}

func YieldToIterator(batch []any) ReplyAction {
	return ReplyAction{Kind: ActionYieldToIterator, Batch: batch}
}

func CompleteIterator(finalBatch []any) ReplyAction {
	return ReplyAction{Kind: ActionCompleteIterator, Batch: finalBatch}
}

func RaiseToIterator(err error) ReplyAction {
	return ReplyAction{Kind: ActionRaiseToIterator, Err: err}
}

func BeginSubscription(descriptor any) ReplyAction {
	return ReplyAction{Kind: ActionBeginSubscription, Descriptor: descriptor}
}

func YieldToSubscription(evt any) ReplyAction {
	return ReplyAction{Kind: ActionYieldToSubscription, Event: evt}
}

func RaiseToSubscription(err error) ReplyAction {
	return ReplyAction{Kind: ActionRaiseToSubscription, Err: err}
}

func FinishSubscription() ReplyAction {
	return ReplyAction{Kind: ActionFinishSubscription}
}

func None() ReplyAction {
	return ReplyAction{Kind: ActionNone}
}
