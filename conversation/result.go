package conversation

import "context"

// ResultSlot is the dispatcher-owned delivery point for a single-shot
// conversation's outcome. ResultHandle is the caller-visible read side.
type ResultSlot struct {
	ch chan outcome
}

type outcome struct {
	value any
	err   error
}

// NewResultSlot creates a slot with room for exactly one outcome — the
// dispatcher always completes a tracked conversation at most once.
func NewResultSlot() *ResultSlot {
	return &ResultSlot{ch: make(chan outcome, 1)}
}

// Resolve delivers a successful scalar outcome. Safe to call from the
// dispatch pump; it never blocks because the channel is buffered.
func (s *ResultSlot) Resolve(value any) {
	s.ch <- outcome{value: value}
}

// Reject delivers a failure outcome.
func (s *ResultSlot) Reject(err error) {
	s.ch <- outcome{err: err}
}

// Handle returns the caller-visible future for this slot.
func (s *ResultSlot) Handle() *ResultHandle {
	return &ResultHandle{ch: s.ch}
}

// ResultHandle is a future over a single-shot conversation's outcome. It
// remains valid across reconnects — the conversation it refers to is
// replayed by the dispatcher until it resolves, fails, or is cancelled.
type ResultHandle struct {
	ch chan outcome
}

// Wait blocks until the conversation resolves, fails, is cancelled via
// ctx, or the owning client is closed.
func (h *ResultHandle) Wait(ctx context.Context) (any, error) {
	select {
	case o := <-h.ch:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// end/error sentinels used by Iterator, matching the design's bounded
// channel with distinguished terminal markers.
type item struct {
	batch []any
	err   error
	end   bool
}

// Iterator is a streaming result: a caller-visible handle fed by
// BeginIterator/YieldToIterator/CompleteIterator/RaiseToIterator
// actions processed by the dispatcher.
type Iterator struct {
	ch chan item
}

// IteratorFeed is the dispatcher-owned write side of an Iterator.
type IteratorFeed struct {
	ch chan item
}

// NewIterator creates a bounded iterator channel; bufferHint sizes the
// buffer so a fast producer does not stall waiting for a slow consumer
// on every batch.
func NewIterator(bufferHint int) (*Iterator, *IteratorFeed) {
	if bufferHint <= 0 {
		bufferHint = 1
	}
	ch := make(chan item, bufferHint)
	return &Iterator{ch: ch}, &IteratorFeed{ch: ch}
}

// Yield pushes a batch of items onto the iterator. It blocks while the
// buffer is full, so a slow consumer applies backpressure to the
// dispatch pump; a consumer that stops reading leaves the dispatch pump
// blocked here.
func (f *IteratorFeed) Yield(batch []any) {
	f.ch <- item{batch: batch}
}

// Complete pushes a final batch (even an empty one) and then closes the
// iterator. A nil finalBatch closes it without pushing a batch.
func (f *IteratorFeed) Complete(finalBatch []any) {
	if finalBatch != nil {
		f.ch <- item{batch: finalBatch}
	}
	f.ch <- item{end: true}
}

// Raise injects a terminal error.
func (f *IteratorFeed) Raise(err error) {
	f.ch <- item{err: err}
}

// Next blocks for the next batch of items. ok is false once the
// iterator has terminated (cleanly or with err set).
func (it *Iterator) Next(ctx context.Context) (batch []any, err error, ok bool) {
	select {
	case v := <-it.ch:
		if v.end {
			return nil, nil, false
		}
		if v.err != nil {
			return nil, v.err, false
		}
		return v.batch, nil, true
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}
