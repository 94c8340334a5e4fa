package conversation

import (
	"fmt"

	"escore/codec"
	"escore/event"
	"escore/frame"
)

// ReadStreamEvents streams a stream's events back to the caller as they
// arrive in batches: the first batch arrives via BeginIterator, every
// later one via YieldToIterator, and the final one via CompleteIterator.
type ReadStreamEvents struct {
	id       frame.ConversationID
	stream   string
	cdc      codec.Codec
	started  bool
	complete bool
}

type readStreamBody struct {
	Stream string `json:"stream"`
}

type eventBatch struct {
	Events  []event.RecordedEvent `json:"events"`
	IsFinal bool                  `json:"isFinal"`
}

func NewReadStreamEvents(stream string) *ReadStreamEvents {
	return &ReadStreamEvents{
		id:     frame.NewConversationID(),
		stream: stream,
		cdc:    codec.JSON,
	}
}

func (r *ReadStreamEvents) ID() frame.ConversationID { return r.id }
func (r *ReadStreamEvents) IsOneWay() bool           { return false }
func (r *ReadStreamEvents) IsComplete() bool         { return r.complete }

func (r *ReadStreamEvents) Start() frame.Frame {
	body, _ := r.cdc.Encode(readStreamBody{Stream: r.stream})
	return frame.Frame{
		Command:        frame.CommandApplication,
		ConversationID: r.id,
		Payload:        encodeOp(opRead, body),
	}
}

func (r *ReadStreamEvents) RespondTo(f frame.Frame) ReplyAction {
	code, body, err := decodeOp(f.Payload)
	if err != nil {
		r.complete = true
		return CompleteError(err)
	}
	switch code {
	case opBatch:
		var batch eventBatch
		if err := r.cdc.Decode(body, &batch); err != nil {
			r.complete = true
			return CompleteError(err)
		}
		items := toAnySlice(batch.Events)
		if !r.started {
			r.started = true
			if batch.IsFinal {
				r.complete = true
				return CompleteIterator(items)
			}
			return BeginIterator(items)
		}
		if batch.IsFinal {
			r.complete = true
			return CompleteIterator(items)
		}
		return YieldToIterator(items)
	case opErr:
		r.complete = true
		if !r.started {
			return CompleteError(fmt.Errorf("conversation: read failed: %s", string(body)))
		}
		return RaiseToIterator(fmt.Errorf("conversation: read failed: %s", string(body)))
	default:
		r.complete = true
		return CompleteError(fmt.Errorf("conversation: read got unexpected op %d", code))
	}
}

func toAnySlice(events []event.RecordedEvent) []any {
	out := make([]any, len(events))
	for i, e := range events {
		out[i] = e
	}
	return out
}
