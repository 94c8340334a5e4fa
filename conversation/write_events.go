package conversation

import (
	"fmt"

	"escore/codec"
	"escore/event"
	"escore/frame"
)

// WriteEvents appends one or more proposed events to a stream and
// completes with a WriteResult (or an error). Its Start frame is
// idempotent at the server per the design's replay guarantee: the
// server is expected to tolerate the same write being resent after a
// reconnect.
type WriteEvents struct {
	id       frame.ConversationID
	stream   string
	events   []event.ProposedEvent
	cdc      codec.Codec
	complete bool
}

type writeEventsBody struct {
	Stream string                `json:"stream"`
	Events []event.ProposedEvent `json:"events"`
}

// NewWriteEvents builds a WriteEvents conversation using the JSON codec.
func NewWriteEvents(stream string, events []event.ProposedEvent) *WriteEvents {
	return &WriteEvents{
		id:     frame.NewConversationID(),
		stream: stream,
		events: events,
		cdc:    codec.JSON,
	}
}

func (w *WriteEvents) ID() frame.ConversationID { return w.id }
func (w *WriteEvents) IsOneWay() bool           { return false }
func (w *WriteEvents) IsComplete() bool         { return w.complete }

func (w *WriteEvents) Start() frame.Frame {
	body, err := w.cdc.Encode(writeEventsBody{Stream: w.stream, Events: w.events})
	if err != nil {
		// Encoding the caller's own payload cannot fail for well-formed
		// event data; surface as an empty request rather than panicking
		// so a bug here fails the conversation, not the transport.
		body = nil
	}
	return frame.Frame{
		Command:        frame.CommandApplication,
		ConversationID: w.id,
		Payload:        encodeOp(opWrite, body),
	}
}

func (w *WriteEvents) RespondTo(f frame.Frame) ReplyAction {
	w.complete = true
	code, body, err := decodeOp(f.Payload)
	if err != nil {
		return CompleteError(err)
	}
	switch code {
	case opWriteOK:
		var result event.WriteResult
		if err := w.cdc.Decode(body, &result); err != nil {
			return CompleteError(err)
		}
		return CompleteScalar(result)
	case opErr:
		return CompleteError(fmt.Errorf("conversation: write failed: %s", string(body)))
	default:
		return CompleteError(fmt.Errorf("conversation: write got unexpected op %d", code))
	}
}
