package conversation

import (
	"fmt"

	"escore/codec"
	"escore/event"
	"escore/frame"
)

// SubscriptionDescriptor is delivered to the caller when a subscription
// is confirmed by the server.
type SubscriptionDescriptor struct {
	Stream         string `json:"stream"`
	SubscriptionID string `json:"subscriptionId"`
}

// Subscribe establishes a long-lived persistent subscription. Unlike
// the single-shot conversations above, the events the server delivers
// do not finish it: it stays in the dispatcher map until an error
// reply, a malformed or unexpected frame, an explicit Unsubscribe, or
// connector shutdown finishes it.
type Subscribe struct {
	id        frame.ConversationID
	stream    string
	cdc       codec.Codec
	confirmed bool
	complete  bool
}

type subscribeBody struct {
	Stream string `json:"stream"`
}

func NewSubscribe(stream string) *Subscribe {
	return &Subscribe{
		id:     frame.NewConversationID(),
		stream: stream,
		cdc:    codec.JSON,
	}
}

func (s *Subscribe) ID() frame.ConversationID { return s.id }
func (s *Subscribe) IsOneWay() bool           { return false }
func (s *Subscribe) IsComplete() bool         { return s.complete }

func (s *Subscribe) Start() frame.Frame {
	body, _ := s.cdc.Encode(subscribeBody{Stream: s.stream})
	return frame.Frame{
		Command:        frame.CommandApplication,
		ConversationID: s.id,
		Payload:        encodeOp(opSub, body),
	}
}

func (s *Subscribe) RespondTo(f frame.Frame) ReplyAction {
	code, body, err := decodeOp(f.Payload)
	if err != nil {
		s.complete = true
		return CompleteError(err)
	}
	switch code {
	case opSubAck:
		var desc SubscriptionDescriptor
		if err := s.cdc.Decode(body, &desc); err != nil {
			s.complete = true
			return CompleteError(err)
		}
		s.confirmed = true
		return BeginSubscription(desc)
	case opSubEvt:
		var rec event.RecordedEvent
		if err := s.cdc.Decode(body, &rec); err != nil {
			s.complete = true
			return RaiseToSubscription(err)
		}
		return YieldToSubscription(rec)
	case opErr:
		s.complete = true
		return RaiseToSubscription(fmt.Errorf("conversation: subscription failed: %s", string(body)))
	default:
		s.complete = true
		return CompleteError(fmt.Errorf("conversation: subscribe got unexpected op %d", code))
	}
}

// Unsubscribe marks the conversation complete, so the dispatcher removes
// it from the map the next time it handles a frame for this
// conversation. The caller calls this after deciding to stop consuming
// a subscription. The returned FinishSubscription action goes to the
// caller only; the dispatcher does not act on it, so this call does not
// close the Iterator.
func (s *Subscribe) Unsubscribe() ReplyAction {
	s.complete = true
	return FinishSubscription()
}
