package conversation

import (
	"fmt"

	"escore/frame"
)

// Ping is the simplest conversation: a single round trip that completes
// with the conversation id the server echoed back, letting a caller
// confirm liveness end-to-end through discovery, transport and
// dispatch.
type Ping struct {
	id       frame.ConversationID
	complete bool
}

// NewPing creates a Ping conversation with a fresh conversation id, or
// with id if one is given (for tests wanting a specific id, see spec
// seed scenario 1).
func NewPing(id *frame.ConversationID) *Ping {
	cid := frame.NewConversationID()
	if id != nil {
		cid = *id
	}
	return &Ping{id: cid}
}

func (p *Ping) ID() frame.ConversationID { return p.id }
func (p *Ping) IsOneWay() bool           { return false }
func (p *Ping) IsComplete() bool         { return p.complete }

func (p *Ping) Start() frame.Frame {
	return frame.Frame{
		Command:        frame.CommandApplication,
		ConversationID: p.id,
		Payload:        encodeOp(opPing, nil),
	}
}

func (p *Ping) RespondTo(f frame.Frame) ReplyAction {
	code, _, err := decodeOp(f.Payload)
	if err != nil {
		p.complete = true
		return CompleteError(err)
	}
	if code != opPong {
		p.complete = true
		return CompleteError(fmt.Errorf("conversation: ping got unexpected op %d", code))
	}
	p.complete = true
	return CompleteScalar(f.ConversationID.UUID())
}
