// Package event defines the domain payload types carried opaquely inside
// conversation frames. The core never inspects these — only the
// conversation package (and the codec it chooses) does.
package event

import "github.com/google/uuid"

// ProposedEvent is an event a caller wants appended to a stream. It
// mirrors the original client's NewEvent envelope: a type tag, a
// caller-chosen id (for idempotent retries), a body, and optional
// metadata.
type ProposedEvent struct {
	ID       uuid.UUID `json:"id"`
	Type     string    `json:"type"`
	Data     []byte    `json:"data"`
	Metadata []byte    `json:"metadata,omitempty"`
	IsJSON   bool      `json:"isJson"`
}

// NewProposedEvent builds a ProposedEvent with a fresh id.
func NewProposedEvent(eventType string, data, metadata []byte, isJSON bool) ProposedEvent {
	return ProposedEvent{
		ID:       uuid.New(),
		Type:     eventType,
		Data:     data,
		Metadata: metadata,
		IsJSON:   isJSON,
	}
}

// RecordedEvent is an event read back from a stream.
type RecordedEvent struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	StreamID    string    `json:"streamId"`
	EventNumber int64     `json:"eventNumber"`
	Data        []byte    `json:"data"`
	Metadata    []byte    `json:"metadata,omitempty"`
	IsJSON      bool      `json:"isJson"`
}

// WriteResult is the scalar reply of a successful WriteEvents conversation.
type WriteResult struct {
	NextExpectedVersion int64 `json:"nextExpectedVersion"`
}
