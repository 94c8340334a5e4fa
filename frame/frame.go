// Package frame implements the binary frame codec for the server's wire
// protocol (the Framer from the design: byte stream <-> framed messages).
//
// Frame format:
//
//	0        4  5  6                 22                 L+4
//	┌────────┬──┬──┬──────────────────┬──────────────────┐
//	│ length │cm│fl│ conversation id  │      payload      │
//	│ uint32 │  │  │   16 bytes LE    │   length-18 bytes │
//	└────────┴──┴──┴──────────────────┴──────────────────┘
//
// length is little-endian and counts everything after itself (command,
// flags, conversation id, and payload), so a frame's length prefix is
// always >= 18.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// HeaderSize is the fixed portion of every frame: 4 (length) + 1 (command)
// + 1 (flags) + 16 (conversation id).
const HeaderSize = 4 + 1 + 1 + 16

// MinLength is the smallest legal value of the length field — a frame with
// an empty payload still carries command, flags and conversation id.
const MinLength = HeaderSize - 4

// Command identifies the kind of frame. Everything but the two heartbeat
// commands is opaque to the core — payload interpretation belongs to
// conversations.
type Command byte

const (
	CommandHeartbeatRequest  Command = 0x01
	CommandHeartbeatResponse Command = 0x02
	// CommandApplication covers every conversation-defined request/reply;
	// conversations distinguish their own message kinds inside the payload.
	CommandApplication Command = 0x10
)

// Flags are a free bitfield; the core does not interpret any bit today.
type Flags byte

// ConversationID is a 128-bit identifier shared by every frame of one
// request/response exchange. It is generated client-side.
type ConversationID [16]byte

// NewConversationID generates a fresh random conversation id.
func NewConversationID() ConversationID {
	return FromUUID(uuid.New())
}

// FromUUID converts a standard (RFC 4122, big-endian) UUID into the wire's
// little-endian byte layout: the first three fields (4, 2 and 2 bytes) are
// byte-reversed and the trailing 8 bytes (clock sequence + node) are left
// untouched. This mirrors the "Microsoft GUID" binary layout the server
// uses on the wire.
func FromUUID(u uuid.UUID) ConversationID {
	var id ConversationID
	reverseInto(id[0:4], u[0:4])
	reverseInto(id[4:6], u[4:6])
	reverseInto(id[6:8], u[6:8])
	copy(id[8:16], u[8:16])
	return id
}

// UUID converts the wire little-endian layout back into a standard
// (big-endian) UUID.
func (id ConversationID) UUID() uuid.UUID {
	var u uuid.UUID
	reverseInto(u[0:4], id[0:4])
	reverseInto(u[4:6], id[4:6])
	reverseInto(u[6:8], id[6:8])
	copy(u[8:16], id[8:16])
	return u
}

func (id ConversationID) String() string {
	return id.UUID().String()
}

func reverseInto(dst, src []byte) {
	n := len(src)
	for i := 0; i < n; i++ {
		dst[i] = src[n-1-i]
	}
}

// Frame is one decoded wire message.
type Frame struct {
	Command        Command
	Flags          Flags
	ConversationID ConversationID
	Payload        []byte
}

// Encode writes a frame to w as two contiguous writes: the 22-byte header
// followed by the payload. Flushing, if the writer buffers, is the
// caller's responsibility.
func Encode(w io.Writer, f Frame) error {
	header := make([]byte, HeaderSize)
	length := uint32(MinLength + len(f.Payload))
	binary.LittleEndian.PutUint32(header[0:4], length)
	header[4] = byte(f.Command)
	header[5] = byte(f.Flags)
	copy(header[6:22], f.ConversationID[:])

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("frame: write payload: %w", err)
		}
	}
	return nil
}

// Decode reads exactly one frame from r, blocking until it is complete.
// A short read (EOF mid-frame) is surfaced as an error — callers treat
// that as transport close per the design's Framer contract.
func Decode(r io.Reader) (Frame, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	if length < MinLength {
		return Frame{}, fmt.Errorf("frame: length %d below minimum %d", length, MinLength)
	}
	bodyLen := length - MinLength
	var conv ConversationID
	copy(conv[:], header[6:22])

	payload := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{
		Command:        Command(header[4]),
		Flags:          Flags(header[5]),
		ConversationID: conv,
		Payload:        payload,
	}, nil
}
