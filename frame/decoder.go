package frame

import "fmt"

// phase tracks which half of a frame the Decoder is currently accumulating.
type phase int

const (
	phaseHeader phase = iota
	phaseBody
)

// Decoder turns an arbitrary sequence of byte chunks into a sequence of
// frames. It is the re-entrant half of the Framer contract: a single
// chunk may contain zero, one, or many frames, and a frame may span many
// chunks. Decoder state after processing a prefix of the input is a pure
// function of that prefix — Feed never looks at bytes it has not yet
// been given.
type Decoder struct {
	phase phase

	header    []byte // fixed HeaderSize buffer, filled incrementally
	headerLen int

	bodyLen int
	body    []byte
	bodyPos int

	pendingCmd   Command
	pendingFlags Flags
	pendingConv  ConversationID
}

// NewDecoder returns a Decoder ready to consume bytes from the start of a
// frame.
func NewDecoder() *Decoder {
	d := &Decoder{header: make([]byte, HeaderSize)}
	d.reset()
	return d
}

func (d *Decoder) reset() {
	d.phase = phaseHeader
	d.headerLen = 0
	d.bodyLen = 0
	d.bodyPos = 0
	d.body = nil
}

// Feed consumes chunk and returns every frame completed along the way, in
// order. It must not over-read into the next frame's header: any bytes
// beyond the last completed frame are retained internally for the next
// call.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	var frames []Frame
	off := 0
	for off < len(chunk) {
		switch d.phase {
		case phaseHeader:
			n := copy(d.header[d.headerLen:], chunk[off:])
			d.headerLen += n
			off += n
			if d.headerLen < HeaderSize {
				continue
			}
			length := littleEndianUint32(d.header[0:4])
			if length < MinLength {
				return frames, fmt.Errorf("frame: length %d below minimum %d", length, MinLength)
			}
			d.pendingCmd = Command(d.header[4])
			d.pendingFlags = Flags(d.header[5])
			copy(d.pendingConv[:], d.header[6:22])
			d.bodyLen = int(length - MinLength)
			d.body = make([]byte, d.bodyLen)
			d.bodyPos = 0
			d.phase = phaseBody
			if d.bodyLen == 0 {
				frames = append(frames, d.completeFrame())
			}
		case phaseBody:
			n := copy(d.body[d.bodyPos:], chunk[off:])
			d.bodyPos += n
			off += n
			if d.bodyPos < d.bodyLen {
				continue
			}
			frames = append(frames, d.completeFrame())
		}
	}
	return frames, nil
}

func (d *Decoder) completeFrame() Frame {
	f := Frame{
		Command:        d.pendingCmd,
		Flags:          d.pendingFlags,
		ConversationID: d.pendingConv,
		Payload:        d.body,
	}
	d.reset()
	return f
}

func littleEndianUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
