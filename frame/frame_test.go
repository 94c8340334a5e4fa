package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func TestRoundTrip(t *testing.T) {
	f := Frame{
		Command:        CommandApplication,
		Flags:          0x01,
		ConversationID: NewConversationID(),
		Payload:        []byte("hello world"),
	}

	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatal(err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Command != f.Command || got.Flags != f.Flags ||
		got.ConversationID != f.ConversationID || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestConversationIDRoundTripsThroughUUID(t *testing.T) {
	u := uuid.New()
	id := FromUUID(u)
	if id.UUID() != u {
		t.Fatalf("ConversationID round trip mismatch: got %s, want %s", id.UUID(), u)
	}
}

func TestDecodeRejectsShortLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // length = 0, below MinLength
	buf.Write(make([]byte, HeaderSize-4))
	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected error for length below minimum")
	}
}

func makeFrames(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{
			Command:        CommandApplication,
			Flags:          Flags(i % 3),
			ConversationID: NewConversationID(),
			Payload:        bytes.Repeat([]byte{byte(i)}, i%37),
		}
	}
	return frames
}

func encodeAll(t *testing.T, frames []Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, f := range frames {
		if err := Encode(&buf, f); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

// TestChunkingIndependence verifies that an arbitrary byte partition of
// the encoded stream decodes to the same ordered frame sequence,
// regardless of how the bytes are chopped up between Feed calls.
func TestChunkingIndependence(t *testing.T) {
	frames := makeFrames(20)
	stream := encodeAll(t, frames)

	chunkSizes := [][]int{
		{len(stream)},      // one giant chunk
		splitEvenly(stream, 7),
		splitEvenly(stream, 1), // byte-by-byte
		randomSplit(stream, 42),
	}

	for _, sizes := range chunkSizes {
		d := NewDecoder()
		var got []Frame
		off := 0
		for _, size := range sizes {
			chunk := stream[off : off+size]
			off += size
			fs, err := d.Feed(chunk)
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, fs...)
		}
		if len(got) != len(frames) {
			t.Fatalf("got %d frames, want %d", len(got), len(frames))
		}
		for i := range frames {
			if got[i].Command != frames[i].Command ||
				got[i].ConversationID != frames[i].ConversationID ||
				!bytes.Equal(got[i].Payload, frames[i].Payload) {
				t.Fatalf("frame %d mismatch: got %+v, want %+v", i, got[i], frames[i])
			}
		}
	}
}

func splitEvenly(b []byte, chunkSize int) []int {
	var sizes []int
	for off := 0; off < len(b); off += chunkSize {
		end := off + chunkSize
		if end > len(b) {
			end = len(b)
		}
		sizes = append(sizes, end-off)
	}
	return sizes
}

func randomSplit(b []byte, seed int64) []int {
	r := rand.New(rand.NewSource(seed))
	var sizes []int
	remaining := len(b)
	for remaining > 0 {
		size := r.Intn(remaining) + 1
		sizes = append(sizes, size)
		remaining -= size
	}
	return sizes
}

// TestBackpressureSafety checks that feeding a prefix of the stream and
// later feeding the remainder yields the same frames as feeding the
// whole stream at once — decoder state after a prefix is a pure function
// of that prefix, independent of how it arrives.
func TestBackpressureSafety(t *testing.T) {
	frames := makeFrames(5)
	stream := encodeAll(t, frames)

	full := NewDecoder()
	wantFrames, err := full.Feed(stream)
	if err != nil {
		t.Fatal(err)
	}

	split := NewDecoder()
	prefix := stream[:len(stream)/2]
	rest := stream[len(stream)/2:]
	first, err := split.Feed(prefix)
	if err != nil {
		t.Fatal(err)
	}
	second, err := split.Feed(rest)
	if err != nil {
		t.Fatal(err)
	}
	got := append(first, second...)

	if len(got) != len(wantFrames) {
		t.Fatalf("got %d frames, want %d", len(got), len(wantFrames))
	}
	for i := range wantFrames {
		if got[i].ConversationID != wantFrames[i].ConversationID {
			t.Fatalf("frame %d conversation id mismatch", i)
		}
	}
}
