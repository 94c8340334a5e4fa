package dispatcher

import (
	"context"
	"testing"
	"time"

	"escore/conversation"
	"escore/frame"
)

func TestStartConversationReplaysOnAttach(t *testing.T) {
	d := New(nil)
	p := conversation.NewPing(nil)
	handle := d.StartConversation(p)

	out := make(chan frame.Frame, 4)
	d.Attach(out)

	select {
	case f := <-out:
		if f.ConversationID != p.ID() {
			t.Fatalf("replayed frame has wrong conversation id")
		}
	default:
		t.Fatal("expected start frame to be replayed on attach")
	}

	// Simulate the server responding.
	reply := frame.Frame{ConversationID: p.ID(), Payload: p.Start().Payload}
	reply.Payload[0] = 2 // opPong
	d.Dispatch(reply, out)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Len() != 0 {
		t.Fatalf("expected conversation to be removed after completion, got %d tracked", d.Len())
	}
}

func TestReplayExactlyOncePerReconnect(t *testing.T) {
	d := New(nil)
	p := conversation.NewPing(nil)
	d.StartConversation(p)

	out1 := make(chan frame.Frame, 4)
	d.Attach(out1)
	<-out1 // consume first replay

	d.Detach()

	out2 := make(chan frame.Frame, 4)
	d.Attach(out2)

	select {
	case <-out2:
	default:
		t.Fatal("expected replay on second attach")
	}
	select {
	case <-out2:
		t.Fatal("expected exactly one replayed frame on reconnect")
	default:
	}
}

func TestDispatchUnknownConversationIsDropped(t *testing.T) {
	d := New(nil)
	out := make(chan frame.Frame, 1)
	// No conversation tracked; dispatch should not panic and should not
	// write anything to out.
	d.Dispatch(frame.Frame{ConversationID: frame.NewConversationID()}, out)
	select {
	case <-out:
		t.Fatal("expected nothing enqueued for unknown conversation")
	default:
	}
}

func TestCancelRemovesConversationAndRejectsHandle(t *testing.T) {
	d := New(nil)
	p := conversation.NewPing(nil)
	handle := d.StartConversation(p)

	d.Cancel(p.ID())
	if d.Len() != 0 {
		t.Fatalf("expected conversation removed after cancel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := handle.Wait(ctx)
	if err != ErrConversationCancelled {
		t.Fatalf("expected ErrConversationCancelled, got %v", err)
	}
}

func TestShutdownRejectsOutstandingHandles(t *testing.T) {
	d := New(nil)
	p := conversation.NewPing(nil)
	handle := d.StartConversation(p)

	sentinel := ErrConversationCancelled
	d.Shutdown(context.Background(), sentinel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := handle.Wait(ctx)
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestStreamingConversationDeliversBatches(t *testing.T) {
	d := New(nil)
	r := conversation.NewReadStreamEvents("my-stream")
	it := d.StartStreamingConversation(r)

	out := make(chan frame.Frame, 4)
	d.Attach(out)
	<-out // consume replayed start frame

	// First batch, not final -> BeginIterator.
	batch1 := encodeBatch(t, false)
	d.Dispatch(frame.Frame{ConversationID: r.ID(), Payload: withOp(6, batch1)}, out)
	// Final batch -> CompleteIterator.
	batch2 := encodeBatch(t, true)
	d.Dispatch(frame.Frame{ConversationID: r.ID(), Payload: withOp(6, batch2)}, out)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err, ok := it.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first batch, got ok=%v err=%v", ok, err)
	}
	_, err, ok = it.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("expected second batch, got ok=%v err=%v", ok, err)
	}
	_, err, ok = it.Next(ctx)
	if ok || err != nil {
		t.Fatalf("expected clean end sentinel, got ok=%v err=%v", ok, err)
	}
	if d.Len() != 0 {
		t.Fatalf("expected conversation removed once complete")
	}
}

func withOp(o byte, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = o
	copy(out[1:], body)
	return out
}

func encodeBatch(t *testing.T, isFinal bool) []byte {
	t.Helper()
	// Matches conversation.eventBatch's JSON shape without importing the
	// unexported type.
	suffix := "false"
	if isFinal {
		suffix = "true"
	}
	return []byte(`{"events":[],"isFinal":` + suffix + `}`)
}
