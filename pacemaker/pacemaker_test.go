package pacemaker

import (
	"testing"
	"time"

	"escore/frame"
)

type recordingNotifier struct {
	success chan frame.ConversationID
	failed  chan error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		success: make(chan frame.ConversationID, 8),
		failed:  make(chan error, 8),
	}
}

func (r *recordingNotifier) HeartbeatSuccess(id frame.ConversationID) { r.success <- id }
func (r *recordingNotifier) HeartbeatFailed(err error)                { r.failed <- err }

func TestHeartbeatSuccessRoundTrip(t *testing.T) {
	out := make(chan frame.Frame, 4)
	notifier := newRecordingNotifier()
	p := New(10*time.Millisecond, 50*time.Millisecond, notifier, out, nil)

	go p.Run()
	defer p.Stop()

	select {
	case req := <-out:
		if req.Command != frame.CommandHeartbeatRequest {
			t.Fatalf("expected heartbeat request, got %v", req.Command)
		}
		p.HandleInbound(frame.Frame{Command: frame.CommandHeartbeatResponse, ConversationID: req.ConversationID})
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound heartbeat")
	}

	select {
	case <-notifier.success:
	case err := <-notifier.failed:
		t.Fatalf("expected success, got failure: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for success notification")
	}
}

func TestHeartbeatTimeoutNotifiesFailure(t *testing.T) {
	out := make(chan frame.Frame, 4)
	notifier := newRecordingNotifier()
	p := New(5*time.Millisecond, 10*time.Millisecond, notifier, out, nil)

	go p.Run()
	defer p.Stop()

	<-out // drain the request; never reply

	select {
	case err := <-notifier.failed:
		if err != ErrHeartbeatTimeout {
			t.Fatalf("expected ErrHeartbeatTimeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure notification")
	}
}

func TestInboundHeartbeatRequestAnsweredInline(t *testing.T) {
	out := make(chan frame.Frame, 4)
	notifier := newRecordingNotifier()
	p := New(time.Hour, time.Hour, notifier, out, nil)

	reqID := frame.NewConversationID()
	p.HandleInbound(frame.Frame{Command: frame.CommandHeartbeatRequest, ConversationID: reqID})

	select {
	case resp := <-out:
		if resp.Command != frame.CommandHeartbeatResponse || resp.ConversationID != reqID {
			t.Fatalf("unexpected reply: %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inline heartbeat reply")
	}
}
