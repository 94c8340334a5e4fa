package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"escore/conversation"
	"escore/dispatcher"
	"escore/frame"
)

type nopNotifier struct{}

func (nopNotifier) HeartbeatSuccess(frame.ConversationID) {}
func (nopNotifier) HeartbeatFailed(error)                 {}

func listenLoopback(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return ln, ln.Addr().String()
}

// TestFragmentedFrameStillDeliversOnePong drives seed scenario 2: the
// server writes its response one byte at a time, and the dispatcher
// must still deliver exactly one completed Ping.
func TestFragmentedFrameStillDeliversOnePong(t *testing.T) {
	ln, addr := listenLoopback(t)
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		req, err := frame.Decode(conn)
		if err != nil {
			return
		}

		reply := frame.Frame{
			Command:        frame.CommandApplication,
			ConversationID: req.ConversationID,
			Payload:        []byte{2}, // opPong
		}
		var buf bytes.Buffer
		if err := frame.Encode(&buf, reply); err != nil {
			return
		}
		for _, b := range buf.Bytes() {
			conn.Write([]byte{b})
			time.Sleep(time.Millisecond)
		}
	}()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}

	disp := dispatcher.New(nil)
	tr := New(conn, disp, Config{HeartbeatPeriod: time.Hour, ResponseTimeout: time.Hour}, nopNotifier{}, nil, nil)
	tr.Start()
	defer tr.Stop()

	ping := conversation.NewPing(nil)
	handle := disp.StartConversation(ping)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	<-serverDone
}
