package client

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"escore/frame"
	"escore/internal/faketcp"
)

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func pingHandler(req frame.Frame) (frame.Frame, bool) {
	if len(req.Payload) == 0 || req.Payload[0] != 1 { // opPing
		return frame.Frame{}, false
	}
	return frame.Frame{
		Command:        frame.CommandApplication,
		ConversationID: req.ConversationID,
		Payload:        []byte{2}, // opPong
	}, true
}

func TestConnectAndPing(t *testing.T) {
	srv, err := faketcp.New(pingHandler)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	host, port := splitAddr(t, srv.Addr())
	cl := NewClient(Config{
		Host:            host,
		Port:            port,
		ConnectTimeout:  time.Second,
		HeartbeatPeriod: time.Hour,
		ResponseTimeout: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer cl.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
	defer pingCancel()
	if _, err := cl.Ping(pingCtx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestCloseRejectsFurtherConversations(t *testing.T) {
	srv, err := faketcp.New(pingHandler)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	host, port := splitAddr(t, srv.Addr())
	cl := NewClient(Config{Host: host, Port: port, ConnectTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if err := cl.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := cl.StartConversation(nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestConnectFailsAgainstUnreachableHost(t *testing.T) {
	cl := NewClient(Config{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens on a privileged port in test sandboxes
		ConnectTimeout: 200 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Connect(ctx); err == nil {
		cl.Close()
		t.Fatal("expected Connect to fail against an unreachable host")
	}
}
