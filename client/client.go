// Package client is the public façade: configuration, Connect/Close,
// and the two ways to start a conversation. Everything it does is
// delegate to a connector.Connector; this package exists to give
// callers one type to construct instead of wiring discovery, retry
// policy and the connector together themselves.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"escore/connector"
	"escore/conversation"
	"escore/discovery"
	"escore/interceptor"
	"escore/loadbalance"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config carries every option enumerated in spec.md §6. Host/Port are
// used as the direct dial target unless DiscoveryHost is set, in which
// case cluster discovery replaces single-node dialling.
type Config struct {
	Host string
	Port int

	DiscoveryHost string
	DiscoveryPort int
	// Balancer picks one candidate out of what discovery returns; only
	// meaningful when DiscoveryHost is set. Defaults to round-robin.
	Balancer loadbalance.Balancer

	// Username and Password are opaque credentials threaded into
	// conversations that declare they need them; the core never
	// inspects them.
	Username string
	Password string

	ConnectTimeout  time.Duration
	HeartbeatPeriod time.Duration
	ResponseTimeout time.Duration
	// RetriesPerNode bounds reconnect attempts against a single node
	// before the Connector restarts from discovery.
	RetriesPerNode int

	// LogConversations wraps every started conversation with
	// interceptor.LoggingConversation.
	LogConversations bool

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = 30 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 10 * time.Second
	}
	if c.RetriesPerNode <= 0 {
		c.RetriesPerNode = 3
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Client is the top-level handle a caller constructs once and keeps
// for the life of a session.
type Client struct {
	cfg Config

	mu             sync.Mutex
	conn           *connector.Connector
	onConnected    []func(address string)
	onDisconnected []func()
	onStopped      []func(err error)

	closed atomic.Bool
}

// NewClient builds a Client from cfg. Call Connect before starting any
// conversation.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

func (cl *Client) buildDiscovery() (discovery.Discovery, error) {
	if cl.cfg.DiscoveryHost == "" {
		return discovery.NewStatic(cl.cfg.Host, cl.cfg.Port), nil
	}
	bal := cl.cfg.Balancer
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	endpoint := fmt.Sprintf("%s:%d", cl.cfg.DiscoveryHost, cl.cfg.DiscoveryPort)
	return discovery.NewEtcdClusterDiscovery([]string{endpoint}, bal)
}

// Connect builds the discovery source and Connector, starts the
// Connector's control loop, and waits for either the first successful
// connection or a connector-fatal failure (or ctx's deadline).
func (cl *Client) Connect(ctx context.Context) error {
	disc, err := cl.buildDiscovery()
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	retry := discovery.NewBoundedRetryPolicy(cl.cfg.RetriesPerNode, 0, 0)

	cl.mu.Lock()
	cl.conn = connector.New(connector.Config{
		ConnectTimeout:  cl.cfg.ConnectTimeout,
		HeartbeatPeriod: cl.cfg.HeartbeatPeriod,
		ResponseTimeout: cl.cfg.ResponseTimeout,
	}, disc, retry, cl.cfg.Logger)
	for _, fn := range cl.onConnected {
		cl.conn.OnConnected(fn)
	}
	for _, fn := range cl.onDisconnected {
		cl.conn.OnDisconnected(fn)
	}
	for _, fn := range cl.onStopped {
		cl.conn.OnStopped(fn)
	}
	conn := cl.conn
	cl.mu.Unlock()

	connected := make(chan struct{})
	var connectedOnce sync.Once
	conn.OnConnected(func(string) { connectedOnce.Do(func() { close(connected) }) })

	stopped := make(chan error, 1)
	var stoppedOnce sync.Once
	conn.OnStopped(func(err error) { stoppedOnce.Do(func() { stopped <- err }) })

	conn.Start()

	select {
	case <-connected:
		return nil
	case err := <-stopped:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the Connector: the current Transport is torn down,
// every outstanding conversation is rejected with connector.ErrClientClosed,
// and the stopped observers fire.
func (cl *Client) Close() error {
	if !cl.closed.CompareAndSwap(false, true) {
		return nil
	}
	cl.mu.Lock()
	conn := cl.conn
	cl.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.Stop(nil)
	return nil
}

func (cl *Client) wrap(conv conversation.Conversation) conversation.Conversation {
	if cl.cfg.LogConversations {
		return interceptor.NewLoggingConversation(conv, cl.cfg.Logger)
	}
	return conv
}

// StartConversation registers conv and returns its ResultHandle. The
// handle remains valid across any reconnect that happens before it
// resolves.
func (cl *Client) StartConversation(conv conversation.Conversation) (*conversation.ResultHandle, error) {
	conn, err := cl.activeConnector()
	if err != nil {
		return nil, err
	}
	return conn.Dispatcher().StartConversation(cl.wrap(conv)), nil
}

// StartStreamingConversation registers conv and returns its Iterator.
func (cl *Client) StartStreamingConversation(conv conversation.Conversation) (*conversation.Iterator, error) {
	conn, err := cl.activeConnector()
	if err != nil {
		return nil, err
	}
	return conn.Dispatcher().StartStreamingConversation(cl.wrap(conv)), nil
}

func (cl *Client) activeConnector() (*connector.Connector, error) {
	if cl.closed.Load() {
		return nil, ErrClosed
	}
	cl.mu.Lock()
	conn := cl.conn
	cl.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn, nil
}

// Ping is a convenience wrapper around a Ping conversation: it resolves
// to the conversation id the server echoed back.
func (cl *Client) Ping(ctx context.Context) (uuid.UUID, error) {
	handle, err := cl.StartConversation(conversation.NewPing(nil))
	if err != nil {
		return uuid.UUID{}, err
	}
	v, err := handle.Wait(ctx)
	if err != nil {
		return uuid.UUID{}, err
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("client: unexpected ping result type %T", v)
	}
	return id, nil
}

// OnConnected, OnDisconnected and OnStopped register observers on the
// underlying Connector. Safe to call before Connect.
func (cl *Client) OnConnected(fn func(address string)) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn != nil {
		cl.conn.OnConnected(fn)
		return
	}
	cl.onConnected = append(cl.onConnected, fn)
}

func (cl *Client) OnDisconnected(fn func()) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn != nil {
		cl.conn.OnDisconnected(fn)
		return
	}
	cl.onDisconnected = append(cl.onDisconnected, fn)
}

func (cl *Client) OnStopped(fn func(err error)) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn != nil {
		cl.conn.OnStopped(fn)
		return
	}
	cl.onStopped = append(cl.onStopped, fn)
}
