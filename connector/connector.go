// Package connector implements the supervisor state machine described
// in spec.md §4.5: discovery, dial, attach, heartbeat-driven liveness
// judgement, and reconnect with per-node backoff. It is the one
// component that owns a Dispatcher for the lifetime of a Client and
// creates/destroys a Transport around every connection attempt.
package connector

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"escore/discovery"
	"escore/dispatcher"
	"escore/frame"
	"escore/pacemaker"
	"escore/transport"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// heartbeatFailureThreshold is the number of consecutive heartbeat
// failures that tear down a Transport. spec.md §9 treats the
// three-strikes count as a fixed design decision, not a configuration
// knob the source exposes.
const heartbeatFailureThreshold = 3

// State is one of the five states in spec.md §4.5's transition table.
type State int32

const (
	StateBegin State = iota
	StateConnecting
	StateConnected
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBegin:
		return "begin"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config bundles the Connector's own tunables, kept distinct from
// client.Config so this package does not depend on it.
type Config struct {
	ConnectTimeout  time.Duration
	HeartbeatPeriod time.Duration
	ResponseTimeout time.Duration
	QueueSize       int

	// RedialRateLimit and RedialBurst bound how fast the control loop
	// may spawn new dial attempts, independent of any single node's
	// retry budget — so a cluster where every node fails instantly
	// can't busy-spin the dialer.
	RedialRateLimit rate.Limit
	RedialBurst     int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.RedialRateLimit <= 0 {
		c.RedialRateLimit = 5
	}
	if c.RedialBurst <= 0 {
		c.RedialBurst = 2
	}
	return c
}

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdConnectionOpened
	cmdDialFailed
	cmdConnectionLost
	cmdHeartbeatFailed
	cmdHeartbeatSuccess
	cmdConnectorFailed
	cmdStop
)

// command is the ConnectorInstruction from spec.md §3: a tagged variant
// carrying one of the commands in §4.5, processed strictly FIFO by the
// single control-loop goroutine.
type command struct {
	kind cmdKind

	target *discovery.NodeService // explicit redial target; nil means "ask discovery"
	node   discovery.NodeService  // the node a dial outcome refers to
	tr     *transport.Transport
	err    error
}

// Connector is the supervisor state machine. It owns one Dispatcher
// for its whole lifetime and exactly one live Transport at a time.
type Connector struct {
	cfg   Config
	disc  discovery.Discovery
	retry discovery.RetryPolicy
	disp  *dispatcher.Dispatcher
	log   *zap.Logger

	limiter *rate.Limiter

	cmds chan command
	done chan struct{}

	stateVal atomic.Int32

	// Touched only inside run(), the single control-loop goroutine.
	tr                *transport.Transport
	node              *discovery.NodeService
	heartbeatFailures int
	terminalErr       error

	mu             sync.Mutex
	onConnected    []func(address string)
	onDisconnected []func()
	onStopped      []func(err error)
}

// New creates a Connector against disc/retry. Call Start to begin
// discovering and dialing.
func New(cfg Config, disc discovery.Discovery, retry discovery.RetryPolicy, log *zap.Logger) *Connector {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Connector{
		cfg:     cfg,
		disc:    disc,
		retry:   retry,
		disp:    dispatcher.New(log),
		log:     log,
		limiter: rate.NewLimiter(cfg.RedialRateLimit, cfg.RedialBurst),
		cmds:    make(chan command, 32),
		done:    make(chan struct{}),
	}
}

// Dispatcher returns the Connector's Dispatcher, the entry point for
// starting conversations. It is valid for the Connector's whole
// lifetime, independent of any one Transport.
func (c *Connector) Dispatcher() *dispatcher.Dispatcher { return c.disp }

// State reports the current state. Safe to call from any goroutine.
func (c *Connector) State() State { return State(c.stateVal.Load()) }

func (c *Connector) setState(s State) { c.stateVal.Store(int32(s)) }

// Done is closed once the Connector has fully stopped.
func (c *Connector) Done() <-chan struct{} { return c.done }

// OnConnected, OnDisconnected and OnStopped register the three observer
// lists from spec.md §4.5. Handlers run synchronously inside the
// control loop and must not block.
func (c *Connector) OnConnected(fn func(address string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = append(c.onConnected, fn)
}

func (c *Connector) OnDisconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = append(c.onDisconnected, fn)
}

func (c *Connector) OnStopped(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStopped = append(c.onStopped, fn)
}

// Start launches the control loop and enqueues the initial Connect
// command (discover, then dial).
func (c *Connector) Start() {
	go c.run()
	c.enqueue(command{kind: cmdConnect})
}

// Stop enqueues Stop(err) and blocks until the control loop has torn
// down the Transport (if any), rejected every outstanding conversation
// and fired the stopped observers. A nil err is reported to observers
// and result handles as ErrClientClosed.
func (c *Connector) Stop(err error) {
	c.enqueue(command{kind: cmdStop, err: err})
	<-c.done
}

// enqueue hands cmd to the control loop. If the loop has already
// exited (c.done closed), the command is dropped — but a dropped
// cmdConnectionOpened still carries a live, never-Start-ed Transport
// wrapping a dialed net.Conn, so it must be discarded here rather than
// leaked. done is checked first, non-blocking: cmds is buffered, so
// once the loop has exited a plain two-way select could still pick the
// send over the already-closed done and report success for a command
// nobody will ever read.
func (c *Connector) enqueue(cmd command) {
	select {
	case <-c.done:
		c.discardDropped(cmd)
		return
	default:
	}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		c.discardDropped(cmd)
	}
}

func (c *Connector) discardDropped(cmd command) {
	if cmd.kind == cmdConnectionOpened && cmd.tr != nil {
		cmd.tr.Discard()
	}
}

// HeartbeatSuccess and HeartbeatFailed implement pacemaker.Notifier,
// letting the Connector (not the Transport) own the three-strikes
// liveness judgement.
func (c *Connector) HeartbeatSuccess(frame.ConversationID) {
	c.enqueue(command{kind: cmdHeartbeatSuccess})
}

func (c *Connector) HeartbeatFailed(err error) {
	c.enqueue(command{kind: cmdHeartbeatFailed, err: err})
}

var _ pacemaker.Notifier = (*Connector)(nil)

func (c *Connector) run() {
	for {
		cmd := <-c.cmds
		if c.handle(cmd) {
			close(c.done)
			return
		}
	}
}

// handle processes one command against spec.md §4.5's transition
// table and reports whether the control loop should exit.
func (c *Connector) handle(cmd command) bool {
	switch cmd.kind {
	case cmdConnect:
		if s := c.State(); s != StateBegin && s != StateConnecting {
			return false
		}
		c.setState(StateConnecting)
		go c.dial(cmd.target)

	case cmdConnectionOpened:
		if c.State() != StateConnecting {
			cmd.tr.Discard() // stale: a Stop raced the dial; never Start-ed
			return false
		}
		node := cmd.node
		c.retry.RecordSuccess(node)
		c.node = &node
		c.tr = cmd.tr
		c.heartbeatFailures = 0
		c.tr.Start()
		c.setState(StateConnected)
		c.fireConnected(fmt.Sprintf("%s:%d", node.Address, node.Port))

	case cmdDialFailed:
		if c.State() != StateConnecting {
			return false
		}
		c.retry.RecordFailure(cmd.node)
		c.scheduleReconnect(&cmd.node)

	case cmdConnectionLost:
		if c.State() != StateConnected || cmd.tr != c.tr {
			return false // stale event from an already-retired Transport
		}
		c.tr.Stop()
		c.tr = nil
		c.setState(StateConnecting)
		c.fireDisconnected()
		c.scheduleReconnect(c.node)

	case cmdHeartbeatFailed:
		if c.State() != StateConnected {
			return false
		}
		c.heartbeatFailures++
		if c.heartbeatFailures < heartbeatFailureThreshold {
			return false
		}
		tr := c.tr
		c.tr = nil
		tr.Stop()
		c.setState(StateConnecting)
		c.fireDisconnected()
		c.scheduleReconnect(c.node)

	case cmdHeartbeatSuccess:
		if c.State() != StateConnected {
			return false
		}
		c.heartbeatFailures = 0
		if c.node != nil {
			c.retry.RecordSuccess(*c.node)
		}

	case cmdConnectorFailed, cmdStop:
		c.doStop(cmd.err)
		return true
	}
	return false
}

// dial runs off the control loop: it discovers (if target is nil),
// dials with connect_timeout, and reports the outcome back as a
// command. Discovery failure is connector-fatal (spec.md §6); dial
// failure against a known node goes through the reconnect policy.
func (c *Connector) dial(target *discovery.NodeService) {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return
	}

	var node discovery.NodeService
	if target != nil {
		node = *target
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		n, err := c.disc.Discover(ctx)
		cancel()
		if err != nil {
			c.enqueue(command{kind: cmdConnectorFailed, err: fmt.Errorf("connector: discovery: %w", err)})
			return
		}
		node = n
	}

	addr := fmt.Sprintf("%s:%d", node.Address, node.Port)
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		c.enqueue(command{kind: cmdDialFailed, node: node, err: err})
		return
	}

	var tr *transport.Transport
	tr = transport.New(conn, c.disp, transport.Config{
		HeartbeatPeriod: c.cfg.HeartbeatPeriod,
		ResponseTimeout: c.cfg.ResponseTimeout,
		QueueSize:       c.cfg.QueueSize,
	}, c, func(err error) {
		c.enqueue(command{kind: cmdConnectionLost, tr: tr, err: err})
	}, c.log)

	c.enqueue(command{kind: cmdConnectionOpened, tr: tr, node: node})
}

// scheduleReconnect implements the reconnect policy bullet list from
// spec.md §4.5: retry the same node within its backoff budget, or mark
// it failed and restart from discovery. It runs off the control loop
// so backoff sleeps never block command processing, but the sleep
// itself is cancelled promptly if Stop fires first.
func (c *Connector) scheduleReconnect(node *discovery.NodeService) {
	go c.reconnectAfterWait(node)
}

func (c *Connector) reconnectAfterWait(node *discovery.NodeService) {
	if node == nil {
		c.enqueue(command{kind: cmdConnect})
		return
	}
	if c.retry.ShouldRetry(*node) {
		timer := time.NewTimer(c.retry.Wait(*node))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.done:
			return
		}
		n := *node
		c.enqueue(command{kind: cmdConnect, target: &n})
		return
	}
	c.disc.MarkFailed(*node)
	c.enqueue(command{kind: cmdConnect})
}

func (c *Connector) doStop(err error) {
	if c.State() == StateStopped {
		return
	}
	c.setState(StateStopping)
	if c.tr != nil {
		c.tr.Stop()
		c.tr = nil
	}
	if err == nil {
		err = ErrClientClosed
	}
	c.disp.Shutdown(context.Background(), err)
	c.terminalErr = err
	c.setState(StateStopped)
	c.fireStopped(err)
}

func (c *Connector) fireConnected(address string) {
	c.mu.Lock()
	handlers := c.onConnected
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(address)
	}
}

func (c *Connector) fireDisconnected() {
	c.mu.Lock()
	handlers := c.onDisconnected
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (c *Connector) fireStopped(err error) {
	c.mu.Lock()
	handlers := c.onStopped
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}
