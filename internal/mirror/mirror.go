// Package mirror keeps a live client-side copy of the game server's monsters
// and players. A Mirror owns one upstream websocket, routes every inbound
// frame into its entity collections and event log, reconnects after the
// socket drops, and publishes an immutable Snapshot after every change.
//
// All state lives on a single event-loop goroutine. Public methods post
// commands to that loop and never touch the state directly.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"btmonitor/internal/eventlog"
	"btmonitor/internal/protocol"
	"btmonitor/internal/store"
	"btmonitor/internal/transport"
)

const (
	DefaultURL            = "ws://localhost:8082"
	DefaultReconnectDelay = 3 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultPingInterval   = 25 * time.Second

	inboxSize = 256
)

var ErrAlreadyStarted = errors.New("mirror already started")

type Options struct {
	URL    string
	Dialer transport.Dialer

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// PingInterval <= 0 disables keepalive pings.
	PingInterval time.Duration

	// EventLogCapacity 0 means eventlog.DefaultCapacity; negative keeps every entry.
	EventLogCapacity int

	Logger *zap.Logger

	// Callbacks run on the event loop and must not block.
	OnPhaseChange func(Phase)
	OnServerStats func(json.RawMessage)
	OnEvent       func(eventlog.Entry)

	Now func() time.Time
}

type Mirror struct {
	opts Options
	log  *zap.Logger
	now  func() time.Time

	inbox   chan any
	quit    chan struct{}
	exited  chan struct{}
	started atomic.Bool
	stop    sync.Once
	ctx     context.Context

	// Owned by the event loop.
	phase     Phase
	conn      transport.Conn
	connGen   uint64
	reconnect *time.Timer
	timerGen  uint64
	monsters  *store.Collection[protocol.ID, protocol.Monster]
	players   *store.Collection[protocol.ID, protocol.Player]
	events    *eventlog.Log
	stats     *protocol.ServerStats
	seq       uint64

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int

	current atomic.Pointer[Snapshot]
}

func New(opts Options) *Mirror {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Dialer == nil {
		opts.Dialer = transport.NewDialer(transport.DefaultConfig().WithKeepalive(opts.PingInterval))
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.EventLogCapacity == 0 {
		opts.EventLogCapacity = eventlog.DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Mirror{
		opts:     opts,
		log:      opts.Logger.Named("mirror"),
		now:      opts.Now,
		inbox:    make(chan any, inboxSize),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
		ctx:      context.Background(),
		phase:    PhaseDisconnected,
		monsters: store.New[protocol.ID, protocol.Monster](),
		players:  store.New[protocol.ID, protocol.Player](),
		events:   eventlog.New(opts.EventLogCapacity),
	}
	m.current.Store(&Snapshot{Phase: PhaseDisconnected, Monsters: []protocol.Monster{}, Players: []protocol.Player{}, Events: []eventlog.Entry{}})
	return m
}

// Start runs the event loop and opens the first connection. The loop ends
// when ctx is cancelled or Stop is called.
func (m *Mirror) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	m.ctx = ctx
	go m.run(ctx)
	m.Connect()
	return nil
}

// Stop tears down the connection and waits for the event loop to exit.
func (m *Mirror) Stop() {
	m.stop.Do(func() { close(m.quit) })
	if m.started.Load() {
		<-m.exited
	}
}

// Connect asks for a connection to the upstream server. It does nothing when
// a connection is already open or being opened.
func (m *Mirror) Connect() { m.post(connectCmd{}) }

// Disconnect closes the connection and cancels any pending reconnect.
func (m *Mirror) Disconnect() { m.post(disconnectCmd{}) }

// Send writes v as JSON when the connection is open. Messages sent while
// disconnected are dropped; the return value reports whether v was written.
func (m *Mirror) Send(v any) bool {
	if !m.started.Load() {
		return false
	}
	data, err := protocol.Encode(v)
	if err != nil {
		m.log.Warn("dropping unencodable message", zap.Error(err))
		return false
	}
	reply := make(chan bool, 1)
	if !m.post(sendCmd{data: data, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-m.exited:
		return false
	}
}

// Snapshot returns the most recently published snapshot. Safe from any goroutine.
func (m *Mirror) Snapshot() Snapshot { return *m.current.Load() }

func (m *Mirror) Phase() Phase { return m.current.Load().Phase }

func (m *Mirror) post(msg any) bool {
	select {
	case <-m.quit:
		return false
	case <-m.exited:
		return false
	default:
	}
	select {
	case m.inbox <- msg:
		return true
	case <-m.quit:
		return false
	case <-m.exited:
		return false
	}
}

// Inbox messages.
type (
	connectCmd    struct{}
	disconnectCmd struct{}
	sendCmd       struct {
		data  []byte
		reply chan<- bool
	}
	dialResult struct {
		gen  uint64
		conn transport.Conn
		err  error
	}
	frameMsg struct {
		gen  uint64
		data []byte
	}
	readFailed struct {
		gen uint64
		err error
	}
	reconnectFired struct {
		gen uint64
	}
)

func (m *Mirror) run(ctx context.Context) {
	defer close(m.exited)

	var pingC <-chan time.Time
	if m.opts.PingInterval > 0 {
		ticker := time.NewTicker(m.opts.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-m.quit:
			m.shutdown()
			return
		case <-pingC:
			m.ping()
		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

func (m *Mirror) handle(msg any) {
	switch msg := msg.(type) {
	case connectCmd:
		m.connect()
	case disconnectCmd:
		m.disconnect()
	case sendCmd:
		msg.reply <- m.write(msg.data)
	case dialResult:
		m.dialed(msg)
	case frameMsg:
		if msg.gen != m.connGen {
			return
		}
		if m.route(msg.data) {
			m.publish()
		}
	case readFailed:
		m.readFailed(msg)
	case reconnectFired:
		m.reconnectFired(msg)
	default:
		m.log.Error("unexpected inbox message", zap.Any("message", msg))
	}
}

func (m *Mirror) shutdown() {
	m.disconnect()
	m.log.Info("mirror stopped")
}
