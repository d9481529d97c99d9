package mirror

import (
	"context"
	"time"

	"go.uber.org/zap"

	"btmonitor/internal/transport"
)

// Phase is the connection lifecycle state.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseError        Phase = "error"
)

func (p Phase) String() string { return string(p) }

// connect moves disconnected/error to connecting and dials in the background.
func (m *Mirror) connect() {
	switch m.phase {
	case PhaseConnected, PhaseConnecting:
		return
	}
	m.cancelReconnect()
	m.connGen++
	m.setPhase(PhaseConnecting)
	go m.dial(m.ctx, m.connGen)
}

func (m *Mirror) dial(ctx context.Context, gen uint64) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	m.log.Debug("dialing", zap.String("url", m.opts.URL))
	conn, err := m.opts.Dialer.Dial(ctx, m.opts.URL)
	if !m.post(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
		conn.Close()
	}
}

func (m *Mirror) dialed(r dialResult) {
	if r.gen != m.connGen || m.phase != PhaseConnecting {
		// Superseded by a disconnect or a newer attempt.
		if r.conn != nil {
			r.conn.Close()
		}
		return
	}
	if r.err != nil {
		m.log.Warn("connection failed", zap.String("url", m.opts.URL), zap.Error(r.err))
		m.setPhase(PhaseError)
		m.closed()
		return
	}

	m.conn = r.conn
	m.log.Info("connected", zap.String("url", m.opts.URL))
	m.setPhase(PhaseConnected)
	go m.read(r.gen, r.conn)
}

// read forwards frames to the loop until the connection fails.
func (m *Mirror) read(gen uint64, conn transport.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.post(readFailed{gen: gen, err: err})
			return
		}
		if !m.post(frameMsg{gen: gen, data: data}) {
			return
		}
	}
}

func (m *Mirror) readFailed(r readFailed) {
	if r.gen != m.connGen || m.conn == nil {
		return
	}
	if transport.IsNormalClosure(r.err) {
		m.log.Info("connection closed", zap.Error(r.err))
	} else {
		m.log.Warn("connection error", zap.Error(r.err))
		m.setPhase(PhaseError)
	}
	m.closed()
}

// closed releases the socket, reports disconnected and schedules a reconnect.
func (m *Mirror) closed() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connGen++
	m.setPhase(PhaseDisconnected)
	m.scheduleReconnect()
}

func (m *Mirror) disconnect() {
	m.cancelReconnect()
	m.connGen++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.log.Info("disconnected")
	}
	m.setPhase(PhaseDisconnected)
}

func (m *Mirror) scheduleReconnect() {
	m.cancelReconnect()
	gen := m.timerGen
	delay := m.opts.ReconnectDelay
	m.reconnect = time.AfterFunc(delay, func() {
		m.post(reconnectFired{gen: gen})
	})
	m.log.Debug("reconnect scheduled", zap.Duration("delay", delay))
}

// cancelReconnect stops the pending timer. Bumping timerGen also voids a
// timer that already fired but whose message is still queued.
func (m *Mirror) cancelReconnect() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.timerGen++
}

func (m *Mirror) reconnectFired(r reconnectFired) {
	if r.gen != m.timerGen || m.reconnect == nil {
		return
	}
	m.reconnect = nil
	if m.phase == PhaseConnected || m.phase == PhaseConnecting {
		m.log.Debug("reconnect skipped", zap.Stringer("phase", m.phase))
		return
	}
	m.log.Info("reconnecting", zap.String("url", m.opts.URL))
	m.connect()
}

func (m *Mirror) setPhase(p Phase) {
	if m.phase == p {
		return
	}
	m.phase = p
	if m.opts.OnPhaseChange != nil {
		m.opts.OnPhaseChange(p)
	}
	m.publish()
}

func (m *Mirror) write(data []byte) bool {
	if m.phase != PhaseConnected || m.conn == nil {
		return false
	}
	if err := m.conn.WriteMessage(data); err != nil {
		// The reader sees the broken socket and runs the close path.
		m.log.Warn("write failed", zap.Error(err))
		return false
	}
	return true
}

func (m *Mirror) ping() {
	if m.phase != PhaseConnected || m.conn == nil {
		return
	}
	if err := m.conn.Ping(); err != nil {
		m.log.Debug("ping failed", zap.Error(err))
	}
}
