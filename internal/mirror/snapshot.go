package mirror

import (
	"time"

	"btmonitor/internal/eventlog"
	"btmonitor/internal/protocol"
)

// Snapshot is a consistent, read-only view of the mirror. Slices are copies
// owned by the snapshot; consumers must not modify them.
type Snapshot struct {
	Seq      uint64                `json:"seq"`
	Phase    Phase                 `json:"phase"`
	Monsters []protocol.Monster    `json:"monsters"`
	Players  []protocol.Player     `json:"players"`
	Events   []eventlog.Entry      `json:"events"`
	Stats    *protocol.ServerStats `json:"stats,omitempty"`
	At       time.Time             `json:"at"`
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Subscribe registers fn to receive every published snapshot. fn runs on the
// event loop and must return quickly. The returned func unsubscribes.
func (m *Mirror) Subscribe(fn func(Snapshot)) (cancel func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

func (m *Mirror) publish() {
	m.seq++
	snap := &Snapshot{
		Seq:      m.seq,
		Phase:    m.phase,
		Monsters: m.monsters.Snapshot(),
		Players:  m.players.Snapshot(),
		Events:   m.events.Entries(),
		At:       m.now(),
	}
	if m.stats != nil {
		stats := *m.stats
		snap.Stats = &stats
	}
	m.current.Store(snap)

	m.subMu.Lock()
	subs := m.subs
	m.subMu.Unlock()

	for _, s := range subs {
		s.fn(*snap)
	}
}
