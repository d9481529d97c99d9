package mirror

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"btmonitor/internal/eventlog"
	"btmonitor/internal/protocol"
)

// handler applies one envelope and reports whether published state changed.
type handler func(m *Mirror, env protocol.Envelope) bool

var handlers = map[string]handler{
	protocol.MsgMonsterUpdate: (*Mirror).onMonsterUpdate,
	protocol.MsgPlayerUpdate:  (*Mirror).onPlayerUpdate,
	protocol.MsgMonsterSpawn:  (*Mirror).onMonsterSpawn,
	protocol.MsgMonsterDeath:  (*Mirror).onMonsterDeath,
	protocol.MsgServerStats:   (*Mirror).onServerStats,
	protocol.MsgSystemMessage: (*Mirror).onSystemMessage,
	protocol.MsgBTExecution:   (*Mirror).onBTExecution,
}

// route parses one raw frame and dispatches it. Malformed frames and unknown
// types are logged and dropped; nothing escapes this call.
func (m *Mirror) route(frame []byte) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("frame handler panicked", zap.Any("panic", r), zap.ByteString("frame", truncate(frame)))
			// The handler may have mutated state before failing.
			changed = true
		}
	}()

	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		m.log.Warn("discarding malformed frame", zap.Error(err), zap.ByteString("frame", truncate(frame)))
		return false
	}
	h, ok := handlers[env.Type]
	if !ok {
		m.log.Info("ignoring unknown message type", zap.String("type", env.Type))
		return false
	}
	return h(m, env)
}

func (m *Mirror) onMonsterUpdate(env protocol.Envelope) bool {
	list, bad, err := protocol.DecodeList[protocol.Monster](env.Monsters)
	if err != nil {
		m.log.Debug("monster_update without monster list", zap.Error(err))
		return false
	}
	now := m.now()
	changed := false
	for _, mon := range list {
		if !mon.ID.Valid() {
			bad++
			continue
		}
		mon.LastUpdate = now
		m.monsters.Upsert(mon.ID, mon)
		changed = true
	}
	if bad > 0 {
		m.log.Debug("skipped malformed monster entries", zap.Int("count", bad))
	}
	return changed
}

func (m *Mirror) onPlayerUpdate(env protocol.Envelope) bool {
	list, bad, err := protocol.DecodeList[protocol.Player](env.Players)
	if err != nil {
		m.log.Debug("player_update without player list", zap.Error(err))
		return false
	}
	now := m.now()
	changed := false
	for _, p := range list {
		if !p.ID.Valid() {
			bad++
			continue
		}
		p.LastUpdate = now
		m.players.Upsert(p.ID, p)
		changed = true
	}
	if bad > 0 {
		m.log.Debug("skipped malformed player entries", zap.Int("count", bad))
	}
	return changed
}

func (m *Mirror) onMonsterSpawn(env protocol.Envelope) bool {
	mon, err := protocol.DecodePayload[protocol.Monster](env.Data)
	if err != nil {
		m.log.Warn("bad monster_spawn payload", zap.Error(err))
		return false
	}
	if mon.ID.Valid() {
		mon.LastUpdate = m.now()
		m.monsters.Upsert(mon.ID, mon)
	}
	m.appendEvent(eventlog.LevelInfo, fmt.Sprintf("monster %s spawned", mon.Name), env.Timestamp)
	return true
}

func (m *Mirror) onMonsterDeath(env protocol.Envelope) bool {
	mon, err := protocol.DecodePayload[protocol.MonsterRef](env.Data)
	if err != nil {
		m.log.Warn("bad monster_death payload", zap.Error(err))
		return false
	}
	if mon.ID.Valid() {
		m.monsters.Remove(mon.ID)
	}
	m.appendEvent(eventlog.LevelWarning, fmt.Sprintf("monster %s died", mon.Name), env.Timestamp)
	return true
}

// onServerStats hands the raw counters to the host untouched. The decoded
// copy only feeds Snapshot.Stats.
func (m *Mirror) onServerStats(env protocol.Envelope) bool {
	if len(env.Data) == 0 {
		m.log.Debug("server_stats without data")
		return false
	}
	if m.opts.OnServerStats != nil {
		raw := make(json.RawMessage, len(env.Data))
		copy(raw, env.Data)
		m.opts.OnServerStats(raw)
	}
	stats, err := protocol.DecodePayload[protocol.ServerStats](env.Data)
	if err != nil {
		m.log.Debug("server_stats not decodable", zap.Error(err))
		return false
	}
	m.stats = &stats
	return true
}

func (m *Mirror) onSystemMessage(env protocol.Envelope) bool {
	msg, err := protocol.DecodePayload[protocol.SystemMessage](env.Data)
	if err != nil {
		m.log.Warn("bad system_message payload", zap.Error(err))
		return false
	}
	level := msg.Level
	if level == "" {
		level = eventlog.LevelInfo
	}
	m.appendEvent(level, msg.Message, env.Timestamp)
	return true
}

func (m *Mirror) onBTExecution(env protocol.Envelope) bool {
	exec, err := protocol.DecodePayload[protocol.BTExecution](env.Data)
	if err != nil {
		m.log.Warn("bad bt_execution payload", zap.Error(err))
		return false
	}
	m.appendEvent(eventlog.LevelInfo, fmt.Sprintf("monster %s executed %s", exec.MonsterName, exec.Action), env.Timestamp)
	return true
}

func (m *Mirror) appendEvent(level, message string, ts json.RawMessage) {
	e := m.events.Append(eventlog.Entry{Level: level, Message: message, Timestamp: ts})
	if m.opts.OnEvent != nil {
		m.opts.OnEvent(e)
	}
}

func truncate(b []byte) []byte {
	const max = 256
	if len(b) > max {
		return b[:max]
	}
	return b
}
