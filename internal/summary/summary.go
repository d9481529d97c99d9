// Package summary derives dashboard views from a mirror snapshot: monster
// counts, filtering, and display labels for player and monster states.
package summary

import (
	"fmt"
	"math"
	"strings"
	"time"

	"btmonitor/internal/eventlog"
	"btmonitor/internal/mirror"
	"btmonitor/internal/protocol"
)

// Any matches every value of a filter field.
const Any = "all"

type Filter struct {
	Type   string `json:"type"`
	State  string `json:"state"`
	Search string `json:"search"`
}

// Active reports whether f narrows the monster list at all.
func (f Filter) Active() bool {
	return !isAny(f.Type) || !isAny(f.State) || strings.TrimSpace(f.Search) != ""
}

func (f Filter) Match(m protocol.Monster) bool {
	if !isAny(f.Type) && m.Type != f.Type {
		return false
	}
	if !isAny(f.State) && m.State != f.State {
		return false
	}
	search := strings.TrimSpace(f.Search)
	if search != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(search)) {
		return false
	}
	return true
}

// Apply returns the matching monsters in their original order.
func (f Filter) Apply(monsters []protocol.Monster) []protocol.Monster {
	out := make([]protocol.Monster, 0, len(monsters))
	for _, m := range monsters {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	return out
}

func isAny(v string) bool { return v == "" || v == Any }

// Count is one bucket of a breakdown, kept in first-seen order.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type MonsterStats struct {
	Total   int     `json:"total"`
	ByType  []Count `json:"byType"`
	ByState []Count `json:"byState"`
}

func Monsters(monsters []protocol.Monster) MonsterStats {
	stats := MonsterStats{Total: len(monsters), ByType: []Count{}, ByState: []Count{}}
	types := map[string]int{}
	states := map[string]int{}
	for _, m := range monsters {
		stats.ByType = bump(stats.ByType, types, m.Type)
		stats.ByState = bump(stats.ByState, states, m.State)
	}
	return stats
}

func bump(counts []Count, index map[string]int, key string) []Count {
	if i, ok := index[key]; ok {
		counts[i].Count++
		return counts
	}
	index[key] = len(counts)
	return append(counts, Count{Key: key, Count: 1})
}

// HealthPercent is health/max rounded to the nearest percent. A non-positive
// max yields 0.
func HealthPercent(health, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(health / max * 100))
}

func HealthColor(health, max float64) string {
	var pct float64
	if max > 0 {
		pct = health / max * 100
	}
	switch {
	case pct > 60:
		return "#4CAF50"
	case pct > 30:
		return "#FF9800"
	default:
		return "#F44336"
	}
}

var monsterStateColors = map[string]string{
	protocol.StateIdle:   "#FFC107",
	protocol.StatePatrol: "#2196F3",
	protocol.StateChase:  "#FF9800",
	protocol.StateAttack: "#F44336",
	protocol.StateFlee:   "#9C27B0",
	protocol.StateDead:   "#9E9E9E",
}

func MonsterStateColor(state string) string {
	if c, ok := monsterStateColors[state]; ok {
		return c
	}
	return "#4CAF50"
}

// PlayerState is the integer player state carried on the wire.
type PlayerState int

const (
	PlayerOffline PlayerState = iota
	PlayerOnline
	PlayerInGame
	PlayerInCombat
	PlayerDead
)

var playerStates = map[PlayerState]struct{ label, color string }{
	PlayerOffline:  {"offline", "#9E9E9E"},
	PlayerOnline:   {"online", "#4CAF50"},
	PlayerInGame:   {"in game", "#2196F3"},
	PlayerInCombat: {"in combat", "#FF9800"},
	PlayerDead:     {"dead", "#F44336"},
}

func (s PlayerState) Label() string {
	if p, ok := playerStates[s]; ok {
		return p.label
	}
	return "unknown"
}

func (s PlayerState) Color() string {
	if p, ok := playerStates[s]; ok {
		return p.color
	}
	return "#9E9E9E"
}

// Since renders how long ago t was, relative to now.
func Since(now, t time.Time) string {
	if t.IsZero() {
		return "just now"
	}
	secs := int(now.Sub(t) / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	default:
		return fmt.Sprintf("%dh ago", secs/3600)
	}
}

type PlayerRow struct {
	protocol.Player
	StateLabel    string `json:"stateLabel"`
	StateColor    string `json:"stateColor"`
	HealthPercent int    `json:"healthPercent"`
}

type MonsterRow struct {
	protocol.Monster
	StateColor    string `json:"stateColor"`
	HealthPercent int    `json:"healthPercent"`
	HealthColor   string `json:"healthColor"`
}

// Dashboard is the aggregate view served to dashboards and the terminal UI.
type Dashboard struct {
	Seq      uint64               `json:"seq"`
	Phase    mirror.Phase         `json:"phase"`
	Filter   Filter               `json:"filter"`
	Filtered bool                 `json:"filtered"`
	Stats    MonsterStats         `json:"monsterStats"`
	Monsters []MonsterRow         `json:"monsters"`
	Players  []PlayerRow          `json:"players"`
	Server   protocol.ServerStats `json:"server"`
	Events   []eventlog.Entry     `json:"events"`
}

// Build computes the dashboard for snap. Stats cover every monster; the
// monster list is narrowed by f. Missing server counters read as zero.
func Build(snap mirror.Snapshot, f Filter) Dashboard {
	d := Dashboard{
		Seq:      snap.Seq,
		Phase:    snap.Phase,
		Filter:   f,
		Filtered: f.Active(),
		Stats:    Monsters(snap.Monsters),
		Events:   snap.Events,
	}
	if snap.Stats != nil {
		d.Server = *snap.Stats
	}
	if d.Events == nil {
		d.Events = []eventlog.Entry{}
	}

	matched := f.Apply(snap.Monsters)
	d.Monsters = make([]MonsterRow, 0, len(matched))
	for _, m := range matched {
		d.Monsters = append(d.Monsters, MonsterRow{
			Monster:       m,
			StateColor:    MonsterStateColor(m.State),
			HealthPercent: HealthPercent(m.Health, m.MaxHealth),
			HealthColor:   HealthColor(m.Health, m.MaxHealth),
		})
	}

	d.Players = make([]PlayerRow, 0, len(snap.Players))
	for _, p := range snap.Players {
		st := PlayerState(p.State)
		d.Players = append(d.Players, PlayerRow{
			Player:        p,
			StateLabel:    st.Label(),
			StateColor:    st.Color(),
			HealthPercent: HealthPercent(p.Stats.Health, p.Stats.MaxHealth),
		})
	}
	return d
}
