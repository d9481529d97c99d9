package summary

import (
	"reflect"
	"testing"
	"time"

	"btmonitor/internal/mirror"
	"btmonitor/internal/protocol"
)

var roster = []protocol.Monster{
	{ID: "1", Name: "Grunt", Type: "ORC", State: protocol.StatePatrol, Health: 80, MaxHealth: 100},
	{ID: "2", Name: "Sneaky Gob", Type: "GOBLIN", State: protocol.StateChase, Health: 10, MaxHealth: 40},
	{ID: "3", Name: "Orc Chief", Type: "ORC", State: protocol.StateChase, Health: 0, MaxHealth: 200},
}

func names(ms []protocol.Monster) []string {
	out := []string{}
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
		active bool
	}{
		{"zero value", Filter{}, []string{"Grunt", "Sneaky Gob", "Orc Chief"}, false},
		{"explicit all", Filter{Type: Any, State: Any}, []string{"Grunt", "Sneaky Gob", "Orc Chief"}, false},
		{"by type", Filter{Type: "ORC"}, []string{"Grunt", "Orc Chief"}, true},
		{"by state", Filter{State: protocol.StateChase}, []string{"Sneaky Gob", "Orc Chief"}, true},
		{"type and state", Filter{Type: "ORC", State: protocol.StateChase}, []string{"Orc Chief"}, true},
		{"search ignores case", Filter{Search: "ORC"}, []string{"Orc Chief"}, true},
		{"no match", Filter{Type: "DRAGON"}, []string{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := names(tt.filter.Apply(roster)); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Apply = %v, want %v", got, tt.want)
			}
			if tt.filter.Active() != tt.active {
				t.Fatalf("Active = %v", tt.filter.Active())
			}
		})
	}
}

func TestMonsterStats(t *testing.T) {
	got := Monsters(roster)
	want := MonsterStats{
		Total:   3,
		ByType:  []Count{{"ORC", 2}, {"GOBLIN", 1}},
		ByState: []Count{{protocol.StatePatrol, 1}, {protocol.StateChase, 2}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Monsters = %+v, want %+v", got, want)
	}
	if empty := Monsters(nil); empty.Total != 0 || empty.ByType == nil {
		t.Fatalf("empty stats = %+v", empty)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		health, max float64
		pct         int
		color       string
	}{
		{100, 100, 100, "#4CAF50"},
		{61, 100, 61, "#4CAF50"},
		{60, 100, 60, "#FF9800"},
		{31, 100, 31, "#FF9800"},
		{30, 100, 30, "#F44336"},
		{1, 3, 33, "#FF9800"},
		{5, 0, 0, "#F44336"},
	}
	for _, tt := range tests {
		if got := HealthPercent(tt.health, tt.max); got != tt.pct {
			t.Errorf("HealthPercent(%v, %v) = %d, want %d", tt.health, tt.max, got, tt.pct)
		}
		if got := HealthColor(tt.health, tt.max); got != tt.color {
			t.Errorf("HealthColor(%v, %v) = %s, want %s", tt.health, tt.max, got, tt.color)
		}
	}
}

func TestPlayerStateLabels(t *testing.T) {
	tests := []struct {
		state PlayerState
		label string
		color string
	}{
		{PlayerOffline, "offline", "#9E9E9E"},
		{PlayerOnline, "online", "#4CAF50"},
		{PlayerInGame, "in game", "#2196F3"},
		{PlayerInCombat, "in combat", "#FF9800"},
		{PlayerDead, "dead", "#F44336"},
		{PlayerState(9), "unknown", "#9E9E9E"},
		{PlayerState(-1), "unknown", "#9E9E9E"},
	}
	for _, tt := range tests {
		if tt.state.Label() != tt.label || tt.state.Color() != tt.color {
			t.Errorf("state %d = %s %s", tt.state, tt.state.Label(), tt.state.Color())
		}
	}
	if MonsterStateColor("DANCING") != "#4CAF50" || MonsterStateColor(protocol.StateFlee) != "#9C27B0" {
		t.Fatalf("monster state colours wrong")
	}
}

func TestSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "just now"},
		{now.Add(-42 * time.Second), "42s ago"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(time.Second), "0s ago"},
	}
	for _, tt := range tests {
		if got := Since(now, tt.at); got != tt.want {
			t.Errorf("Since = %q, want %q", got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	snap := mirror.Snapshot{
		Seq:      7,
		Phase:    mirror.PhaseConnected,
		Monsters: roster,
		Players: []protocol.Player{
			{ID: "10", Name: "kim", State: 3, Stats: protocol.PlayerStats{Health: 50, MaxHealth: 200}},
		},
	}
	d := Build(snap, Filter{Type: "GOBLIN"})

	if d.Seq != 7 || d.Phase != mirror.PhaseConnected {
		t.Fatalf("header = %d %s", d.Seq, d.Phase)
	}
	if d.Stats.Total != 3 {
		t.Fatalf("stats should cover every monster: %+v", d.Stats)
	}
	if !d.Filtered {
		t.Fatalf("type filter not reported as active")
	}
	if all := Build(snap, Filter{Type: Any, Search: "  "}); all.Filtered || len(all.Monsters) != 3 {
		t.Fatalf("blank filter: filtered=%v monsters=%d", all.Filtered, len(all.Monsters))
	}
	if len(d.Monsters) != 1 || d.Monsters[0].Name != "Sneaky Gob" || d.Monsters[0].HealthPercent != 25 {
		t.Fatalf("monsters = %+v", d.Monsters)
	}
	if len(d.Players) != 1 || d.Players[0].StateLabel != "in combat" || d.Players[0].HealthPercent != 25 {
		t.Fatalf("players = %+v", d.Players)
	}
	if d.Server != (protocol.ServerStats{}) || d.Events == nil {
		t.Fatalf("missing stats should be zero and events non-nil: %+v", d)
	}
}
