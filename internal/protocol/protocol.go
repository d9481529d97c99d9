package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Message types pushed by the game server.
const (
	MsgMonsterUpdate = "monster_update"
	MsgPlayerUpdate  = "player_update"
	MsgMonsterSpawn  = "monster_spawn"
	MsgMonsterDeath  = "monster_death"
	MsgServerStats   = "server_stats"
	MsgSystemMessage = "system_message"
	MsgBTExecution   = "bt_execution"
)

// Envelope is one inbound frame. Only the fields relevant to Type are set.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Monsters  json.RawMessage `json:"monsters,omitempty"`
	Players   json.RawMessage `json:"players,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ID identifies an entity within its collection. The server sends numbers,
// strings are accepted too. The zero value means the id was absent.
type ID string

func (id ID) Valid() bool { return id != "" }

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	// Only canonical integers go out bare; "007" stays a string.
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

type Position struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

// Monster states reported by the behavior tree runtime.
const (
	StateIdle   = "IDLE"
	StatePatrol = "PATROL"
	StateChase  = "CHASE"
	StateAttack = "ATTACK"
	StateFlee   = "FLEE"
	StateDead   = "DEAD"
)

type Monster struct {
	ID        ID       `json:"id" jsonschema:"required"`
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	State     string   `json:"state,omitempty"`
	Position  Position `json:"position"`
	Health    float64  `json:"health"`
	MaxHealth float64  `json:"max_health"`
	Level     int      `json:"level,omitempty"`
	AIName    string   `json:"ai_name,omitempty"`
	BTName    string   `json:"bt_name,omitempty"`

	// LastUpdate is stamped locally when the record is written.
	LastUpdate time.Time `json:"lastUpdate" jsonschema:"-"`
}

// MonsterRef is the payload of monster_death frames.
type MonsterRef struct {
	ID   ID     `json:"id" jsonschema:"required"`
	Name string `json:"name" jsonschema:"required"`
}

type PlayerStats struct {
	Level      int     `json:"level"`
	Health     float64 `json:"health"`
	MaxHealth  float64 `json:"max_health"`
	Mana       float64 `json:"mana"`
	MaxMana    float64 `json:"max_mana"`
	Experience int64   `json:"experience"`
}

type Player struct {
	ID           ID          `json:"id" jsonschema:"required"`
	Name         string      `json:"name"`
	State        int         `json:"state"`
	Position     Position    `json:"position"`
	Stats        PlayerStats `json:"stats"`
	CurrentMapID int         `json:"current_map_id,omitempty"`
	IsAlive      bool        `json:"is_alive"`

	LastUpdate time.Time `json:"lastUpdate" jsonschema:"-"`
}

// ServerStats is the aggregate counters payload of server_stats frames.
type ServerStats struct {
	TotalMonsters     int `json:"totalMonsters"`
	ActiveMonsters    int `json:"activeMonsters"`
	TotalPlayers      int `json:"totalPlayers"`
	RegisteredBTTrees int `json:"registeredBTTrees"`
	ConnectedClients  int `json:"connectedClients"`
}

type SystemMessage struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message" jsonschema:"required"`
}

type BTExecution struct {
	MonsterName string `json:"monster_name"`
	Action      string `json:"action"`
}
