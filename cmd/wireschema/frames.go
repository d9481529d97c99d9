package main

import (
	"btmonitor/internal/protocol"
)

// Frame shapes as they appear on the wire. The mirror decodes the envelope
// loosely; these types exist to document it. Only the keys the mirror cannot
// do without are required.

type monsterUpdateFrame struct {
	Type      string             `json:"type" jsonschema:"required,enum=monster_update"`
	Timestamp any                `json:"timestamp,omitempty" jsonschema:"description=Server time; kept verbatim"`
	Monsters  []protocol.Monster `json:"monsters" jsonschema:"required,description=Full records; each replaces the stored one with the same id"`
}

type playerUpdateFrame struct {
	Type      string            `json:"type" jsonschema:"required,enum=player_update"`
	Timestamp any               `json:"timestamp,omitempty"`
	Players   []protocol.Player `json:"players" jsonschema:"required"`
}

type monsterSpawnFrame struct {
	Type      string           `json:"type" jsonschema:"required,enum=monster_spawn"`
	Timestamp any              `json:"timestamp,omitempty"`
	Data      protocol.Monster `json:"data" jsonschema:"required"`
}

type monsterDeathFrame struct {
	Type      string              `json:"type" jsonschema:"required,enum=monster_death"`
	Timestamp any                 `json:"timestamp,omitempty"`
	Data      protocol.MonsterRef `json:"data" jsonschema:"required"`
}

type serverStatsFrame struct {
	Type      string               `json:"type" jsonschema:"required,enum=server_stats"`
	Timestamp any                  `json:"timestamp,omitempty"`
	Data      protocol.ServerStats `json:"data" jsonschema:"required"`
}

type systemMessageFrame struct {
	Type      string                 `json:"type" jsonschema:"required,enum=system_message"`
	Timestamp any                    `json:"timestamp,omitempty"`
	Data      protocol.SystemMessage `json:"data" jsonschema:"required"`
}

type btExecutionFrame struct {
	Type      string               `json:"type" jsonschema:"required,enum=bt_execution"`
	Timestamp any                  `json:"timestamp,omitempty"`
	Data      protocol.BTExecution `json:"data" jsonschema:"required"`
}

type frameCatalog struct {
	MonsterUpdate monsterUpdateFrame `json:"monster_update"`
	PlayerUpdate  playerUpdateFrame  `json:"player_update"`
	MonsterSpawn  monsterSpawnFrame  `json:"monster_spawn"`
	MonsterDeath  monsterDeathFrame  `json:"monster_death"`
	ServerStats   serverStatsFrame   `json:"server_stats"`
	SystemMessage systemMessageFrame `json:"system_message"`
	BTExecution   btExecutionFrame   `json:"bt_execution"`
}

var frameTypes = map[string]any{
	protocol.MsgMonsterUpdate: new(monsterUpdateFrame),
	protocol.MsgPlayerUpdate:  new(playerUpdateFrame),
	protocol.MsgMonsterSpawn:  new(monsterSpawnFrame),
	protocol.MsgMonsterDeath:  new(monsterDeathFrame),
	protocol.MsgServerStats:   new(serverStatsFrame),
	protocol.MsgSystemMessage: new(systemMessageFrame),
	protocol.MsgBTExecution:   new(btExecutionFrame),
}
