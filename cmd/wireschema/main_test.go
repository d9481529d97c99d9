package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCatalogSchema(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schema", "frames.json")
	schema, err := buildSchema("")
	if err != nil {
		t.Fatalf("buildSchema: %v", err)
	}
	if err := writeSchema(out, schema); err != nil {
		t.Fatalf("writeSchema: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	for _, want := range []string{"monster_update", "bt_execution", "max_health", "registeredBTTrees", "monster_name"} {
		if !strings.Contains(text, want) {
			t.Errorf("schema does not mention %q", want)
		}
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestSingleFrame(t *testing.T) {
	if _, err := buildSchema("player_join"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	schema, err := buildSchema("server_stats")
	if err != nil {
		t.Fatalf("buildSchema: %v", err)
	}
	if schema.Title != "server_stats" {
		t.Fatalf("Title = %q", schema.Title)
	}
}

// schemaDefs reflects one frame type and returns its $defs as plain JSON.
func schemaDefs(t *testing.T, frame string) map[string]map[string]any {
	t.Helper()
	schema, err := buildSchema(frame)
	if err != nil {
		t.Fatalf("buildSchema: %v", err)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc struct {
		Defs map[string]map[string]any `json:"$defs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc.Defs
}

func required(def map[string]any) []string {
	var out []string
	list, _ := def["required"].([]any)
	for _, v := range list {
		out = append(out, v.(string))
	}
	return out
}

// missingKeys walks obj against def and reports required keys that are
// absent, following $ref into nested objects and arrays.
func missingKeys(defs map[string]map[string]any, def map[string]any, obj map[string]any, path string) []string {
	var missing []string
	for _, key := range required(def) {
		if _, ok := obj[key]; !ok {
			missing = append(missing, path+key)
		}
	}
	props, _ := def["properties"].(map[string]any)
	for key, val := range obj {
		prop, _ := props[key].(map[string]any)
		if prop == nil {
			continue
		}
		if items, ok := prop["items"].(map[string]any); ok {
			prop = items
		}
		ref, _ := prop["$ref"].(string)
		sub := defs[strings.TrimPrefix(ref, "#/$defs/")]
		if sub == nil {
			continue
		}
		switch v := val.(type) {
		case map[string]any:
			missing = append(missing, missingKeys(defs, sub, v, path+key+".")...)
		case []any:
			for _, el := range v {
				if o, ok := el.(map[string]any); ok {
					missing = append(missing, missingKeys(defs, sub, o, path+key+"[].")...)
				}
			}
		}
	}
	return missing
}

func TestSchemaAcceptsServerFrames(t *testing.T) {
	cases := []struct {
		frame  string
		root   string
		sample string
	}{
		{"monster_update", "monsterUpdateFrame", `{"type":"monster_update","timestamp":1712,"monsters":[{"id":1,"name":"orc","health":5},{"id":"g-2"}]}`},
		{"player_update", "playerUpdateFrame", `{"type":"player_update","players":[{"id":7,"stats":{"mana":3}}]}`},
		{"monster_death", "monsterDeathFrame", `{"type":"monster_death","data":{"id":5,"name":"wolf"}}`},
		{"monster_spawn", "monsterSpawnFrame", `{"type":"monster_spawn","data":{"id":5,"name":"wolf","type":"BEAST"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.frame, func(t *testing.T) {
			defs := schemaDefs(t, tc.frame)
			var obj map[string]any
			if err := json.Unmarshal([]byte(tc.sample), &obj); err != nil {
				t.Fatalf("sample: %v", err)
			}
			if missing := missingKeys(defs, defs[tc.root], obj, ""); len(missing) > 0 {
				t.Fatalf("schema requires keys the server does not send: %v", missing)
			}
		})
	}
}

func TestSchemaWireShapes(t *testing.T) {
	defs := schemaDefs(t, "monster_update")
	monster := defs["Monster"]
	if monster == nil {
		t.Fatalf("no Monster definition in %v", defs)
	}
	props := monster["properties"].(map[string]any)
	if _, ok := props["lastUpdate"]; ok {
		t.Fatalf("locally stamped lastUpdate appears on the wire schema")
	}
	id := props["id"].(map[string]any)
	if id["type"] == "string" {
		t.Fatalf("id is string-only: %v", id)
	}
	var kinds []string
	for _, alt := range id["oneOf"].([]any) {
		kinds = append(kinds, alt.(map[string]any)["type"].(string))
	}
	if strings.Join(kinds, ",") != "integer,string" {
		t.Fatalf("id alternatives = %v", kinds)
	}
	if got := strings.Join(required(monster), ","); got != "id" {
		t.Fatalf("Monster required = %s, want id", got)
	}

	death := schemaDefs(t, "monster_death")["MonsterRef"]
	if got := strings.Join(required(death), ","); got != "id,name" {
		t.Fatalf("death payload required = %s, want id,name", got)
	}
}
