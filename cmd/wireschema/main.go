// Command wireschema writes a JSON Schema describing the frames the game
// server pushes to the monitor.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"btmonitor/internal/protocol"
)

func main() {
	var outPath, frame string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.StringVar(&frame, "type", "", "emit only this message type (default: the whole catalog)")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema, err := buildSchema(frame)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema(frame string) (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
		Mapper:                     mapWireType,
	}
	if frame == "" {
		schema := reflector.Reflect(new(frameCatalog))
		schema.Title = "BT monitor wire frames"
		schema.Description = "One property per message type pushed by the game server"
		return schema, nil
	}
	v, ok := frameTypes[frame]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", frame)
	}
	schema := reflector.Reflect(v)
	schema.Title = frame
	return schema, nil
}

var idType = reflect.TypeOf(protocol.ID(""))

// mapWireType covers types whose JSON form differs from their Go kind.
func mapWireType(t reflect.Type) *jsonschema.Schema {
	if t != idType {
		return nil
	}
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string", MinLength: 1},
		},
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
