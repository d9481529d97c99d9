package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrMissingType = errors.New("frame has no type")
	ErrNotList     = errors.New("payload is not a list")
)

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return e, nil
}

// DecodePayload decodes one record leniently: see decodeLenient.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		var zero T
		return zero, fmt.Errorf("empty payload")
	}
	return decodeLenient[T](raw)
}

// DecodeList decodes a JSON array element by element. Elements that fail to
// decode are counted in skipped and left out. A missing list yields nil.
func DecodeList[T any](raw json.RawMessage) (items []T, skipped int, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, 0, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, 0, ErrNotList
	}
	items = make([]T, 0, len(elems))
	for _, el := range elems {
		v, err := decodeLenient[T](el)
		if err != nil {
			skipped++
			continue
		}
		items = append(items, v)
	}
	return items, skipped, nil
}

// maxRepairs bounds how many mistyped fields one record may carry.
const maxRepairs = 16

// decodeLenient decodes an object into T. A field whose JSON type does not
// match is dropped and left zero instead of failing the whole record. Errors
// that are not field type mismatches (including a bad id) still fail.
func decodeLenient[T any](raw json.RawMessage) (T, error) {
	var out T
	err := json.Unmarshal(raw, &out)
	if err == nil {
		return out, nil
	}

	var tree map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if dec.Decode(&tree) != nil || tree == nil {
		return out, err
	}
	for i := 0; i < maxRepairs; i++ {
		var te *json.UnmarshalTypeError
		if !errors.As(err, &te) || te.Field == "" || te.Field == "id" || !dropPath(tree, strings.Split(te.Field, ".")) {
			return out, err
		}
		fixed, mErr := json.Marshal(tree)
		if mErr != nil {
			return out, err
		}
		var v T
		if err = json.Unmarshal(fixed, &v); err == nil {
			return v, nil
		}
	}
	return out, err
}

// dropPath deletes the value at path from a decoded object tree.
func dropPath(tree map[string]any, path []string) bool {
	for len(path) > 1 {
		next, ok := tree[objectKey(tree, path[0])].(map[string]any)
		if !ok {
			return false
		}
		tree, path = next, path[1:]
	}
	key := objectKey(tree, path[0])
	if _, ok := tree[key]; !ok {
		return false
	}
	delete(tree, key)
	return true
}

// objectKey finds the key encoding/json would have matched, which ignores
// case when there is no exact match.
func objectKey(tree map[string]any, name string) string {
	if _, ok := tree[name]; ok {
		return name
	}
	for k := range tree {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return name
}

// Encode serializes an outbound message.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("trying to encode nil message")
	}
	return json.Marshal(v)
}
