package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hupe1980/agentloop/core"
)

// fieldTypes records the Go kind of top-level numeric extra fields. JSON has
// a single number type, so without it an int field would come back as
// float64 and an int64 beyond 2^53 would lose precision.
type fieldTypes map[string]string

func encodeState(state *core.ConversationState) (stateJSON, typesJSON []byte, err error) {
	stateJSON, err = json.Marshal(state)
	if err != nil {
		return nil, nil, err
	}

	types := fieldTypes{}
	for k, v := range state.ExtraFields {
		if kind := numberKind(v); kind != "" {
			types[k] = kind
		}
	}
	typesJSON, err = json.Marshal(types)
	if err != nil {
		return nil, nil, err
	}
	return stateJSON, typesJSON, nil
}

func decodeState(stateJSON, typesJSON []byte) (*core.ConversationState, error) {
	state := core.NewConversationState()
	dec := json.NewDecoder(bytes.NewReader(stateJSON))
	dec.UseNumber()
	if err := dec.Decode(state); err != nil {
		return nil, err
	}

	types := fieldTypes{}
	if len(typesJSON) > 0 {
		if err := json.Unmarshal(typesJSON, &types); err != nil {
			return nil, fmt.Errorf("decode field types: %w", err)
		}
	}

	if state.Messages == nil {
		state.Messages = []core.Message{}
	}
	if state.ExtraFields == nil {
		state.ExtraFields = map[string]any{}
	}
	for k, v := range state.ExtraFields {
		if n, ok := v.(json.Number); ok {
			typed, err := restoreNumber(n, types[k])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			state.ExtraFields[k] = typed
			continue
		}
		state.ExtraFields[k] = plainNumbers(v)
	}
	return state, nil
}

func numberKind(v any) string {
	switch v.(type) {
	case int:
		return "int"
	case int8:
		return "int8"
	case int16:
		return "int16"
	case int32:
		return "int32"
	case int64:
		return "int64"
	case uint:
		return "uint"
	case uint8:
		return "uint8"
	case uint16:
		return "uint16"
	case uint32:
		return "uint32"
	case uint64:
		return "uint64"
	case float32:
		return "float32"
	case float64:
		return "float64"
	}
	return ""
}

// restoreNumber converts n back to the recorded kind. Unknown kinds decode as
// float64, matching encoding/json's default.
func restoreNumber(n json.Number, kind string) (any, error) {
	s := n.String()
	switch kind {
	case "int", "int8", "int16", "int32", "int64":
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "int":
			return int(i), nil
		case "int8":
			return int8(i), nil
		case "int16":
			return int16(i), nil
		case "int32":
			return int32(i), nil
		}
		return i, nil
	case "uint", "uint8", "uint16", "uint32", "uint64":
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "uint":
			return uint(u), nil
		case "uint8":
			return uint8(u), nil
		case "uint16":
			return uint16(u), nil
		case "uint32":
			return uint32(u), nil
		}
		return u, nil
	case "float32":
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	default:
		return n.Float64()
	}
}

// plainNumbers replaces json.Number inside nested values with float64.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = plainNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = plainNumbers(item)
		}
		return t
	}
	return v
}
