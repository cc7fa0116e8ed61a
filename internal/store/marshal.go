package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/pulse/internal/trace"
)

// marshalArgs converts trace arguments to canonical JSON TEXT for storage.
func marshalArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	data, err := trace.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses stored arguments. Numbers are decoded as json.Number
// and then narrowed to int64 when integral, so values written as integers
// come back as integers.
func unmarshalArgs(data string) ([]any, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	for i, v := range args {
		args[i] = narrowNumbers(v)
	}
	return args, nil
}

func narrowNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i, elem := range val {
			val[i] = narrowNumbers(elem)
		}
		return val
	case map[string]any:
		for k, elem := range val {
			val[k] = narrowNumbers(elem)
		}
		return val
	default:
		return v
	}
}
