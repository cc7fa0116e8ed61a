package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/pulse/internal/engine"
)

// MarshalCanonical renders v as canonical JSON: object keys sorted by
// UTF-16 code units, strings NFC-normalized, no HTML escaping, no
// insignificant whitespace. Two equal traces always produce the same bytes.
//
// Supported: nil, bool, integers, floats (finite), string, []any,
// map[string]any and []Event. Listener arguments of other types should be
// passed through Value first.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float64:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("float %v: %w", val, err)
		}
		buf.Write(b)
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareUTF16)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case []Event:
		list := make([]any, len(val))
		for i, ev := range val {
			list[i] = ev.canonicalMap()
		}
		return writeCanonical(buf, list)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// compareUTF16 orders strings by UTF-16 code units.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Value converts a listener argument into something MarshalCanonical
// accepts. Arteries and pulses become short descriptive strings, errors
// their message; unknown types are rendered with %v.
func Value(v any) any {
	switch val := v.(type) {
	case nil, bool, int, int64, int32, uint64, float64, string:
		return val
	case float32:
		return float64(val)
	case uint:
		return uint64(val)
	case *engine.Artery:
		if val == nil {
			return nil
		}
		return "artery:" + val.Token
	case *engine.Pulse:
		if val == nil {
			return nil
		}
		return fmt.Sprintf("pulse:%s#%d", val.Event, val.Count)
	case error:
		return val.Error()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Value(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Value(elem)
		}
		return out
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Values applies Value to every element of args.
func Values(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = Value(a)
	}
	return out
}
