package flagfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNotObject is returned when a payload decodes to something other than a
// JSON object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Payload is a request body. Unknown fields are carried but ignored.
type Payload map[string]any

// ReadPayload reads and decodes the request file at path.
func ReadPayload(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePayload(data)
}

// ParsePayload decodes a request body. Numbers are kept as json.Number so
// integer ids and fractional timestamps survive unchanged.
func ParsePayload(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("payload is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode payload: trailing data after JSON object")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Payload(obj), nil
}

// Marshal encodes p as compact JSON.
func (p Payload) Marshal() ([]byte, error) {
	if p == nil {
		p = Payload{}
	}
	return json.Marshal(map[string]any(p))
}

// String returns field as trimmed text. Numbers are rendered in their JSON
// form; every other type yields "".
func (p Payload) String(field string) string {
	switch v := p[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Missing lists the fields that are absent or empty.
func (p Payload) Missing(fields ...string) []string {
	var missing []string
	for _, field := range fields {
		if p.String(field) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Timestamp reads field as either Unix seconds (fractional allowed) or an
// RFC 3339 string.
func (p Payload) Timestamp(field string) (time.Time, error) {
	switch v := p[field].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", field, err)
		}
		return unixFloat(f)
	case float64:
		return unixFloat(v)
	case int64:
		return time.Unix(v, 0), nil
	case int:
		return time.Unix(int64(v), 0), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, fmt.Errorf("%s: empty", field)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return unixFloat(f)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", field, err)
		}
		return ts, nil
	case nil:
		return time.Time{}, fmt.Errorf("%s: missing", field)
	default:
		return time.Time{}, fmt.Errorf("%s: unsupported type %T", field, v)
	}
}

func unixFloat(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return time.Time{}, fmt.Errorf("invalid unix timestamp %v", f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))), nil
}
