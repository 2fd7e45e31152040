package session

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// numbers keep their textual form so ids like 9007199254740993 survive decoding
var decodeAPI = sonic.Config{UseNumber: true}.Froze()

// Record is a JSON object exactly as the server sent it. The decoded view is
// for accessors and YAML output; JSON output re-emits the raw bytes.
type Record struct {
	raw    json.RawMessage
	fields map[string]interface{}
}

// NewRecord validates raw as a JSON object.
func NewRecord(raw []byte) (Record, error) {
	var fields map[string]interface{}
	if err := decodeAPI.Unmarshal(raw, &fields); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnexpectedBody, err)
	}
	if fields == nil {
		return Record{}, fmt.Errorf("%w: expected a JSON object", ErrUnexpectedBody)
	}
	return Record{raw: append(json.RawMessage(nil), raw...), fields: fields}, nil
}

// DecodeUsers splits a JSON array of objects into records.
func DecodeUsers(body []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := decodeAPI.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array: %v", ErrUnexpectedBody, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrUnexpectedBody)
	}

	users := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := NewRecord(item)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", i, err)
		}
		users = append(users, rec)
	}
	return users, nil
}

// Raw returns the original bytes.
func (r Record) Raw() []byte {
	return r.raw
}

// Field returns a decoded top-level field.
func (r Record) Field(name string) (interface{}, bool) {
	v, ok := r.fields[name]
	return v, ok
}

func (r Record) ID() string        { return r.str("id") }
func (r Record) FirstName() string { return r.str("firstName") }
func (r Record) LastName() string  { return r.str("lastName") }
func (r Record) Email() string     { return r.str("email") }

func (r Record) str(name string) string {
	switch v := r.fields[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// MarshalJSON re-emits the received bytes.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

// UnmarshalJSON keeps a copy of b.
func (r *Record) UnmarshalJSON(b []byte) error {
	rec, err := NewRecord(b)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// MarshalYAML emits the decoded object with numbers restored to numeric types.
func (r Record) MarshalYAML() (interface{}, error) {
	if r.fields == nil {
		return nil, nil
	}
	return plain(r.fields), nil
}

func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// Result is the assembled output of a run.
type Result struct {
	Users       []Record `json:"users" yaml:"users"`
	CurrentUser Record   `json:"current_user" yaml:"current_user"`
}
