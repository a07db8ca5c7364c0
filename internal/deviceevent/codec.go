package deviceevent

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// ToJSON serializes an Event to JSON, preserving field insertion order:
// "Id" first, then each key/value pair in the order they were first set.
// Integers are written unquoted, bytes as base64 strings, and strings
// verbatim.
func ToJSON(e *Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")

	idBytes, err := json.Marshal(e.Id)
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "marshal event id")
	}

	buf.WriteString(`"Id": `)
	buf.Write(idBytes)

	for _, p := range e.Pairs {
		buf.WriteString(", ")

		keyBytes, err := json.Marshal(p.Key)
		if err != nil {
			return nil, fwupderr.Wrap(fwupderr.Internal, err, "marshal event key %q", p.Key)
		}

		buf.Write(keyBytes)
		buf.WriteString(": ")

		switch p.Value.Type {
		case TypeI64:
			buf.WriteString(strconv.FormatInt(p.Value.I64, 10))
		case TypeString:
			strBytes, err := json.Marshal(p.Value.Str)
			if err != nil {
				return nil, fwupderr.Wrap(fwupderr.Internal, err, "marshal event string value for %q", p.Key)
			}

			buf.Write(strBytes)
		case TypeBytes:
			enc := base64.StdEncoding.EncodeToString(p.Value.Bytes)
			encBytes, err := json.Marshal(enc)
			if err != nil {
				return nil, fwupderr.Wrap(fwupderr.Internal, err, "marshal event bytes value for %q", p.Key)
			}

			buf.Write(encBytes)
		default:
			return nil, fwupderr.New(fwupderr.Internal, "unknown value type %d for key %q", p.Value.Type, p.Key)
		}
	}

	buf.WriteString("}")
	return buf.Bytes(), nil
}

// FromJSON parses the JSON produced by ToJSON back into an Event. String
// values decode as TypeString; GetBytes on such a pair transparently
// base64-decodes it, since the wire format carries no separate tag for
// "base64 bytes" vs "plain string" and the reading call site is what
// establishes the intended type.
func FromJSON(data []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.InvalidData, err, "decode event json")
	}

	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fwupderr.New(fwupderr.InvalidData, "event json does not start with an object")
	}

	e := &Event{}
	first := true

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fwupderr.Wrap(fwupderr.InvalidData, err, "decode event json key")
		}

		key, ok := keyTok.(string)
		if !ok {
			return nil, fwupderr.New(fwupderr.InvalidData, "event json key is not a string")
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, fwupderr.Wrap(fwupderr.InvalidData, err, "decode event json value for %q", key)
		}

		if first && key == "Id" {
			idStr, ok := valTok.(string)
			if !ok {
				return nil, fwupderr.New(fwupderr.InvalidData, "event json Id is not a string")
			}

			e.Id = idStr
			e.RawID = len(idStr) == 0 || idStr[0] != '#'
			first = false
			continue
		}

		first = false

		switch v := valTok.(type) {
		case string:
			// The wire format carries no distinct "bytes" tag for string
			// values; GetBytes() on a TypeString pair transparently
			// base64-decodes, so this single representation satisfies
			// both GetStr and GetBytes callers post round-trip.
			e.set(key, Value{Type: TypeString, Str: v})
		case float64:
			e.set(key, Value{Type: TypeI64, I64: int64(v)})
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fwupderr.Wrap(fwupderr.InvalidData, err, "decode integer event value for %q", key)
			}

			e.set(key, Value{Type: TypeI64, I64: n})
		default:
			return nil, fwupderr.New(fwupderr.InvalidData, "unsupported event value type for %q", key)
		}
	}

	// Consume the closing '}'.
	_, err = dec.Token()
	if err != nil && err != io.EOF {
		return nil, fwupderr.Wrap(fwupderr.InvalidData, err, "decode event json closing brace")
	}

	return e, nil
}

// MarshalJSON implements json.Marshaler so Event can be embedded in larger
// structures (e.g. a device's Events[] array) and still serialize with the
// ordered, hand-rolled encoding above.
func (e *Event) MarshalJSON() ([]byte, error) {
	return ToJSON(e)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	decoded, err := FromJSON(data)
	if err != nil {
		return err
	}

	*e = *decoded
	return nil
}
