// Package deviceevent implements the typed key->value event record used to
// capture and replay transport calls for emulation.
//
// An Event's Id is a short, deliberately non-cryptographic content-addressed
// key: a "#"-prefixed 8 hex character prefix of the SHA-1 digest of the
// caller-supplied key string.
package deviceevent

import (
	"crypto/sha1" //nolint:gosec // deliberate non-cryptographic content-addressed shortener, see package doc.
	"encoding/base64"
	"fmt"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// ValueType is the type tag of a single recorded value.
type ValueType int

// Value types a Pair can carry.
const (
	TypeI64 ValueType = iota
	TypeString
	TypeBytes
)

// Value is a single typed value attached to an event under a key.
type Value struct {
	Type  ValueType
	I64   int64
	Str   string
	Bytes []byte
}

// Pair is one key->Value entry, kept in call order.
type Pair struct {
	Key   string
	Value Value
}

// Event is an ordered, typed record of one recorded transport call.
type Event struct {
	// Id is the compressed "#xxxxxxxx" short content-addressed id, or
	// (when RawID is set) the literal uncompressed key.
	Id    string
	RawID bool

	// Source is the call-site name (e.g. "UsbDevice.ControlTransfer"),
	// carried purely for debug logging.
	Source string

	Pairs []Pair
}

// BuildID computes the compressed "#xxxxxxxx" id for a caller-supplied key.
func BuildID(key string) string {
	sum := sha1.Sum([]byte(key)) //nolint:gosec
	return fmt.Sprintf("#%x", sum[:4])
}

// New creates an Event from a caller-supplied key, compressing it to a
// short id unless raw is requested.
func New(key string, raw bool) *Event {
	if raw {
		return &Event{Id: key, RawID: true}
	}

	return &Event{Id: BuildID(key)}
}

func (e *Event) indexOf(key string) int {
	for i, p := range e.Pairs {
		if p.Key == key {
			return i
		}
	}

	return -1
}

func (e *Event) set(key string, v Value) {
	if i := e.indexOf(key); i >= 0 {
		e.Pairs[i].Value = v
		return
	}

	e.Pairs = append(e.Pairs, Pair{Key: key, Value: v})
}

// SetStr records a string value under key.
func (e *Event) SetStr(key, value string) {
	e.set(key, Value{Type: TypeString, Str: value})
}

// SetI64 records an integer value under key.
func (e *Event) SetI64(key string, value int64) {
	e.set(key, Value{Type: TypeI64, I64: value})
}

// SetBytes records a byte-slice value under key (serialized as base64).
func (e *Event) SetBytes(key string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	e.set(key, Value{Type: TypeBytes, Bytes: cp})
}

// SetData is an alias for SetBytes matching fwupd's "Data" field naming for
// arbitrary payload blobs.
func (e *Event) SetData(key string, value []byte) {
	e.SetBytes(key, value)
}

// GetStr returns the string value at key, or an error if missing or of the
// wrong type.
func (e *Event) GetStr(key string) (string, error) {
	i := e.indexOf(key)
	if i < 0 {
		return "", fwupderr.New(fwupderr.NotFound, "no event value for key %q", key)
	}

	v := e.Pairs[i].Value
	if v.Type != TypeString {
		return "", fwupderr.New(fwupderr.InvalidData, "event value for key %q is not a string", key)
	}

	return v.Str, nil
}

// GetI64 returns the integer value at key, or an error if missing or of the
// wrong type.
func (e *Event) GetI64(key string) (int64, error) {
	i := e.indexOf(key)
	if i < 0 {
		return 0, fwupderr.New(fwupderr.NotFound, "no event value for key %q", key)
	}

	v := e.Pairs[i].Value
	if v.Type != TypeI64 {
		return 0, fwupderr.New(fwupderr.InvalidData, "event value for key %q is not an integer", key)
	}

	return v.I64, nil
}

// GetBytes returns the byte-slice value at key, or an error if missing or
// of the wrong type. A value that round-tripped through the JSON codec as
// a generic string (the wire format carries no distinct "bytes" tag) is
// accepted too and base64-decoded, since the caller reading via GetBytes
// is what establishes the key's intended type, not the wire shape.
func (e *Event) GetBytes(key string) ([]byte, error) {
	i := e.indexOf(key)
	if i < 0 {
		return nil, fwupderr.New(fwupderr.NotFound, "no event value for key %q", key)
	}

	v := e.Pairs[i].Value
	switch v.Type {
	case TypeBytes:
		out := make([]byte, len(v.Bytes))
		copy(out, v.Bytes)
		return out, nil
	case TypeString:
		decoded, err := base64.StdEncoding.DecodeString(v.Str)
		if err != nil {
			return nil, fwupderr.Wrap(fwupderr.InvalidData, err, "event value for key %q is not valid base64", key)
		}

		return decoded, nil
	default:
		return nil, fwupderr.New(fwupderr.InvalidData, "event value for key %q is not bytes", key)
	}
}

// GetData is an alias for GetBytes.
func (e *Event) GetData(key string) ([]byte, error) {
	return e.GetBytes(key)
}
