// Package models holds the records that flow through the streamer pipeline.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

var (
	// ErrKeyNotFound is returned by accessors when a record has no such key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTypeMismatch is returned when a key exists but holds a different type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNotObject is returned when a raw event is not a JSON object.
	ErrNotObject = errors.New("event is not a JSON object")

	// ErrInvalidUTF8 is returned when a raw event contains bytes that are not UTF-8.
	ErrInvalidUTF8 = errors.New("event is not valid UTF-8")
)

// EventRecord is one ingested item from the feed. It is read-only: the
// accessors hand out copies or scalar values, never the backing map.
type EventRecord struct {
	fields     map[string]any
	raw        []byte
	receivedAt time.Time
}

// Author identifies the account that produced an event.
type Author struct {
	ScreenName string
	ID         string
}

// DecodeEventRecord parses a raw JSON object pushed by the feed. Numbers are
// kept as json.Number so 64-bit identifiers are not rounded. Events with
// invalid UTF-8 are rejected so the queued payload always matches the accessors.
func DecodeEventRecord(raw []byte) (*EventRecord, error) {
	if !utf8.Valid(raw) {
		return nil, ErrInvalidUTF8
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, fmt.Errorf("compact event: %w", err)
	}

	return &EventRecord{
		fields:     fields,
		raw:        compact.Bytes(),
		receivedAt: time.Now().UTC(),
	}, nil
}

// NewEventRecord builds a record from an already decoded map. The top level of
// fields is copied.
func NewEventRecord(fields map[string]any) *EventRecord {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &EventRecord{fields: copied, receivedAt: time.Now().UTC()}
}

// Get returns the raw value stored under key.
func (r *EventRecord) Get(key string) (any, error) {
	v, ok := r.fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return v, nil
}

// Has reports whether key is present.
func (r *EventRecord) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// String returns the value under key as a string. JSON numbers are rendered
// in their original textual form.
func (r *EventRecord) String(key string) (string, error) {
	v, err := r.Get(key)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	default:
		return "", fmt.Errorf("%w: %q is %T", ErrTypeMismatch, key, v)
	}
}

// Record returns the nested object under key as its own EventRecord.
func (r *EventRecord) Record(key string) (*EventRecord, error) {
	v, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T", ErrTypeMismatch, key, v)
	}
	return NewEventRecord(m), nil
}

// Keys returns the top-level keys in sorted order.
func (r *EventRecord) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of top-level keys.
func (r *EventRecord) Len() int {
	return len(r.fields)
}

// ID returns the event's string identifier, preferring id_str over id.
func (r *EventRecord) ID() string {
	if id, err := r.String("id_str"); err == nil {
		return id
	}
	if id, err := r.String("id"); err == nil {
		return id
	}
	return ""
}

// Author returns the nested "user" sub-record used for log enrichment.
func (r *EventRecord) Author() (Author, bool) {
	user, err := r.Record("user")
	if err != nil {
		return Author{}, false
	}
	screenName, _ := user.String("screen_name")
	id, _ := user.String("id_str")
	if id == "" {
		id, _ = user.String("id")
	}
	return Author{ScreenName: screenName, ID: id}, true
}

// ReceivedAt is when the record was constructed.
func (r *EventRecord) ReceivedAt() time.Time {
	return r.receivedAt
}

// MarshalJSON returns the compact original bytes when the record was decoded
// from the feed, so the payload on the queue matches what was received.
func (r *EventRecord) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		out := make([]byte, len(r.raw))
		copy(out, r.raw)
		return out, nil
	}
	return json.Marshal(r.fields)
}
