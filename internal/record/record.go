// Package record reads delimited text into ordered field/value records.
//
// A Reader owns its source: it reads the header line once, normalizes the
// column names with a naming.Strategy, and then yields one Record per
// non-blank line until the input is exhausted.
package record

import (
	"bytes"
	"encoding/json"
	"iter"
)

// Record is an ordered mapping from field name to raw string value.
// Keys are unique and follow source column order. A Record is not modified
// after the Reader returns it.
type Record struct {
	keys   []string
	values []string
}

// New builds a Record from parallel key and value slices. Later duplicates
// of a key replace the earlier value and keep its position.
func New(keys, values []string) Record {
	n := min(len(keys), len(values))
	r := Record{keys: make([]string, 0, n), values: make([]string, 0, n)}
	for i := 0; i < n; i++ {
		r.set(keys[i], values[i], true)
	}
	return r
}

// set appends k=v, or replaces the value of an existing k when dedupe is on.
func (r *Record) set(k, v string, dedupe bool) {
	if dedupe {
		for i, existing := range r.keys {
			if existing == k {
				r.values[i] = v
				return
			}
		}
	}
	r.keys = append(r.keys, k)
	r.values = append(r.values, v)
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// Keys returns the field names in column order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value stored under key.
func (r Record) Get(key string) (string, bool) {
	for i, k := range r.keys {
		if k == key {
			return r.values[i], true
		}
	}
	return "", false
}

// All iterates fields in column order.
func (r Record) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for i, k := range r.keys {
			if !yield(k, r.values[i]) {
				return
			}
		}
	}
}

// Map copies the record into a plain map. Field order is lost.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.keys))
	for i, k := range r.keys {
		m[k] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the record as a JSON object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, r.values[i]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
