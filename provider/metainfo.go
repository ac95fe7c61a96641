package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxMetaFields is the number of user defined fields the gateway accepts
const MaxMetaFields = 5

// MetaInfo holds the gateway's user defined fields udf1..udf5. Slot numbers
// are 1-based to match the wire names.
type MetaInfo struct {
	fields [MaxMetaFields]string
}

// Get returns the value of slot n, or "" when n is out of range
func (m MetaInfo) Get(n int) string {
	if n < 1 || n > MaxMetaFields {
		return ""
	}
	return m.fields[n-1]
}

// Set stores v in slot n
func (m *MetaInfo) Set(n int, v string) error {
	if n < 1 || n > MaxMetaFields {
		return fmt.Errorf("metaInfo slot %d out of range 1..%d", n, MaxMetaFields)
	}
	m.fields[n-1] = v
	return nil
}

// SetDefault stores v in slot n only if the slot is empty
func (m *MetaInfo) SetDefault(n int, v string) {
	if m.Get(n) == "" {
		_ = m.Set(n, v)
	}
}

// IsEmpty reports whether no slot holds a value
func (m MetaInfo) IsEmpty() bool {
	for _, v := range m.fields {
		if v != "" {
			return false
		}
	}
	return true
}

// MarshalJSON writes the non-empty slots in udf1..udf5 order, without HTML escaping
func (m MetaInfo) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	first := true
	for i, v := range m.fields {
		if v == "" {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		buf.WriteString(`"udf` + strconv.Itoa(i+1) + `":`)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object keyed udf1..udf5. Non-string scalars are
// kept in their JSON text form.
func (m *MetaInfo) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = MetaInfo{}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metaInfo must be an object: %w", err)
	}

	var out MetaInfo
	for key, value := range raw {
		n, ok := udfSlot(key)
		if !ok {
			return fmt.Errorf("metaInfo supports udf1..udf%d only, got %q", MaxMetaFields, key)
		}

		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			s = strings.TrimSpace(string(value))
			if s == "null" {
				s = ""
			}
		}
		out.fields[n-1] = s
	}
	*m = out
	return nil
}

func udfSlot(key string) (int, bool) {
	if !strings.HasPrefix(key, "udf") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, "udf"))
	if err != nil || n < 1 || n > MaxMetaFields {
		return 0, false
	}
	return n, true
}
