package catalog

import (
	json "github.com/goccy/go-json"
)

// IndexMeta describes one secondary index: a name and the ordered list of
// field names it covers, plus whether it rejects duplicate keys, per
// spec.md §3/§4.3. On disk it marshals as spec.md §6 literally shows for
// the common single-column case ({"name":..,"field":..}), falling back to
// a "field_names" array for composite indexes.
type IndexMeta struct {
	Name       string `json:"-"`
	FieldNames []string `json:"-"`
	Unique     bool `json:"-"`
}

type indexMetaWire struct {
	Name       string   `json:"name"`
	Field      string   `json:"field,omitempty"`
	FieldNames []string `json:"field_names,omitempty"`
	Unique     bool     `json:"unique,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m IndexMeta) MarshalJSON() ([]byte, error) {
	w := indexMetaWire{Name: m.Name, Unique: m.Unique}
	if len(m.FieldNames) == 1 {
		w.Field = m.FieldNames[0]
	} else {
		w.FieldNames = m.FieldNames
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *IndexMeta) UnmarshalJSON(data []byte) error {
	var w indexMetaWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Name = w.Name
	m.Unique = w.Unique
	if w.Field != "" {
		m.FieldNames = []string{w.Field}
	} else {
		m.FieldNames = w.FieldNames
	}
	return nil
}

// Covers reports whether this index names exactly the single field name.
func (m IndexMeta) Covers(field string) bool {
	return len(m.FieldNames) == 1 && m.FieldNames[0] == field
}
