package osfp

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Signature is the comparable part of a fingerprint, shared by observed
// fingerprints and database entries.
type Signature struct {
	TTL          int    `json:"ip_ttl"`
	DF           int    `json:"ip_df"`
	MF           int    `json:"ip_mf"`
	Window       int    `json:"tcp_window_size"`
	Flags        int    `json:"tcp_flags"`
	HeaderLength int    `json:"tcp_header_length"`
	MSS          *int   `json:"tcp_mss"`
	Options      string `json:"tcp_options"`
}

// OS describes the operating system an entry was recorded from.
// Only Name takes part in matching; other keys are kept as loaded.
type OS struct {
	Name  string
	Attrs map[string]any
}

func (o *OS) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	o.Attrs = m
	o.Name, _ = m["name"].(string)
	return nil
}

func (o OS) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(o.Attrs)+1)
	for k, v := range o.Attrs {
		m[k] = v
	}
	if o.Name != "" {
		m["name"] = o.Name
	}
	return json.Marshal(m)
}

// Entry is one labeled reference fingerprint.
type Entry struct {
	Signature
	OS OS `json:"os"`
}

// Database is the reference fingerprint set. It is read-only once loaded.
type Database struct {
	entries []Entry
}

// LoadDatabase reads a JSON array of entries, keeping file order.
func LoadDatabase(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read fingerprint database")
	}
	db, err := ParseDatabase(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	return db, nil
}

// ParseDatabase decodes an in-memory JSON database.
func ParseDatabase(data []byte) (*Database, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "malformed fingerprint database")
	}
	if len(entries) == 0 {
		return nil, errors.New("fingerprint database is empty")
	}
	return &Database{entries: entries}, nil
}

// NewDatabase builds a database from entries. The slice is copied.
func NewDatabase(entries []Entry) *Database {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Database{entries: cp}
}

func (db *Database) Len() int { return len(db.entries) }

// Entry returns a copy of the i-th entry.
func (db *Database) Entry(i int) Entry { return db.entries[i] }

// All iterates entries in database order until fn returns false.
func (db *Database) All(fn func(i int, e *Entry) bool) {
	for i := range db.entries {
		e := db.entries[i]
		if !fn(i, &e) {
			return
		}
	}
}
