package state

import (
	"encoding/json"
	"fmt"
)

// SaveUIState stores value as JSON under key.
func (db *DB) SaveUIState(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode ui state %s: %w", key, err)
	}
	_, err = db.SQL.Exec(`INSERT INTO ui_state(key, value, updated_at) VALUES(?,?,strftime('%s','now'))
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, string(b))
	return err
}

func (db *DB) DeleteUIState(key string) error {
	_, err := db.SQL.Exec(`DELETE FROM ui_state WHERE key = ?`, key)
	return err
}

// LoadUIState returns every stored value decoded from JSON. Rows that fail
// to decode are skipped.
func (db *DB) LoadUIState() (map[string]any, error) {
	rows, err := db.SQL.Query(`SELECT key, value FROM ui_state`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := map[string]any{}
	for rows.Next() {
		var k, raw string
		if err := rows.Scan(&k, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		out[k] = v
	}
	return out, rows.Err()
}

// UIMirror adapts the ui_state table to uistate.Mirror.
type UIMirror struct{ DB *DB }

func (m UIMirror) Save(key string, value any) error { return m.DB.SaveUIState(key, value) }
func (m UIMirror) Delete(key string) error          { return m.DB.DeleteUIState(key) }
func (m UIMirror) LoadAll() (map[string]any, error) { return m.DB.LoadUIState() }
