package state

import (
	"fmt"
	"os"
)

// CheckIntegrity runs SQLite's integrity check on the database
func (db *DB) CheckIntegrity() error {
	if db == nil || db.SQL == nil {
		return fmt.Errorf("database not open")
	}

	var result string
	err := db.SQL.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("database integrity check failed: %s", result)
	}

	return nil
}

// Vacuum optimizes the database by reclaiming unused space
func (db *DB) Vacuum() error {
	if db == nil || db.SQL == nil {
		return fmt.Errorf("database not open")
	}
	if _, err := db.SQL.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// DBStats summarises the library database.
type DBStats struct {
	DatabaseSize int64 // Size in bytes
	Models       int
	Favorites    int
	WithPreview  int
	UIStateKeys  int
	ByType       map[string]int
}

// GetStats retrieves database statistics
func (db *DB) GetStats() (*DBStats, error) {
	if db == nil || db.SQL == nil {
		return nil, fmt.Errorf("database not open")
	}

	stats := &DBStats{ByType: map[string]int{}}
	if fi, err := os.Stat(db.Path); err == nil {
		stats.DatabaseSize = fi.Size()
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM models", &stats.Models},
		{"SELECT COUNT(*) FROM models WHERE favorite = 1", &stats.Favorites},
		{"SELECT COUNT(*) FROM models WHERE COALESCE(preview_url,'') != ''", &stats.WithPreview},
		{"SELECT COUNT(*) FROM ui_state", &stats.UIStateKeys},
	}
	for _, c := range counts {
		if err := db.SQL.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats %q: %w", c.query, err)
		}
	}

	rows, err := db.SQL.Query("SELECT COALESCE(type,''), COUNT(*) FROM models GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("stats by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		stats.ByType[t] = n
	}
	return stats, rows.Err()
}
