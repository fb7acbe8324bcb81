package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model is one model file in the library.
type Model struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Type      string    `json:"type,omitempty"`       // sd.lora, sd.checkpoint, sd.embedding, ...
	BaseModel string    `json:"base_model,omitempty"` // sd15, sdxl, flux, ...
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	// PreviewURL is a local sidecar path or a remote URL.
	PreviewURL string    `json:"preview_url,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Favorite   bool      `json:"favorite"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ModelFilter narrows ListModels.
type ModelFilter struct {
	Type     string
	Favorite bool
	Tag      string
	OrderBy  string // name | size | type | modified
	Limit    int
}

const modelColumns = `id, path, name, COALESCE(type,''), COALESCE(base_model,''), COALESCE(size,0),
	COALESCE(mod_time,0), COALESCE(preview_url,''), COALESCE(tags,''), COALESCE(favorite,0),
	created_at, updated_at`

// UpsertModel inserts or updates a model keyed by path. The favorite flag is
// user data and survives rescans.
func (db *DB) UpsertModel(m *Model) error {
	if m.Path == "" {
		return errors.New("model path is required")
	}
	if m.Name == "" {
		return errors.New("model name is required")
	}
	now := time.Now().Unix()
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("serialize tags: %w", err)
	}
	_, err = db.SQL.Exec(`INSERT INTO models(path, name, type, base_model, size, mod_time, preview_url, tags, favorite, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(path) DO UPDATE SET
			name=excluded.name,
			type=excluded.type,
			base_model=excluded.base_model,
			size=excluded.size,
			mod_time=excluded.mod_time,
			preview_url=excluded.preview_url,
			tags=excluded.tags,
			updated_at=excluded.updated_at`,
		m.Path, m.Name, m.Type, m.BaseModel, m.Size, m.ModTime.Unix(), m.PreviewURL, string(tags), boolToInt(m.Favorite), now, now)
	if err != nil {
		return fmt.Errorf("upsert model %s: %w", m.Path, err)
	}
	return nil
}

// GetModel returns the model at path, or nil if there is none.
func (db *DB) GetModel(path string) (*Model, error) {
	row := db.SQL.QueryRow(`SELECT `+modelColumns+` FROM models WHERE path = ?`, path)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListModels returns models matching f.
func (db *DB) ListModels(f ModelFilter) ([]Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Favorite {
		query += " AND favorite = 1"
	}
	if f.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, `%"`+f.Tag+`"%`)
	}
	switch f.OrderBy {
	case "size":
		query += " ORDER BY size DESC, name COLLATE NOCASE"
	case "type":
		query += " ORDER BY type, name COLLATE NOCASE"
	case "modified":
		query += " ORDER BY mod_time DESC, name COLLATE NOCASE"
	default:
		query += " ORDER BY name COLLATE NOCASE, path"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := db.SQL.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// SetFavorite flags or unflags the model at path.
func (db *DB) SetFavorite(path string, fav bool) error {
	res, err := db.SQL.Exec(`UPDATE models SET favorite=?, updated_at=strftime('%s','now') WHERE path=?`, boolToInt(fav), path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteModel removes the model at path.
func (db *DB) DeleteModel(path string) error {
	_, err := db.SQL.Exec(`DELETE FROM models WHERE path = ?`, path)
	return err
}

// PruneModels deletes models under any of roots whose path is not in keep.
// It returns the number of rows removed.
func (db *DB) PruneModels(roots []string, keep map[string]bool) (int, error) {
	rows, err := db.SQL.Query(`SELECT path FROM models`)
	if err != nil {
		return 0, err
	}
	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			_ = rows.Close()
			return 0, err
		}
		if !keep[p] && underAny(p, roots) {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()
	for _, p := range stale {
		if err := db.DeleteModel(p); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func underAny(p string, roots []string) bool {
	for _, r := range roots {
		r = strings.TrimSuffix(r, "/")
		if p == r || strings.HasPrefix(p, r+"/") {
			return true
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(r rowScanner) (*Model, error) {
	var m Model
	var modTime, created, updated int64
	var tags string
	var fav int
	if err := r.Scan(&m.ID, &m.Path, &m.Name, &m.Type, &m.BaseModel, &m.Size,
		&modTime, &m.PreviewURL, &tags, &fav, &created, &updated); err != nil {
		return nil, err
	}
	if tags != "" && tags != "null" {
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("deserialize tags: %w", err)
		}
	}
	m.ModTime = time.Unix(modTime, 0)
	m.CreatedAt = time.Unix(created, 0)
	m.UpdatedAt = time.Unix(updated, 0)
	m.Favorite = fav != 0
	return &m, nil
}
