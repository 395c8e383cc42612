package gekko

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SqliteStorage keeps every prefab of a project in one SQLite file, one row
// per prefab with a monotonically increasing version.
type SqliteStorage struct {
	db   *sql.DB
	path string
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {
	if path == "" {
		path = "prefabs.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS prefabs (
		uuid TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create prefabs table: %w", err)
	}
	return &SqliteStorage{db: db, path: path}, nil
}

func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) Read(id PrefabUuid) ([]byte, uint32, error) {
	var (
		version int64
		payload []byte
	)
	err := s.db.QueryRow(`SELECT version, payload FROM prefabs WHERE uuid = ?`, id.String()).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select prefab %s: %w", id, err)
	}
	return payload, uint32(version), nil
}

func (s *SqliteStorage) Version(id PrefabUuid) (uint32, error) {
	var version int64
	err := s.db.QueryRow(`SELECT version FROM prefabs WHERE uuid = ?`, id.String()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("select prefab version %s: %w", id, err)
	}
	return uint32(version), nil
}

func (s *SqliteStorage) Write(id PrefabUuid, data []byte) (version uint32, retErr error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(`INSERT INTO prefabs (uuid, version, payload) VALUES (?, 1, ?)
		ON CONFLICT(uuid) DO UPDATE SET version = version + 1, payload = excluded.payload`, id.String(), data); err != nil {
		return 0, fmt.Errorf("upsert prefab %s: %w", id, err)
	}
	var v int64
	if err := tx.QueryRow(`SELECT version FROM prefabs WHERE uuid = ?`, id.String()).Scan(&v); err != nil {
		return 0, fmt.Errorf("select prefab version %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prefab %s: %w", id, err)
	}
	return uint32(v), nil
}
