package gekko

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type EditorConfig struct {
	Assets  AssetsConfig  `toml:"assets"`
	Cook    CookConfig    `toml:"cook"`
	Editor  EditingConfig `toml:"editor"`
	Logging LoggingConfig `toml:"logging"`
}

type AssetsConfig struct {
	Storage    string `toml:"storage"` // "dir", "sqlite" or "memory"
	Dir        string `toml:"dir"`
	SqlitePath string `toml:"sqlite_path"`
}

type CookConfig struct {
	Verify bool `toml:"verify"`
}

type EditingConfig struct {
	PreserveHandles bool `toml:"preserve_handles"`
	UndoLimit       int  `toml:"undo_limit"` // 0 = unbounded
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func DefaultEditorConfig() *EditorConfig {
	return &EditorConfig{
		Assets: AssetsConfig{
			Storage:    "dir",
			Dir:        "assets",
			SqlitePath: "assets/prefabs.db",
		},
		Cook: CookConfig{
			Verify: true,
		},
		Editor: EditingConfig{
			PreserveHandles: true,
			UndoLimit:       256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadEditorConfig overlays the TOML file at path onto the defaults.
func LoadEditorConfig(path string) (*EditorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultEditorConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// OpenStorage builds the configured storage. Storages that hold resources
// (sqlite) implement io.Closer.
func (c AssetsConfig) OpenStorage() (AssetStorage, error) {
	switch c.Storage {
	case "", "dir":
		return NewDirStorage(c.Dir)
	case "sqlite":
		return NewSqliteStorage(c.SqlitePath)
	case "memory":
		return NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown asset storage %q", c.Storage)
}

func (c EditingConfig) ResetPolicy() ResetPolicy {
	if c.PreserveHandles {
		return ResetPreserveHandles
	}
	return ResetReassignHandles
}
