package gekko

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// MemoryStorage keeps serialized prefabs in process memory.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[PrefabUuid]memoryEntry
}

type memoryEntry struct {
	data    []byte
	version uint32
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[PrefabUuid]memoryEntry)}
}

func (s *MemoryStorage) Read(id PrefabUuid) ([]byte, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return slices.Clone(e.data), e.version, nil
}

func (s *MemoryStorage) Version(id PrefabUuid) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return e.version, nil
}

func (s *MemoryStorage) Write(id PrefabUuid, data []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[id]
	e.data = slices.Clone(data)
	e.version += 1
	s.entries[id] = e
	return e.version, nil
}

// DirStorage keeps one "<uuid>.prefab.yaml" file per prefab. Files may be
// edited behind the editor's back; a change in mod time or size bumps the
// version the loader sees.
type DirStorage struct {
	mu     sync.Mutex
	dir    string
	stamps map[PrefabUuid]fileStamp
}

type fileStamp struct {
	modTime time.Time
	size    int64
	version uint32
}

const prefabFileExt = ".prefab.yaml"

func NewDirStorage(dir string) (*DirStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &DirStorage{dir: dir, stamps: make(map[PrefabUuid]fileStamp)}, nil
}

func (s *DirStorage) path(id PrefabUuid) string {
	return filepath.Join(s.dir, id.String()+prefabFileExt)
}

func (s *DirStorage) Read(id PrefabUuid) ([]byte, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
		}
		return nil, 0, err
	}
	version, err := s.observe(id)
	if err != nil {
		return nil, 0, err
	}
	return data, version, nil
}

func (s *DirStorage) Version(id PrefabUuid) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observe(id)
}

func (s *DirStorage) Write(id PrefabUuid, data []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return 0, fmt.Errorf("write prefab %s: %w", id, err)
	}
	info, err := os.Stat(s.path(id))
	if err != nil {
		return 0, err
	}
	// Always bump: a rewrite inside the file system's mod time granularity
	// with an unchanged size would otherwise go unnoticed.
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size(), version: s.stamps[id].version + 1}
	s.stamps[id] = stamp
	return stamp.version, nil
}

func (s *DirStorage) observe(id PrefabUuid) (uint32, error) {
	info, err := os.Stat(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
		}
		return 0, err
	}
	stamp, ok := s.stamps[id]
	if !ok || !stamp.modTime.Equal(info.ModTime()) || stamp.size != info.Size() {
		stamp = fileStamp{modTime: info.ModTime(), size: info.Size(), version: stamp.version + 1}
		s.stamps[id] = stamp
	}
	return stamp.version, nil
}
