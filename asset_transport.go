package gekko

import (
	"errors"
	"fmt"
)

var (
	ErrAssetNotFound     = errors.New("asset not found")
	ErrPrefabLoadFailed  = errors.New("prefab load failed")
	ErrUnknownLoadHandle = errors.New("unknown load handle")
)

type LoadHandle uint64

type LoadStatus int

const (
	LoadStatusLoading LoadStatus = iota
	LoadStatusLoaded
	LoadStatusError
)

func (s LoadStatus) String() string {
	switch s {
	case LoadStatusLoading:
		return "loading"
	case LoadStatusLoaded:
		return "loaded"
	case LoadStatusError:
		return "error"
	}
	return fmt.Sprintf("LoadStatus(%d)", int(s))
}

// AssetTransport is the asynchronous asset backend the cooker polls.
type AssetTransport interface {
	AddRef(id PrefabUuid) LoadHandle
	Release(h LoadHandle)
	// Update advances every pending load by one step.
	Update()
	LoadStatus(h LoadHandle) LoadStatus
	Asset(h LoadHandle) *Prefab
	AssetVersion(h LoadHandle) uint32
	// Store persists a serialized prefab and returns its new version.
	Store(id PrefabUuid, data []byte) (uint32, error)
}

// AssetStorage is where serialized prefabs live.
type AssetStorage interface {
	Read(id PrefabUuid) ([]byte, uint32, error)
	Version(id PrefabUuid) (uint32, error)
	Write(id PrefabUuid, data []byte) (uint32, error)
}

type assetEntry struct {
	id      PrefabUuid
	refs    int
	status  LoadStatus
	prefab  *Prefab
	version uint32
	err     error
	// failedVersion is the storage version the last failed load read.
	failedVersion uint32
}

// AssetLoader implements AssetTransport on top of an AssetStorage. Loads are
// deferred to Update so callers see the same Loading -> Loaded progression an
// asynchronous backend would give them.
type AssetLoader struct {
	storage  AssetStorage
	registry *ComponentRegistry
	logger   Logger

	handleCounter LoadHandle
	handles       map[LoadHandle]PrefabUuid
	entries       map[PrefabUuid]*assetEntry
}

func NewAssetLoader(storage AssetStorage, registry *ComponentRegistry, logger Logger) *AssetLoader {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &AssetLoader{
		storage:  storage,
		registry: registry,
		logger:   logger,
		handles:  make(map[LoadHandle]PrefabUuid),
		entries:  make(map[PrefabUuid]*assetEntry),
	}
}

func (l *AssetLoader) AddRef(id PrefabUuid) LoadHandle {
	l.handleCounter += 1
	h := l.handleCounter
	l.handles[h] = id

	if entry, ok := l.entries[id]; ok {
		entry.refs += 1
		// A new reference retries a failed load.
		if entry.status == LoadStatusError {
			entry.status = LoadStatusLoading
		}
	} else {
		l.entries[id] = &assetEntry{id: id, refs: 1, status: LoadStatusLoading}
	}
	return h
}

func (l *AssetLoader) Release(h LoadHandle) {
	id, ok := l.handles[h]
	if !ok {
		return
	}
	delete(l.handles, h)

	entry := l.entries[id]
	entry.refs -= 1
	if entry.refs <= 0 {
		delete(l.entries, id)
	}
}

func (l *AssetLoader) Update() {
	for _, id := range sortedUuidKeys(l.entries) {
		entry := l.entries[id]
		switch entry.status {
		case LoadStatusLoading:
			l.load(entry)
		case LoadStatusLoaded:
			version, err := l.storage.Version(id)
			if err != nil {
				l.logger.Warnf("prefab %s: version check failed: %v", id, err)
				continue
			}
			if version != entry.version {
				l.logger.Debugf("prefab %s changed on storage (%d -> %d), reloading", id, entry.version, version)
				l.load(entry)
			}
		case LoadStatusError:
			// Still missing or unreadable: keep the error until storage moves.
			version, err := l.storage.Version(id)
			if err != nil || version == entry.failedVersion {
				continue
			}
			l.logger.Debugf("prefab %s changed on storage after a failed load, retrying", id)
			l.load(entry)
		}
	}
}

func (l *AssetLoader) load(entry *assetEntry) {
	data, version, err := l.storage.Read(entry.id)
	if err == nil {
		var p *Prefab
		if p, err = UnmarshalPrefab(l.registry, data); err == nil && p.Id != entry.id {
			err = fmt.Errorf("file declares prefab %s", p.Id)
		}
		if err == nil {
			entry.prefab = p
			entry.version = version
			entry.status = LoadStatusLoaded
			entry.err = nil
			return
		}
	}

	l.logger.Errorf("prefab %s: %v", entry.id, err)
	entry.status = LoadStatusError
	entry.err = err
	entry.failedVersion = version
}

func (l *AssetLoader) entry(h LoadHandle) *assetEntry {
	id, ok := l.handles[h]
	if !ok {
		return nil
	}
	return l.entries[id]
}

func (l *AssetLoader) LoadStatus(h LoadHandle) LoadStatus {
	entry := l.entry(h)
	if entry == nil {
		return LoadStatusError
	}
	return entry.status
}

// LoadError reports why a handle ended up in LoadStatusError.
func (l *AssetLoader) LoadError(h LoadHandle) error {
	entry := l.entry(h)
	if entry == nil {
		return ErrUnknownLoadHandle
	}
	return entry.err
}

func (l *AssetLoader) Asset(h LoadHandle) *Prefab {
	entry := l.entry(h)
	if entry == nil {
		return nil
	}
	return entry.prefab
}

func (l *AssetLoader) AssetVersion(h LoadHandle) uint32 {
	entry := l.entry(h)
	if entry == nil {
		return 0
	}
	return entry.version
}

func (l *AssetLoader) Store(id PrefabUuid, data []byte) (uint32, error) {
	version, err := l.storage.Write(id, data)
	if err != nil {
		return 0, fmt.Errorf("store prefab %s: %w", id, err)
	}
	return version, nil
}
