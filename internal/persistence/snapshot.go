// Package persistence implements the default best-effort durability
// layer for the device store: a JSON file written with a temp-file
// and atomic rename so a crash mid-write never corrupts the snapshot.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/asgard/telemetry-core/internal/telemetry"
)

type snapshotFile struct {
	GeneratedAt int64                   `json:"generatedAt"`
	Devices     []telemetry.DeviceState `json:"devices"`
}

// FileStore persists the device set to a single JSON file on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a snapshot store writing to path. The parent
// directory is created on first Save if missing.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the device set to disk via a temp file plus rename, so
// readers never observe a partially written snapshot. Each write gets
// its own temp file, so concurrent saves cannot interleave on a shared
// path and promote a torn file; last rename wins.
func (f *FileStore) Save(generatedAt int64, devices []telemetry.DeviceState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(snapshotFile{GeneratedAt: generatedAt, Devices: devices})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Load reads the device set back from disk. A missing file is not an
// error; it is treated as an empty, never-persisted snapshot.
func (f *FileStore) Load() (int64, []telemetry.DeviceState, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	var sf snapshotFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return 0, nil, err
	}
	return sf.GeneratedAt, sf.Devices, nil
}
