package queue

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSnapshotter stores one JSON file per guild under a base directory.
// Writes go through a temp file, fsync and rename so a crash mid-write
// never leaves a truncated snapshot behind.
type FileSnapshotter struct {
	dir string
}

// NewFileSnapshotter creates the directory if needed
func NewFileSnapshotter(dir string) (*FileSnapshotter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSnapshotter{dir: dir}, nil
}

func (f *FileSnapshotter) path(guildID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("playlist_%s.json", guildID))
}

// Save atomically replaces the guild's snapshot file
func (f *FileSnapshotter) Save(guildID string, data []byte) error {
	final := f.path(guildID)
	tmp, err := os.CreateTemp(f.dir, "playlist_*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, final)
}

// Load returns the snapshot bytes, or (nil, nil) when none exists
func (f *FileSnapshotter) Load(guildID string) ([]byte, error) {
	data, err := os.ReadFile(f.path(guildID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}
