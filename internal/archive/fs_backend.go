package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"storedash/backend/internal/xid"
)

// TempSuffix marks in-flight writes. Entries with it are never surfaced as
// payloads or metadata.
const TempSuffix = ".tmp"

// FSBackend stores entries as files in a single directory. Writes go through
// a temp file, fsync and rename so readers never see a partial file.
type FSBackend struct {
	root string
}

func NewFSBackend(root string) (*FSBackend, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("archive: reports directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create reports directory %s: %w", root, err)
	}
	return &FSBackend{root: root}, nil
}

func (b *FSBackend) Root() string {
	return b.root
}

func (b *FSBackend) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("archive: invalid object name %q", name)
	}
	return filepath.Join(b.root, name), nil
}

func (b *FSBackend) Write(_ context.Context, name string, data []byte) error {
	path, err := b.path(name)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(b.root, "."+xid.New(name)+TempSuffix)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (b *FSBackend) Read(_ context.Context, name string) ([]byte, error) {
	path, err := b.path(name)
	if err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (b *FSBackend) Exists(_ context.Context, name string) (bool, error) {
	path, err := b.path(name)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
	return info.Mode().IsRegular(), nil
}

func (b *FSBackend) Remove(_ context.Context, name string) error {
	path, err := b.path(name)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (b *FSBackend) List(_ context.Context, suffix string) ([]Object, error) {
	entries, err := os.ReadDir(b.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []Object{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", b.root, err)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		objects = append(objects, Object{Name: entry.Name(), ModTime: info.ModTime().UTC()})
	}
	return objects, nil
}
