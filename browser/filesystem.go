package browser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem writes run artifacts below Root. Names are relative and may not
// escape Root.
type FileSystem struct {
	Root string
}

func NewFileSystem(root string) (*FileSystem, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileSystem{Root: root}, nil
}

func (fs *FileSystem) resolvePath(name string) (string, error) {
	if name == "" {
		return "", errors.New("file name required")
	}
	if filepath.IsAbs(name) {
		return "", errors.New("absolute paths not allowed")
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("path traversal not allowed")
	}
	return filepath.Join(fs.Root, clean), nil
}

// WriteFile creates parent directories and replaces name atomically. It
// returns the full path written.
func (fs *FileSystem) WriteFile(name string, data []byte) (string, error) {
	path, err := fs.resolvePath(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

func (fs *FileSystem) ReadFile(name string) ([]byte, error) {
	path, err := fs.resolvePath(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove deletes name. A missing file is not an error.
func (fs *FileSystem) Remove(name string) error {
	path, err := fs.resolvePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
