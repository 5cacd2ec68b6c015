package storage

import (
	"os"
	"path/filepath"
)

// FileStorage manages downloaded asset files inside a single directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a new FileStorage instance with the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Path returns the absolute path of a stored file.
func (s *FileStorage) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// CreateFile creates a new file with the given filename in the storage directory.
func (s *FileStorage) CreateFile(filename string) (*os.File, error) {
	return os.Create(s.Path(filename))
}

// OpenAppend opens an existing file for appending, for resumed downloads.
func (s *FileStorage) OpenAppend(filename string) (*os.File, error) {
	return os.OpenFile(s.Path(filename), os.O_WRONLY|os.O_APPEND, 0o644)
}

// FileExists checks whether a file exists in the storage directory.
func (s *FileStorage) FileExists(filename string) bool {
	_, err := os.Stat(s.Path(filename))
	return err == nil
}

// FileSize returns the size of the file in bytes.
func (s *FileStorage) FileSize(filename string) (int64, error) {
	info, err := os.Stat(s.Path(filename))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes the file if it exists.
func (s *FileStorage) Remove(filename string) error {
	err := os.Remove(s.Path(filename))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
