package clientconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileLoader reads <dir>/<sender>.json on every call, so edits apply to the next message.
type FileLoader struct {
	dir string
}

func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{dir: dir}
}

var _ Loader = (*FileLoader)(nil)

// Path returns the file consulted for sender.
func (l *FileLoader) Path(sender string) string {
	return filepath.Join(l.dir, fileSafe(sender)+".json")
}

func (l *FileLoader) Load(_ context.Context, sender string) (ClientConfig, error) {
	name := fileSafe(sender)
	if name == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(l.Path(sender))
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	return Decode(data)
}
