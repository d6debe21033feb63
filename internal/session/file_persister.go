package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FilePersister stores every sender in a single JSON document (sender -> history).
// Each write goes to a temp file in the same directory and is renamed over the target,
// so a crash never leaves a half-written document behind.
type FilePersister struct {
	mu   sync.Mutex
	path string
}

// NewFilePersister returns a persister backed by path. The file is created on first save.
func NewFilePersister(path string) (*FilePersister, error) {
	if path == "" {
		return nil, errors.New("session: file path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("session: create dir: %w", err)
		}
	}
	return &FilePersister{path: path}, nil
}

var _ Persister = (*FilePersister)(nil)

func (p *FilePersister) readAll() (map[string]History, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", p.path, err)
	}
	if len(data) == 0 {
		return map[string]History{}, nil
	}
	all := map[string]History{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", p.path, err)
	}
	return all, nil
}

func (p *FilePersister) writeAll(all map[string]History) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("session: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("session: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("session: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("session: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		cleanup()
		return fmt.Errorf("session: replace %s: %w", p.path, err)
	}
	return nil
}

func (p *FilePersister) Load(_ context.Context, sender string) (History, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	all, err := p.readAll()
	if err != nil {
		return nil, false, err
	}
	h, ok := all[sender]
	return h, ok, nil
}

func (p *FilePersister) Save(_ context.Context, sender string, history History) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	all, err := p.readAll()
	if err != nil {
		return err
	}
	all[sender] = history
	return p.writeAll(all)
}

func (p *FilePersister) Delete(_ context.Context, sender string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	all, err := p.readAll()
	if err != nil {
		return err
	}
	if _, ok := all[sender]; !ok {
		return nil
	}
	delete(all, sender)
	return p.writeAll(all)
}

func (p *FilePersister) DeleteAll(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeAll(map[string]History{})
}
