package fileio

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// DriverMemory names the in-memory file system.
const DriverMemory = types.DriverMemory

// Memory keeps files in a map. It is safe for concurrent use. Writing a file
// creates its parent directories.
type Memory struct {
	mu    sync.RWMutex
	files map[string]string
	dirs  map[string]bool
}

// NewMemory returns an empty in-memory file system.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]string), dirs: map[string]bool{"": true}}
}

func (*Memory) Name() string { return DriverMemory }

func (m *Memory) ReadAllText(ctx context.Context, p string) (string, error) {
	if err := checkContext(ctx, DriverMemory, "read", p); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.files[cleanKey(p)]
	if !ok {
		return "", notFound(DriverMemory, "read", p)
	}
	return text, nil
}

func (m *Memory) ReadAllLines(ctx context.Context, p string) ([]string, error) {
	text, err := m.ReadAllText(ctx, p)
	if err != nil {
		return nil, err
	}
	return types.SplitLines(text), nil
}

func (m *Memory) WriteAllText(ctx context.Context, p, text string) error {
	if err := checkContext(ctx, DriverMemory, "write", p); err != nil {
		return err
	}
	key := cleanKey(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = text
	m.addDirs(path.Dir(key))
	return nil
}

func (m *Memory) FileExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx, DriverMemory, "stat", p); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[cleanKey(p)]
	return ok, nil
}

func (m *Memory) DirectoryExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx, DriverMemory, "stat", p); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirs[dirKey(p)], nil
}

func (m *Memory) CreateDirectory(ctx context.Context, p string) error {
	if err := checkContext(ctx, DriverMemory, "mkdir", p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addDirs(dirKey(p))
	return nil
}

// Files lists stored file paths, sorted.
func (m *Memory) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Remove deletes a file and reports whether it existed.
func (m *Memory) Remove(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cleanKey(p)
	_, ok := m.files[key]
	delete(m.files, key)
	return ok
}

func (m *Memory) addDirs(dir string) {
	for dir != "" && dir != "." && !m.dirs[dir] {
		m.dirs[dir] = true
		dir = path.Dir(dir)
		if dir == "." {
			dir = ""
		}
	}
}

func dirKey(p string) string {
	k := cleanKey(p)
	if k == "." {
		return ""
	}
	return strings.TrimSuffix(k, "/")
}
