package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// FileName is the manifest file name.
const FileName = "package.json"

// Manifest is a parsed project manifest. It is safe for concurrent use.
type Manifest struct {
	mu      sync.Mutex
	path    string
	raw     map[string]any
	changed bool
}

// Load reads the manifest at path. A missing file is an empty manifest.
func Load(path string) (*Manifest, error) {
	m := &Manifest{path: path, raw: map[string]any{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m.raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	if m.raw == nil {
		m.raw = map[string]any{}
	}
	return m, nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string { return m.path }

// Get returns the value at a key path.
func (m *Manifest) Get(path ...string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return get(m.raw, path)
}

func get(node map[string]any, path []string) (any, bool) {
	var cur any = node
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at a key path, creating intermediate objects. A nil
// value deletes the key. The manifest is marked changed only when the
// stored value differs.
func (m *Manifest) Set(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := get(m.raw, path); ok == (value != nil) && reflect.DeepEqual(old, value) {
		return
	}
	parent := m.raw
	for _, key := range path[:len(path)-1] {
		next, ok := parent[key].(map[string]any)
		if !ok {
			if value == nil {
				return
			}
			next = map[string]any{}
			parent[key] = next
		}
		parent = next
	}
	last := path[len(path)-1]
	if value == nil {
		if _, ok := parent[last]; !ok {
			return
		}
		delete(parent, last)
	} else {
		parent[last] = value
	}
	m.changed = true
}

// MarkChanged forces the next Save to write.
func (m *Manifest) MarkChanged() {
	m.mu.Lock()
	m.changed = true
	m.mu.Unlock()
}

// Changed reports whether the manifest differs from the file.
func (m *Manifest) Changed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// Save writes the manifest if it changed.
func (m *Manifest) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.changed {
		return nil
	}
	data, err := json.MarshalIndent(m.raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".package-*.json")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	m.changed = false
	return nil
}
