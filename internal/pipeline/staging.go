package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Staging holds acquired documents between acquisition and extraction
type Staging interface {
	// Stage stores data and returns a handle for it
	Stage(name string, data []byte) (string, error)

	// Load returns the staged data for a handle
	Load(handle string) ([]byte, error)

	// Discard removes a staged document
	Discard(handle string) error
}

// MemoryStaging keeps staged documents in memory
type MemoryStaging struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryStaging creates an empty MemoryStaging
func NewMemoryStaging() *MemoryStaging {
	return &MemoryStaging{files: make(map[string][]byte)}
}

// Stage copies data into memory
func (m *MemoryStaging) Stage(name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
	return name, nil
}

// Load returns the staged bytes
func (m *MemoryStaging) Load(handle string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[handle]
	if !ok {
		return nil, fmt.Errorf("staged document not found: %s", handle)
	}
	return data, nil
}

// Discard forgets a staged document
func (m *MemoryStaging) Discard(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[handle]; !ok {
		return fmt.Errorf("staged document not found: %s", handle)
	}
	delete(m.files, handle)
	return nil
}

// Len returns the number of staged documents
func (m *MemoryStaging) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// DirStaging stages documents as files in a scratch directory
type DirStaging struct {
	basePath string
}

// NewDirStaging creates a DirStaging rooted at basePath
func NewDirStaging(basePath string) (*DirStaging, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	return &DirStaging{basePath: basePath}, nil
}

// Stage writes data to the staging directory
func (d *DirStaging) Stage(name string, data []byte) (string, error) {
	if err := os.WriteFile(filepath.Join(d.basePath, name), data, 0o600); err != nil {
		return "", fmt.Errorf("writing staged document: %w", err)
	}
	return name, nil
}

// Load reads a staged document back
func (d *DirStaging) Load(handle string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.basePath, handle))
	if err != nil {
		return nil, fmt.Errorf("reading staged document: %w", err)
	}
	return data, nil
}

// Discard deletes a staged document
func (d *DirStaging) Discard(handle string) error {
	if err := os.Remove(filepath.Join(d.basePath, handle)); err != nil {
		return fmt.Errorf("deleting staged document: %w", err)
	}
	return nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// stagingName builds a handle from the session ID and a cleaned-up file name.
// Phone cameras produce long names full of punctuation.
func stagingName(session uint64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "." || unsafeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}
	return fmt.Sprintf("%d_%s%s", session, base, ext)
}
