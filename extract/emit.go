package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Emitter receives final build artifacts.
type Emitter interface {
	Emit(fileName string, data []byte) error
}

// DiskEmitter writes artifacts under Dir creating directories as needed.
type DiskEmitter struct {
	Dir string
}

func (e DiskEmitter) Emit(fileName string, data []byte) error {
	p := filepath.Join(e.Dir, filepath.FromSlash(fileName))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("unable to create directory for %s: %w", p, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", p, err)
	}
	return nil
}

// MemoryEmitter keeps artifacts in memory.
type MemoryEmitter struct {
	mu    sync.Mutex
	files []Artifact
}

func (e *MemoryEmitter) Emit(fileName string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.files = append(e.files, Artifact{Name: fileName, Data: slices.Clone(data)})
	return nil
}

// Files returns emitted artifacts in emission order.
func (e *MemoryEmitter) Files() []Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slices.Clone(e.files)
}
