package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

const (
	inputDirName  = "input"
	outputDirName = "output"
)

// Manager owns the on-disk layout: one directory per task id with an input
// subtree (as-submitted originals) and an output subtree (published
// composites).
type Manager struct {
	root   string
	logger *zap.Logger
}

func NewManager(root string, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &Manager{root: root, logger: logger}, nil
}

func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) InputDir(id string) string {
	return filepath.Join(m.root, id, inputDirName)
}

func (m *Manager) OutputDir(id string) string {
	return filepath.Join(m.root, id, outputDirName)
}

func (m *Manager) Allocate(id string) error {
	for _, dir := range []string{m.InputDir(id), m.OutputDir(id)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("allocate task directory %s: %w", dir, err)
		}
	}
	return nil
}

func (m *Manager) WriteInput(id, filename string, r io.Reader) error {
	path := filepath.Join(m.InputDir(id), filepath.Base(filename))

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create input file %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("write input file %s: %w", path, err)
	}
	return nil
}

func (m *Manager) ListInputs(id string) ([]string, error) {
	entries, err := os.ReadDir(m.InputDir(id))
	if err != nil {
		return nil, fmt.Errorf("list inputs for task %s: %w", id, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) InputPath(id, filename string) string {
	return filepath.Join(m.InputDir(id), filepath.Base(filename))
}

// PublishOutput writes to a temporary file in the output directory and
// renames it into place, so a concurrent reader never observes a partially
// written artifact.
func (m *Manager) PublishOutput(id, filename string, data []byte) error {
	outDir := m.OutputDir(id)
	final := filepath.Join(outDir, filepath.Base(filename))

	tmp, err := os.CreateTemp(outDir, ".publish-*")
	if err != nil {
		return fmt.Errorf("create temp output for task %s: %w", id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write output %s: %w", final, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close output %s: %w", final, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod output %s: %w", final, err)
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish output %s: %w", final, err)
	}
	return nil
}

// Purge removes the task's whole directory tree. Safe to call on an id that
// was already removed.
func (m *Manager) Purge(id string) error {
	path := filepath.Join(m.root, filepath.Base(id))
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("purge task %s: %w", id, err)
	}
	return nil
}

// TaskIDs lists every task directory currently on disk.
func (m *Manager) TaskIDs() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("list task directories: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
