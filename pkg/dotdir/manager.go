// Package dotdir manages the .parley/ and ~/.parley directories.
//
// The dot directory holds config.toml, credentials.toml, the default
// conversation store and the chat session state.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the directory name looked up in the working directory and the
// user's home.
const DirName = ".parley"

// Manager resolves the active .parley/ directory. The zero value is ready
// to use.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the .parley/ directory to use,
// creating it when missing. override wins when non-empty, then a .parley/
// in the working directory, then ~/.parley.
func (m *Manager) Target(override string) (string, error) {
	dir, err := m.pick(override)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parley directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func (m *Manager) pick(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if local, ok := localDir(); ok {
		return local, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Subdir returns the named child of Target(override), creating it when
// missing.
func (m *Manager) Subdir(override, name string) (string, error) {
	base, err := m.Target(override)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s directory: %w", name, err)
	}
	return dir, nil
}

// localDir reports the working directory's .parley/ when it exists.
func localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := filepath.Join(cwd, DirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}
