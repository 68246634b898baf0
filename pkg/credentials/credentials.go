// Package credentials stores provider API keys in credentials.toml and
// resolves the key a model client should use.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"
	fileVersion     = 0
)

// providerEnvVars maps each key-taking provider to the environment variables
// checked, in order, when nothing is stored.
var providerEnvVars = map[string][]string{
	"zhipu":     {"ZHIPU_API_KEY"},
	"doubao":    {"DOUBAO_API_KEY", "ARK_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY"},
}

// Source names where a resolved key came from.
type Source string

const (
	SourceNone     Source = ""
	SourceExplicit Source = "config"
	SourceStored   Source = "credentials"
	SourceEnv      Source = "env"
)

// File is the decoded form of credentials.toml.
type File struct {
	Version   int              `toml:"version"`
	Providers map[string]Entry `toml:"providers"`
}

// Entry is one provider's stored key.
type Entry struct {
	APIKey string    `toml:"api_key"`
	SetAt  time.Time `toml:"set_at,omitempty"`
}

// Manager reads and writes credentials.toml inside a .parley/ directory.
// A nil Manager is valid for Resolve and only consults the environment.
type Manager struct {
	path string
}

// NewManager resolves the .parley/ directory (override wins when set) and
// returns a Manager for the credentials file inside it.
func NewManager(override string) (*Manager, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}
	return &Manager{path: filepath.Join(dir, credentialsFile)}, nil
}

// Path is the credentials file location. It may not exist yet.
func (m *Manager) Path() string {
	return m.path
}

// Load decodes the credentials file. A missing file yields an empty File.
func (m *Manager) Load() (*File, error) {
	f := &File{Version: fileVersion}

	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading credentials: %w", err)
	default:
		if err := toml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parsing credentials: %w", err)
		}
	}

	if f.Providers == nil {
		f.Providers = make(map[string]Entry)
	}
	return f, nil
}

// Save replaces the credentials file. The content is written to a sibling
// temp file with 0600 permissions and renamed into place.
func (m *Manager) Save(f *File) error {
	if f == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".credentials-*.toml")
	if err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

func (m *Manager) update(fn func(*File)) error {
	f, err := m.Load()
	if err != nil {
		return err
	}
	fn(f)
	return m.Save(f)
}

// SetKey stores key for provider, replacing any previous key.
func (m *Manager) SetKey(provider, key string) error {
	return m.update(func(f *File) {
		f.Providers[provider] = Entry{APIKey: key, SetAt: time.Now().UTC().Truncate(time.Second)}
	})
}

// GetKey returns the stored key for provider, or "" when none is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	f, err := m.Load()
	if err != nil {
		return "", err
	}
	return f.Providers[provider].APIKey, nil
}

// RemoveKey forgets provider's key. Removing an absent key is not an error.
func (m *Manager) RemoveKey(provider string) error {
	return m.update(func(f *File) {
		delete(f.Providers, provider)
	})
}

// ListProviders returns the providers with a stored key, sorted.
func (m *Manager) ListProviders() ([]string, error) {
	f, err := m.Load()
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(f.Providers)), nil
}

// Resolve returns the API key for provider. An explicit key wins, then a key
// stored in credentials.toml, then the provider's environment variables.
func (m *Manager) Resolve(provider, explicit string) (string, Source, error) {
	if explicit != "" {
		return explicit, SourceExplicit, nil
	}

	if m != nil {
		key, err := m.GetKey(provider)
		if err != nil {
			return "", SourceNone, err
		}
		if key != "" {
			return key, SourceStored, nil
		}
	}

	for _, name := range providerEnvVars[provider] {
		if v := os.Getenv(name); v != "" {
			return v, SourceEnv, nil
		}
	}
	return "", SourceNone, nil
}

// EnvVarForProvider names the first environment variable Resolve checks for
// provider, or "" for providers without keys.
func EnvVarForProvider(provider string) string {
	if vars := providerEnvVars[provider]; len(vars) > 0 {
		return vars[0]
	}
	return ""
}

// SupportedProviders lists the providers that take API keys, sorted.
func SupportedProviders() []string {
	return slices.Sorted(maps.Keys(providerEnvVars))
}

func IsSupportedProvider(provider string) bool {
	_, ok := providerEnvVars[provider]
	return ok
}
