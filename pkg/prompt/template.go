package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/parley/pkg/logger"
)

// InputPlaceholder is replaced with the caller's input by Loader.Get.
const InputPlaceholder = "{user_input}"

// ErrTemplateNotFound is returned when <dir>/<name>.txt does not exist.
var ErrTemplateNotFound = errors.New("prompt template not found")

// Loader reads named templates from a directory and caches them. Cache
// entries are invalidated when their file changes on disk.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader creates a Loader for dir. If dir exists it is watched for
// changes; otherwise templates are read on every call until Close.
func NewLoader(dir string, log *slog.Logger) (*Loader, error) {
	if log == nil {
		log = logger.Nop()
	}

	l := &Loader{
		dir:    dir,
		logger: log,
		cache:  make(map[string]string),
		done:   make(chan struct{}),
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Warn("prompt directory not found, caching disabled", "dir", dir)
		return l, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating prompt watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching prompt dir: %w", err)
	}
	l.watcher = watcher

	go l.watch()
	return l, nil
}

func (l *Loader) watch() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			name := strings.TrimSuffix(filepath.Base(event.Name), ".txt")
			l.mu.Lock()
			delete(l.cache, name)
			l.mu.Unlock()
			l.logger.Debug("prompt template changed", "name", name, "op", event.Op.String())
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("prompt watcher error", "error", err)
		}
	}
}

// Load returns the trimmed contents of <dir>/<name>.txt.
func (l *Loader) Load(name string) (string, error) {
	if l.watcher != nil {
		l.mu.RLock()
		t, ok := l.cache[name]
		l.mu.RUnlock()
		if ok {
			return t, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(l.dir, name+".txt"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return "", fmt.Errorf("reading prompt template %s: %w", name, err)
	}

	t := strings.TrimSpace(string(data))
	if l.watcher != nil {
		l.mu.Lock()
		l.cache[name] = t
		l.mu.Unlock()
	}
	return t, nil
}

// Get loads the named template and substitutes every {user_input} with input.
func (l *Loader) Get(name, input string) (string, error) {
	t, err := l.Load(name)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(t, InputPlaceholder, input), nil
}

// Close stops watching the template directory.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	return l.watcher.Close()
}
