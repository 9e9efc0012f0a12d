package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Storage backends for the message store.
const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// ErrStoreUnavailable is returned when the backing medium for a session
// cannot be read or written. It is fatal for the current turn and is never
// silently recovered from.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Meta is the per-session metadata persisted alongside the transcript so a
// resumed session comes back with the flags it was started with.
type Meta struct {
	Mode          string `json:"mode,omitempty"`
	Toolset       string `json:"toolset,omitempty"`
	ToolVerbosity string `json:"tool_verbosity,omitempty"`
	Acp           bool   `json:"acp,omitempty"`
}

// Store is an append-only, durable log of conversation messages. There are
// no update or delete operations anywhere in the interface.
type Store interface {
	Name() string

	// Append durably persists the given messages after all existing ones,
	// in the given order, assigning each a fresh unique id and timestamp.
	// The batch is atomic: either every message lands or none do, so a
	// tool-request and its tool-result can never be torn apart by a
	// partial write.
	Append(msgs ...Message) error

	// Load returns the full transcript in insertion order. A store that has
	// never been appended to loads as empty; an unreadable or corrupt
	// backing medium fails with ErrStoreUnavailable.
	Load() ([]Message, error)

	Meta() (Meta, error)
	SaveMeta(Meta) error
	Close() error
}

// OpenStore opens (creating if necessary) the store for a session name on
// the given backend.
func OpenStore(name, backend string) (Store, error) {
	switch backend {
	case "", StorageJSON:
		return NewFileStore(name)
	case StorageSQLite:
		return NewSQLiteStore(name)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// List returns the names of saved sessions whose names match the given glob
// pattern (doublestar syntax). An empty pattern matches everything.
func List(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	dir := sessionDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: could not read session directory %s: %w", ErrStoreUnavailable, dir, err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json" && ext != ".db" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		match, err := doublestar.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid session pattern %q: %w", pattern, err)
		}
		if match && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// sessionDir is the durable collection for the current working directory.
func sessionDir() string {
	return filepath.Join(".hearth", "sessions")
}

func ensureSessionDir() (string, error) {
	dir := sessionDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: could not create session directory: %w", ErrStoreUnavailable, err)
	}
	return dir, nil
}
