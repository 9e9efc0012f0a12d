package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// fileState is the on-disk shape of a JSON-backed session: the metadata
// header followed by the transcript, matching the resume flags saved by the
// CLI.
type fileState struct {
	Name          string    `json:"name"`
	Mode          string    `json:"mode,omitempty"`
	Toolset       string    `json:"toolset,omitempty"`
	ToolVerbosity string    `json:"tool_verbosity,omitempty"`
	Acp           bool      `json:"acp,omitempty"`
	Messages      []Message `json:"messages"`
}

// FileStore persists a session as a single JSON document under
// .hearth/sessions. Appends rewrite the document through a temporary file
// and rename so a batch is either fully visible or not at all.
type FileStore struct {
	name string
	path string
}

// NewFileStore opens the JSON store for the given session name, creating the
// session directory if needed. The file itself is created on first write.
func NewFileStore(name string) (*FileStore, error) {
	dir, err := ensureSessionDir()
	if err != nil {
		return nil, err
	}
	return &FileStore{
		name: name,
		path: filepath.Join(dir, fmt.Sprintf("%s.json", name)),
	}, nil
}

func (f *FileStore) Name() string { return f.name }

// Exists reports whether the session has been written to disk yet.
func (f *FileStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func (f *FileStore) Append(msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	state, err := f.read()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, msg := range msgs {
		msg.ID = uuid.NewString()
		msg.CreatedAt = now
		state.Messages = append(state.Messages, msg)
	}
	return f.write(state)
}

func (f *FileStore) Load() ([]Message, error) {
	state, err := f.read()
	if err != nil {
		return nil, err
	}
	return state.Messages, nil
}

func (f *FileStore) Meta() (Meta, error) {
	state, err := f.read()
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		Mode:          state.Mode,
		Toolset:       state.Toolset,
		ToolVerbosity: state.ToolVerbosity,
		Acp:           state.Acp,
	}, nil
}

func (f *FileStore) SaveMeta(m Meta) error {
	state, err := f.read()
	if err != nil {
		return err
	}
	state.Mode = m.Mode
	state.Toolset = m.Toolset
	state.ToolVerbosity = m.ToolVerbosity
	state.Acp = m.Acp
	return f.write(state)
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) read() (*fileState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			// A session that has never been written loads as empty.
			return &fileState{Name: f.name}, nil
		}
		return nil, fmt.Errorf("%w: could not read session file %s: %w", ErrStoreUnavailable, f.path, err)
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: could not parse session file %s: %w", ErrStoreUnavailable, f.path, err)
	}
	return &state, nil
}

// write replaces the session document atomically: marshal, write a sibling
// temporary file, fsync, then rename over the original.
func (f *FileStore) write(state *fileState) error {
	state.Name = f.name
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: could not create temp file: %w", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: could not write session file: %w", ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: could not sync session file: %w", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: could not close session file: %w", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: could not replace session file %s: %w", ErrStoreUnavailable, f.path, err)
	}
	return nil
}
