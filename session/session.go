// Package session provides the durable, append-only conversation store for
// the agent. Each session is a named transcript persisted under
// .hearth/sessions in the working directory; the transcript is reloaded from
// the store on every turn rather than cached across turns, so it always
// reflects the last committed state.
package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// Session is a named conversation backed by a Store, plus the resume
// metadata the CLI persists with it.
type Session struct {
	Name          string
	Mode          string
	Toolset       string
	ToolVerbosity string
	Acp           bool

	store Store
}

// New creates a new session on the given storage backend.
func New(name, backend string) (*Session, error) {
	store, err := OpenStore(name, backend)
	if err != nil {
		return nil, err
	}
	return &Session{Name: name, store: store}, nil
}

// Load opens an existing session and restores its metadata. It fails if the
// session has never been saved.
func Load(name, backend string) (*Session, error) {
	if !exists(name, backend) {
		return nil, fmt.Errorf("session '%s' not found", name)
	}
	sess, err := New(name, backend)
	if err != nil {
		return nil, err
	}
	meta, err := sess.store.Meta()
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.Mode = meta.Mode
	sess.Toolset = meta.Toolset
	sess.ToolVerbosity = meta.ToolVerbosity
	sess.Acp = meta.Acp
	return sess, nil
}

// Save persists the session metadata.
func (s *Session) Save() error {
	return s.store.SaveMeta(Meta{
		Mode:          s.Mode,
		Toolset:       s.Toolset,
		ToolVerbosity: s.ToolVerbosity,
		Acp:           s.Acp,
	})
}

// Append durably adds messages to the end of the transcript. The batch is
// atomic and messages are never mutated or removed afterwards.
func (s *Session) Append(msgs ...Message) error {
	return s.store.Append(msgs...)
}

// Messages reloads the full transcript from the store, storage metadata
// included.
func (s *Session) Messages() ([]Message, error) {
	return s.store.Load()
}

// Transcript reloads the full transcript and strips storage metadata. This
// is the view handed to LLM clients.
func (s *Session) Transcript() ([]Message, error) {
	msgs, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return stripMeta(msgs), nil
}

// Close releases the underlying store.
func (s *Session) Close() error {
	return s.store.Close()
}

func exists(name, backend string) bool {
	ext := ".json"
	if backend == StorageSQLite {
		ext = ".db"
	}
	_, err := os.Stat(filepath.Join(sessionDir(), name+ext))
	return err == nil
}
