// Package session holds per-identity browsing state: credentials, current
// path, navigation stack, active mode, and the last rendered listing view.
//
// All mutation goes through Store.Update, which serializes commands per
// session key. Commands from different sessions run concurrently; two
// commands from the same identity never interleave their state changes.
package session

import (
	"errors"
	"sync"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/models"
)

// ErrNoParent is returned by Pop when the navigation stack is empty.
var ErrNoParent = errors.New("already at the traversal root")

// Mode is the session's active interaction mode.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeBrowsing  Mode = "browsing"
	ModeSearching Mode = "searching"
	ModeUploading Mode = "uploading"
)

// View is the last rendered, addressable listing: the full sorted entry set
// plus the current page. Numeric references resolve against the current
// page of this view only; any fresh listing replaces it wholesale.
type View struct {
	// Source describes what was listed: a directory path, or "search:<term>".
	Source string

	// Entries is the full sorted entry set the view paginates over.
	Entries []models.Entry

	// Page is the 0-based current page index.
	Page int

	// PageSize is the bound used when the view was rendered.
	PageSize int
}

// Session is one identity's browsing context. Fields are only read or
// written inside Store.Update / Store.Snapshot.
type Session struct {
	Identity string

	// Creds is owned exclusively by this session. Never log token or
	// password in full.
	Creds api.Credentials

	CurrentPath string
	Mode        Mode

	// stack holds previously visited paths for "quit"; only index-based
	// descents push onto it.
	stack []string

	view *View
}

// Push records the current path before a descent.
func (s *Session) Push(path string) {
	s.stack = append(s.stack, path)
}

// Pop removes and returns the most recently pushed path.
func (s *Session) Pop() (string, error) {
	if len(s.stack) == 0 {
		return "", ErrNoParent
	}
	p := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return p, nil
}

// StackDepth returns the navigation stack depth.
func (s *Session) StackDepth() int {
	return len(s.stack)
}

// SetView replaces the addressable view, invalidating all prior numeric
// references.
func (s *Session) SetView(v *View) {
	s.view = v
}

// View returns the current addressable view, or nil when nothing has been
// rendered yet.
func (s *Session) View() *View {
	return s.view
}

// Reset clears navigation state but keeps credentials.
func (s *Session) Reset() {
	s.CurrentPath = "/"
	s.Mode = ModeIdle
	s.stack = nil
	s.view = nil
}

// CredentialResolver supplies the credentials for a new session. In shared
// mode every identity resolves to the same set; in per-user mode each
// identity has its own record.
type CredentialResolver func(identity string) (api.Credentials, error)

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Store is the keyed session map. Safe for concurrent use; each session has
// its own lock, and no global lock is held while a mutator runs.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	resolve CredentialResolver
}

// NewStore creates a store resolving credentials through resolve.
func NewStore(resolve CredentialResolver) *Store {
	return &Store{
		entries: make(map[string]*entry),
		resolve: resolve,
	}
}

// getOrCreate returns the entry for identity, creating the session on first
// use with resolved credentials.
func (st *Store) getOrCreate(identity string) (*entry, error) {
	st.mu.Lock()
	e, ok := st.entries[identity]
	st.mu.Unlock()
	if ok {
		return e, nil
	}

	creds, err := st.resolve(identity)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	// Lost the race: keep the first-created session.
	if e, ok := st.entries[identity]; ok {
		return e, nil
	}
	e = &entry{
		session: &Session{
			Identity:    identity,
			Creds:       creds,
			CurrentPath: "/",
			Mode:        ModeIdle,
		},
	}
	st.entries[identity] = e
	return e, nil
}

// Update runs fn with exclusive access to the identity's session, creating
// it on first use. The session lock is held for the whole call, so remote
// calls made inside fn block later commands from the same identity until
// they finish - which is exactly the per-session serialization we want.
func (st *Store) Update(identity string, fn func(*Session) error) error {
	e, err := st.getOrCreate(identity)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Snapshot returns a copy of the session's scalar state for read-only use.
// The view pointer is shared; views are treated as immutable once set.
func (st *Store) Snapshot(identity string) (Session, error) {
	e, err := st.getOrCreate(identity)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := *e.session
	s.stack = append([]string(nil), e.session.stack...)
	return s, nil
}

// Remove destroys a session. Only explicit reset or process teardown calls
// this.
func (st *Store) Remove(identity string) {
	st.mu.Lock()
	delete(st.entries, identity)
	st.mu.Unlock()
}

// RefreshCredentials re-resolves and replaces the session's credentials,
// used after a set/clear operation on the identity's record.
func (st *Store) RefreshCredentials(identity string) error {
	creds, err := st.resolve(identity)
	if err != nil {
		return err
	}
	return st.Update(identity, func(s *Session) error {
		s.Creds = creds
		return nil
	})
}
