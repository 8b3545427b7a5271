// Package session tracks the signed-in user. The favorites engine reads
// the current session through a Tracker passed to its constructor and is
// notified when it changes, instead of consulting global auth state.
package session

import (
	"slices"
	"sync"
)

// Session is an authenticated user context.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// Valid reports whether the session carries enough to talk to the
// remote store.
func (s Session) Valid() bool {
	return s.UserID != "" && s.Token != ""
}

// Listener is called after every session change. ok is false on sign-out.
type Listener func(s Session, ok bool)

type subscription struct {
	id int
	l  Listener
}

// Tracker holds the current session and notifies listeners on change, in
// the order they subscribed. Safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	current   *Session
	listeners []subscription
	nextID    int
}

// NewTracker creates a tracker with no session.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Current returns the active session, if any.
func (t *Tracker) Current() (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == nil {
		return Session{}, false
	}

	return *t.current, true
}

// Set replaces the current session. Invalid sessions are treated as a
// sign-out.
func (t *Tracker) Set(s Session) {
	if !s.Valid() {
		t.Clear()
		return
	}

	t.mu.Lock()
	t.current = &s
	listeners := t.snapshotLocked()
	t.mu.Unlock()

	for _, l := range listeners {
		l(s, true)
	}
}

// Clear signs out. Listeners are only notified when a session was active.
func (t *Tracker) Clear() {
	t.mu.Lock()
	had := t.current != nil
	t.current = nil
	listeners := t.snapshotLocked()
	t.mu.Unlock()

	if !had {
		return
	}

	for _, l := range listeners {
		l(Session{}, false)
	}
}

// Subscribe registers l and returns a function that removes it.
func (t *Tracker) Subscribe(l Listener) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners = append(t.listeners, subscription{id: id, l: l})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		t.listeners = slices.DeleteFunc(t.listeners, func(s subscription) bool { return s.id == id })
		t.mu.Unlock()
	}
}

func (t *Tracker) snapshotLocked() []Listener {
	out := make([]Listener, len(t.listeners))
	for i, s := range t.listeners {
		out[i] = s.l
	}

	return out
}
