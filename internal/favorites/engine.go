// Package favorites keeps one consistent favorites list across the
// device-local store and the signed-in user's remote collection.
package favorites

//go:generate mockgen -destination=mock_remote_test.go -package=favorites github.com/alexjbarnes/reel-sync/internal/favorites RemoteStore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/session"
)

// defaultRemoteTimeout bounds each background remote call.
const defaultRemoteTimeout = 30 * time.Second

// LocalStore persists the device's favorites list. Load never fails: a
// missing or unreadable list is empty. Save replaces the whole list and
// reports failures through logging only.
type LocalStore interface {
	Load() []models.FavoriteRecord
	Save(records []models.FavoriteRecord)
}

// RemoteStore is the signed-in user's favorites collection.
type RemoteStore interface {
	// LoadAll returns the user's favorites, most recently saved first.
	LoadAll(ctx context.Context, s session.Session) ([]models.FavoriteRecord, error)
	// UpsertMany writes every record, stamping each with a fresh save time.
	UpsertMany(ctx context.Context, s session.Session, records []models.FavoriteRecord) error
	// Remove deletes a favorite. Removing an absent id is not an error.
	Remove(ctx context.Context, s session.Session, id models.MovieID) error
}

// SessionSource supplies the current session and change notifications.
// *session.Tracker satisfies it.
type SessionSource interface {
	Current() (session.Session, bool)
	Subscribe(l session.Listener) (unsubscribe func())
}

// Status is the favorites loading state.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLocalLoaded
	StatusSyncing
	StatusSynced
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLocalLoaded:
		return "local_loaded"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	}

	return "unknown"
}

// Config holds the dependencies for New.
type Config struct {
	Local    LocalStore
	Remote   RemoteStore
	Sessions SessionSource
	Logger   *slog.Logger

	// OnSynced is called after a sync result has been applied, unless the
	// remote list could not be read.
	OnSynced func(userID string, at time.Time)

	// RemoteTimeout bounds each background remote call. Defaults to 30s.
	RemoteTimeout time.Duration
}

// Engine owns the favorites view-model and reconciles it with both stores.
//
// Every mutation goes through Engine: Hydrate loads the local list, Sync
// merges in the remote list, Toggle adds or removes one favorite. Local
// state changes synchronously under mu; remote calls run on tracked
// goroutines. Remote writes that touch the same id run in the order they
// were issued.
type Engine struct {
	local         LocalStore
	remote        RemoteStore
	sessions      SessionSource
	logger        *slog.Logger
	onSynced      func(userID string, at time.Time)
	remoteTimeout time.Duration

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	vm     *ViewModel
	status Status

	// syncedUser is the user whose sign-in already triggered the
	// automatic sync. Cleared on sign-out.
	syncedUser string

	// epoch counts toggles. While any sync is in flight, touched records
	// the epoch of the last toggle per id so the sync can tell which ids
	// changed after it started.
	epoch       uint64
	touched     map[string]uint64
	activeSyncs int

	// lastOp holds the done channel of the latest remote write per id.
	lastOp map[string]chan struct{}

	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates an engine. Call Hydrate or Start before use.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Engine{
		local:         cfg.Local,
		remote:        cfg.Remote,
		sessions:      cfg.Sessions,
		logger:        logger,
		onSynced:      cfg.OnSynced,
		remoteTimeout: timeout,
		baseCtx:       baseCtx,
		cancelBase:    cancel,
		vm:            &ViewModel{},
		touched:       make(map[string]uint64),
		lastOp:        make(map[string]chan struct{}),
	}
}

// ViewModel returns the list exposed to callers.
func (e *Engine) ViewModel() *ViewModel {
	return e.vm
}

// Favorites returns a snapshot of the current list.
func (e *Engine) Favorites() []models.FavoriteRecord {
	return e.vm.List()
}

// IsFavorite reports whether id is in the current list.
func (e *Engine) IsFavorite(id models.MovieID) bool {
	return e.vm.Contains(id)
}

// Status returns the current loading state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status
}

// Hydrate loads the local list into the view-model. Only the first call
// reads the store.
func (e *Engine) Hydrate() []models.FavoriteRecord {
	e.mu.Lock()
	changed := e.hydrateLocked()
	e.mu.Unlock()

	if changed {
		e.vm.notify()
	}

	return e.vm.List()
}

func (e *Engine) hydrateLocked() bool {
	if e.status != StatusUninitialized {
		return false
	}

	records := dedupe(e.local.Load())
	e.vm.set(records)
	e.status = StatusLocalLoaded

	e.logger.Debug("favorites hydrated from local store", slog.Int("count", len(records)))

	return true
}

// Start hydrates, then follows the session source: the first time each
// user signs in a sync runs automatically; signing out returns the engine
// to the local-only state. If a session is already active, its sync
// starts immediately.
func (e *Engine) Start() {
	e.Hydrate()

	e.mu.Lock()
	if e.unsubscribe != nil {
		e.mu.Unlock()
		return
	}
	e.unsubscribe = e.sessions.Subscribe(e.handleSession)
	e.mu.Unlock()

	if s, ok := e.sessions.Current(); ok {
		e.handleSession(s, true)
	}
}

func (e *Engine) handleSession(s session.Session, ok bool) {
	e.mu.Lock()

	if !ok {
		e.syncedUser = ""
		if e.status != StatusUninitialized {
			e.status = StatusLocalLoaded
		}
		e.mu.Unlock()

		e.logger.Info("signed out, favorites are local only")

		return
	}

	if e.syncedUser == s.UserID {
		e.mu.Unlock()
		return
	}

	e.syncedUser = s.UserID
	e.mu.Unlock()

	e.logger.Info("session available, syncing favorites", slog.String("user_id", s.UserID))
	e.Sync()
}

// Sync reconciles the view-model with the signed-in user's remote list.
// It can be called at any time; repeated runs against unchanged stores
// produce the same list. Without a session it returns a finished task
// carrying ErrNoSession and changes nothing.
func (e *Engine) Sync() *Task {
	s, ok := e.sessions.Current()
	if !ok {
		return completedTask("sync", apperrors.ErrNoSession)
	}

	e.mu.Lock()
	hydrated := e.hydrateLocked()
	e.status = StatusSyncing
	e.activeSyncs++
	startEpoch := e.epoch
	e.mu.Unlock()

	if hydrated {
		e.vm.notify()
	}

	t := newTask("sync")

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		e.runSync(t, s, startEpoch)
	}()

	return t
}

func (e *Engine) runSync(t *Task, s session.Session, startEpoch uint64) {
	ctx, cancel := context.WithTimeout(e.baseCtx, e.remoteTimeout)
	remote, loadErr := e.remote.LoadAll(ctx, s)
	cancel()

	if loadErr != nil {
		e.logger.Warn("loading remote favorites failed, treating as empty",
			slog.String("user_id", s.UserID),
			slog.String("error", loadErr.Error()),
		)

		remote = nil
	}

	e.mu.Lock()

	if cur, ok := e.sessions.Current(); !ok || cur.UserID != s.UserID {
		e.activeSyncs--
		if e.activeSyncs == 0 {
			if ok {
				e.status = StatusSynced
			} else {
				e.status = StatusLocalLoaded
			}
		}
		e.pruneTouchedLocked()
		e.mu.Unlock()

		t.stale.Store(true)
		e.logger.Info("session changed during sync, discarding result", slog.String("user_id", s.UserID))
		t.finish(loadErr)

		return
	}

	current := e.vm.List()
	remote = e.dropRemovedSinceLocked(remote, current, startEpoch)

	merged, localOnly := Merge(current, remote)

	e.local.Save(merged)
	e.vm.set(merged)

	// Ids toggled since the sync started already have their own remote
	// write queued.
	var upload []models.FavoriteRecord
	for _, r := range localOnly {
		if e.touched[r.Key()] <= startEpoch {
			upload = append(upload, r)
		}
	}

	var push *Task
	if len(upload) > 0 {
		keys := make([]string, len(upload))
		for i, r := range upload {
			keys[i] = r.Key()
		}

		push = e.scheduleRemoteLocked("upsert", keys, func(ctx context.Context) error {
			return e.remote.UpsertMany(ctx, s, upload)
		})
	}

	e.activeSyncs--
	if e.activeSyncs == 0 {
		e.status = StatusSynced
	}
	e.pruneTouchedLocked()
	e.mu.Unlock()

	e.vm.notify()

	e.logger.Info("favorites synced",
		slog.String("user_id", s.UserID),
		slog.Int("remote", len(remote)),
		slog.Int("local_only", len(localOnly)),
		slog.Int("merged", len(merged)),
	)

	// A sync that could not read the remote list never reached the server.
	if e.onSynced != nil && loadErr == nil {
		e.onSynced(s.UserID, time.Now())
	}

	var pushErr error
	if push != nil {
		<-push.Done()
		pushErr = push.Err()
	}

	t.finish(errors.Join(loadErr, pushErr))
}

// dropRemovedSinceLocked removes remote records whose id was toggled off
// after the sync started, so the merge does not bring them back.
func (e *Engine) dropRemovedSinceLocked(remote, current []models.FavoriteRecord, startEpoch uint64) []models.FavoriteRecord {
	if len(e.touched) == 0 {
		return remote
	}

	out := remote[:0:0]
	for _, r := range remote {
		key := r.Key()
		if e.touched[key] > startEpoch && indexOf(current, key) < 0 {
			e.logger.Debug("dropping remote favorite removed during sync", slog.String("id", key))
			continue
		}

		out = append(out, r)
	}

	return out
}

func (e *Engine) pruneTouchedLocked() {
	if e.activeSyncs == 0 && len(e.touched) > 0 {
		e.touched = make(map[string]uint64)
	}
}

// Toggle adds rec when its id is not a favorite and removes every entry
// with that id otherwise. The view-model and local store change before
// Toggle returns; the remote write runs in the background and its failure
// is logged, never rolled back. Removal only needs rec.ID.
func (e *Engine) Toggle(rec models.FavoriteRecord) (added bool, t *Task) {
	key := rec.Key()

	e.mu.Lock()
	e.hydrateLocked()

	list := e.vm.List()

	var next []models.FavoriteRecord
	if indexOf(list, key) >= 0 {
		next = without(list, key)
	} else {
		rec = rec.Normalized()
		rec.SavedAt = time.Time{}
		next = append(list, rec)
		added = true
	}

	e.local.Save(next)
	e.vm.set(next)

	e.epoch++
	if e.activeSyncs > 0 {
		e.touched[key] = e.epoch
	}

	s, ok := e.sessions.Current()
	switch {
	case !ok:
		t = completedTask(toggleKind(added), nil)
	case added:
		t = e.scheduleRemoteLocked("upsert", []string{key}, func(ctx context.Context) error {
			return e.remote.UpsertMany(ctx, s, []models.FavoriteRecord{rec})
		})
	default:
		id := rec.ID
		t = e.scheduleRemoteLocked("remove", []string{key}, func(ctx context.Context) error {
			return e.remote.Remove(ctx, s, id)
		})
	}
	e.mu.Unlock()

	e.vm.notify()

	e.logger.Debug("favorite toggled",
		slog.String("id", key),
		slog.Bool("added", added),
		slog.Bool("signed_in", ok),
	)

	return added, t
}

// ApplyRemote folds one change from the remote change feed into the
// view-model and local store without writing back. A non-nil rec is a put:
// it replaces any entry with that id and moves to the front, matching its
// fresh server timestamp. A nil rec is a delete. It reports whether the
// list changed.
func (e *Engine) ApplyRemote(id models.MovieID, rec *models.FavoriteRecord) bool {
	key := id.Key()

	e.mu.Lock()
	e.hydrateLocked()

	list := e.vm.List()
	next := without(list, key)

	if rec != nil {
		r := rec.Normalized()
		r.ID = id
		next = append([]models.FavoriteRecord{r}, next...)
	} else if len(next) == len(list) {
		e.mu.Unlock()
		return false
	}

	e.local.Save(next)
	e.vm.set(next)

	e.epoch++
	if e.activeSyncs > 0 {
		e.touched[key] = e.epoch
	}
	e.mu.Unlock()

	e.vm.notify()

	e.logger.Debug("remote change applied", slog.String("id", key), slog.Bool("put", rec != nil))

	return true
}

func toggleKind(added bool) string {
	if added {
		return "upsert"
	}

	return "remove"
}

// scheduleRemoteLocked runs fn in the background after every earlier
// remote write touching any of keys has finished.
func (e *Engine) scheduleRemoteLocked(kind string, keys []string, fn func(ctx context.Context) error) *Task {
	t := newTask(kind)

	var prev []chan struct{}
	for _, k := range keys {
		if ch, ok := e.lastOp[k]; ok {
			prev = append(prev, ch)
		}

		e.lastOp[k] = t.done
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		for _, ch := range prev {
			<-ch
		}

		ctx, cancel := context.WithTimeout(e.baseCtx, e.remoteTimeout)
		err := fn(ctx)
		cancel()

		if err != nil {
			e.logger.Warn("remote favorites write failed",
				slog.String("op", kind),
				slog.Int("records", len(keys)),
				slog.String("error", err.Error()),
			)
		}

		e.mu.Lock()
		for _, k := range keys {
			if e.lastOp[k] == t.done {
				delete(e.lastOp, k)
			}
		}
		e.mu.Unlock()

		t.finish(err)
	}()

	return t
}

// Wait blocks until every background sync and remote write has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops following the session source, waits for background work to
// drain and releases the engine's context.
func (e *Engine) Close() {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	e.wg.Wait()
	e.cancelBase()
}
