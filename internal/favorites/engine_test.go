package favorites

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/alexjbarnes/reel-sync/internal/logging"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/session"
	"github.com/alexjbarnes/reel-sync/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice = session.Session{UserID: "u-alice", Email: "alice@example.com", Token: "tok-alice"}
	bob   = session.Session{UserID: "u-bob", Email: "bob@example.com", Token: "tok-bob"}
)

type memLocal struct {
	mu      sync.Mutex
	records []models.FavoriteRecord
	saves   int
}

func (m *memLocal) Load() []models.FavoriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.FavoriteRecord{}, m.records...)
}

func (m *memLocal) Save(records []models.FavoriteRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append([]models.FavoriteRecord{}, records...)
	m.saves++
}

func (m *memLocal) snapshot() []models.FavoriteRecord {
	return m.Load()
}

// memRemote is a RemoteStore that keeps one list per user, newest first.
type memRemote struct {
	mu    sync.Mutex
	users map[string][]models.FavoriteRecord
}

func newMemRemote() *memRemote {
	return &memRemote{users: make(map[string][]models.FavoriteRecord)}
}

func (m *memRemote) LoadAll(_ context.Context, s session.Session) ([]models.FavoriteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.FavoriteRecord{}, m.users[s.UserID]...), nil
}

func (m *memRemote) UpsertMany(_ context.Context, s session.Session, records []models.FavoriteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		list := without(m.users[s.UserID], r.Key())
		m.users[s.UserID] = append([]models.FavoriteRecord{r}, list...)
	}

	return nil
}

func (m *memRemote) Remove(_ context.Context, s session.Session, id models.MovieID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[s.UserID] = without(m.users[s.UserID], id.Key())

	return nil
}

func newTestEngine(t *testing.T, local LocalStore, remote RemoteStore, sessions SessionSource) *Engine {
	t.Helper()

	e := New(Config{
		Local:         local,
		Remote:        remote,
		Sessions:      sessions,
		Logger:        logging.Discard(),
		RemoteTimeout: 5 * time.Second,
	})
	t.Cleanup(e.Close)

	return e
}

func waitTask(t *testing.T, task *Task) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	select {
	case <-task.Done():
	case <-ctx.Done():
		t.Fatalf("%s task did not finish", task.Kind())
	}

	return task.Err()
}

func TestEngine_HydrateDedupesAndLoadsOnce(t *testing.T) {
	local := &memLocal{records: []models.FavoriteRecord{fav(1, "a"), fav(2, "b"), fav(1, "dup")}}
	e := newTestEngine(t, local, nil, session.NewTracker())

	assert.Equal(t, StatusUninitialized, e.Status())

	got := e.Hydrate()
	assert.Equal(t, []string{"1", "2"}, keys(got))
	assert.Equal(t, StatusLocalLoaded, e.Status())

	local.Save([]models.FavoriteRecord{fav(9, "later")})
	assert.Equal(t, []string{"1", "2"}, keys(e.Hydrate()))
}

func TestEngine_ToggleSignedOutStaysLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)
	local := &memLocal{}
	e := newTestEngine(t, local, remote, session.NewTracker())

	added, task := e.Toggle(fav(1, "Alien"))
	assert.True(t, added)
	require.NoError(t, waitTask(t, task))
	assert.Equal(t, "upsert", task.Kind())
	assert.True(t, e.IsFavorite(1))
	assert.Equal(t, []string{"1"}, keys(local.snapshot()))

	added, task = e.Toggle(models.FavoriteRecord{ID: 1})
	assert.False(t, added)
	require.NoError(t, waitTask(t, task))
	assert.Equal(t, "remove", task.Kind())
	assert.False(t, e.IsFavorite(1))
	assert.Empty(t, local.snapshot())
}

func TestEngine_ToggleAppendsAtEnd(t *testing.T) {
	local := &memLocal{records: []models.FavoriteRecord{fav(1, "a"), fav(2, "b")}}
	e := newTestEngine(t, local, nil, session.NewTracker())

	e.Hydrate()
	e.Toggle(models.FavoriteRecord{ID: 3, Title: "c"})

	got := e.Favorites()
	assert.Equal(t, []string{"1", "2", "3"}, keys(got))
	assert.NotNil(t, got[2].Genres)
}

func TestEngine_SyncWithoutSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)
	e := newTestEngine(t, &memLocal{}, remote, session.NewTracker())

	task := e.Sync()
	err := waitTask(t, task)
	require.ErrorIs(t, err, apperrors.ErrNoSession)
	assert.False(t, task.Stale())
}

func TestEngine_StartSyncsExistingSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	a, b, bRemote, c := fav(1, "A"), fav(2, "B local"), fav(2, "B"), fav(3, "C")
	local := &memLocal{records: []models.FavoriteRecord{a, b}}

	tracker := session.NewTracker()
	tracker.Set(alice)

	remote.EXPECT().LoadAll(gomock.Any(), alice).Return([]models.FavoriteRecord{bRemote, c}, nil)
	remote.EXPECT().UpsertMany(gomock.Any(), alice, []models.FavoriteRecord{a}).Return(nil)

	var syncedUser string

	e := New(Config{
		Local:    local,
		Remote:   remote,
		Sessions: tracker,
		Logger:   logging.Discard(),
		OnSynced: func(userID string, _ time.Time) { syncedUser = userID },
	})
	t.Cleanup(e.Close)

	e.Start()
	e.Wait()

	want := []models.FavoriteRecord{bRemote, c, a}
	assert.Equal(t, want, e.Favorites())
	assert.Equal(t, want, local.snapshot())
	assert.Equal(t, StatusSynced, e.Status())
	assert.Equal(t, alice.UserID, syncedUser)
}

func TestEngine_SyncIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	local := &memLocal{records: []models.FavoriteRecord{fav(4, "D"), fav(1, "A local")}}
	remoteList := []models.FavoriteRecord{fav(1, "A"), fav(2, "B")}

	tracker := session.NewTracker()
	tracker.Set(alice)

	remote.EXPECT().LoadAll(gomock.Any(), alice).Return(remoteList, nil).Times(2)
	remote.EXPECT().UpsertMany(gomock.Any(), alice, []models.FavoriteRecord{fav(4, "D")}).Return(nil).Times(2)

	e := newTestEngine(t, local, remote, tracker)

	require.NoError(t, waitTask(t, e.Sync()))
	first := e.Favorites()

	require.NoError(t, waitTask(t, e.Sync()))
	second := e.Favorites()

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"1", "2", "4"}, keys(second))
}

func TestEngine_TwoDevicesConverge(t *testing.T) {
	remote := newMemRemote()

	trackerA := session.NewTracker()
	trackerA.Set(alice)
	deviceA := newTestEngine(t, &memLocal{records: []models.FavoriteRecord{fav(1, "A"), fav(2, "B")}}, remote, trackerA)

	trackerB := session.NewTracker()
	trackerB.Set(alice)
	deviceB := newTestEngine(t, &memLocal{records: []models.FavoriteRecord{fav(3, "C")}}, remote, trackerB)

	require.NoError(t, waitTask(t, deviceA.Sync()))
	require.NoError(t, waitTask(t, deviceB.Sync()))
	require.NoError(t, waitTask(t, deviceA.Sync()))

	assert.ElementsMatch(t, []string{"1", "2", "3"}, keys(deviceA.Favorites()))
	assert.ElementsMatch(t, []string{"1", "2", "3"}, keys(deviceB.Favorites()))

	_, task := deviceB.Toggle(models.FavoriteRecord{ID: 2})
	require.NoError(t, waitTask(t, task))
	require.NoError(t, waitTask(t, deviceA.Sync()))

	// Device A still holds 2 locally and the remote no longer does, so A
	// pushes it back. Removals only propagate from the device that made them.
	assert.ElementsMatch(t, []string{"1", "2", "3"}, keys(deviceA.Favorites()))
}

func TestEngine_RemovalDuringSyncIsNotResurrected(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	local := &memLocal{records: []models.FavoriteRecord{fav(1, "A")}}
	tracker := session.NewTracker()
	tracker.Set(alice)

	started := make(chan struct{})
	release := make(chan struct{})

	remote.EXPECT().LoadAll(gomock.Any(), alice).DoAndReturn(
		func(context.Context, session.Session) ([]models.FavoriteRecord, error) {
			close(started)
			<-release

			return []models.FavoriteRecord{fav(1, "A")}, nil
		})
	remote.EXPECT().Remove(gomock.Any(), alice, models.MovieID(1)).Return(nil)

	e := newTestEngine(t, local, remote, tracker)
	e.Hydrate()

	syncTask := e.Sync()
	<-started
	assert.Equal(t, StatusSyncing, e.Status())

	added, _ := e.Toggle(models.FavoriteRecord{ID: 1})
	require.False(t, added)

	close(release)
	require.NoError(t, waitTask(t, syncTask))
	e.Wait()

	assert.False(t, e.IsFavorite(1))
	assert.Empty(t, local.snapshot())
	assert.Equal(t, StatusSynced, e.Status())
}

func TestEngine_AddDuringSyncUploadsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	tracker := session.NewTracker()
	tracker.Set(alice)

	started := make(chan struct{})
	release := make(chan struct{})

	remote.EXPECT().LoadAll(gomock.Any(), alice).DoAndReturn(
		func(context.Context, session.Session) ([]models.FavoriteRecord, error) {
			close(started)
			<-release

			return nil, nil
		})
	remote.EXPECT().UpsertMany(gomock.Any(), alice, []models.FavoriteRecord{fav(2, "B")}).Return(nil).Times(1)

	e := newTestEngine(t, &memLocal{}, remote, tracker)

	syncTask := e.Sync()
	<-started

	e.Toggle(fav(2, "B"))

	close(release)
	require.NoError(t, waitTask(t, syncTask))
	e.Wait()

	assert.Equal(t, []string{"2"}, keys(e.Favorites()))
}

func TestEngine_SessionChangeMarksSyncStale(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	local := &memLocal{records: []models.FavoriteRecord{fav(5, "E")}}
	tracker := session.NewTracker()
	tracker.Set(alice)

	started := make(chan struct{})
	release := make(chan struct{})

	remote.EXPECT().LoadAll(gomock.Any(), alice).DoAndReturn(
		func(context.Context, session.Session) ([]models.FavoriteRecord, error) {
			close(started)
			<-release

			return []models.FavoriteRecord{fav(6, "F")}, nil
		})

	e := newTestEngine(t, local, remote, tracker)
	e.Hydrate()

	task := e.Sync()
	<-started

	tracker.Clear()
	close(release)

	require.NoError(t, waitTask(t, task))
	assert.True(t, task.Stale())
	e.Wait()

	assert.Equal(t, []string{"5"}, keys(e.Favorites()))
	assert.Equal(t, []string{"5"}, keys(local.snapshot()))
	assert.Equal(t, StatusLocalLoaded, e.Status())
}

func TestEngine_SyncResultForOtherUserIsDiscarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	tracker := session.NewTracker()
	tracker.Set(alice)

	started := make(chan struct{})
	release := make(chan struct{})

	remote.EXPECT().LoadAll(gomock.Any(), alice).DoAndReturn(
		func(context.Context, session.Session) ([]models.FavoriteRecord, error) {
			close(started)
			<-release

			return []models.FavoriteRecord{fav(6, "alice only")}, nil
		})

	e := newTestEngine(t, &memLocal{}, remote, tracker)

	task := e.Sync()
	<-started

	tracker.Set(bob)
	close(release)

	require.NoError(t, waitTask(t, task))
	assert.True(t, task.Stale())
	assert.False(t, e.IsFavorite(6))
}

func TestEngine_WritesForSameIDRunInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	tracker := session.NewTracker()
	tracker.Set(alice)

	var (
		mu    sync.Mutex
		order []string
	)

	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	release := make(chan struct{})

	remote.EXPECT().UpsertMany(gomock.Any(), alice, gomock.Any()).DoAndReturn(
		func(context.Context, session.Session, []models.FavoriteRecord) error {
			record("upsert-start")
			<-release
			record("upsert-end")

			return nil
		})
	remote.EXPECT().Remove(gomock.Any(), alice, models.MovieID(9)).DoAndReturn(
		func(context.Context, session.Session, models.MovieID) error {
			record("remove")
			return nil
		})

	e := newTestEngine(t, &memLocal{}, remote, tracker)

	_, addTask := e.Toggle(fav(9, "I"))
	_, removeTask := e.Toggle(models.FavoriteRecord{ID: 9})

	select {
	case <-removeTask.Done():
		t.Fatal("remove finished before the earlier upsert")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, waitTask(t, addTask))
	require.NoError(t, waitTask(t, removeTask))

	assert.Equal(t, []string{"upsert-start", "upsert-end", "remove"}, order)
	assert.False(t, e.IsFavorite(9))
}

func TestEngine_AutoSyncOncePerSignIn(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	remote.EXPECT().LoadAll(gomock.Any(), alice).Return(nil, nil).Times(2)

	tracker := session.NewTracker()
	e := newTestEngine(t, &memLocal{}, remote, tracker)
	e.Start()
	assert.Equal(t, StatusLocalLoaded, e.Status())

	tracker.Set(alice)
	e.Wait()
	tracker.Set(alice)
	e.Wait()
	assert.Equal(t, StatusSynced, e.Status())

	tracker.Clear()
	assert.Equal(t, StatusLocalLoaded, e.Status())

	tracker.Set(alice)
	e.Wait()
	assert.Equal(t, StatusSynced, e.Status())
}

func TestEngine_LoadFailureStillPushesLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	loadErr := errors.New("network down")
	local := &memLocal{records: []models.FavoriteRecord{fav(1, "A")}}

	tracker := session.NewTracker()
	tracker.Set(alice)

	remote.EXPECT().LoadAll(gomock.Any(), alice).Return(nil, loadErr)
	remote.EXPECT().UpsertMany(gomock.Any(), alice, []models.FavoriteRecord{fav(1, "A")}).Return(nil)

	e := newTestEngine(t, local, remote, tracker)

	err := waitTask(t, e.Sync())
	require.ErrorIs(t, err, loadErr)
	assert.Equal(t, []string{"1"}, keys(e.Favorites()))
	assert.Equal(t, StatusSynced, e.Status())
}

func TestEngine_RemoteWriteFailureKeepsLocalChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	writeErr := errors.New("permission denied")

	tracker := session.NewTracker()
	tracker.Set(alice)

	remote.EXPECT().UpsertMany(gomock.Any(), alice, gomock.Any()).Return(writeErr)

	local := &memLocal{}
	e := newTestEngine(t, local, remote, tracker)

	added, task := e.Toggle(fav(3, "C"))
	require.True(t, added)
	require.ErrorIs(t, waitTask(t, task), writeErr)

	assert.True(t, e.IsFavorite(3))
	assert.Equal(t, []string{"3"}, keys(local.snapshot()))
}

func TestEngine_ToggleClearsSavedAt(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	tracker := session.NewTracker()
	tracker.Set(alice)

	rec := fav(4, "D")
	rec.SavedAt = time.Unix(100, 0)

	remote.EXPECT().UpsertMany(gomock.Any(), alice, []models.FavoriteRecord{fav(4, "D")}).Return(nil)

	e := newTestEngine(t, &memLocal{}, remote, tracker)

	_, task := e.Toggle(rec)
	require.NoError(t, waitTask(t, task))
	assert.True(t, e.Favorites()[0].SavedAt.IsZero())
}

func TestEngine_OnChangeReceivesSnapshots(t *testing.T) {
	e := newTestEngine(t, &memLocal{}, nil, session.NewTracker())

	var got [][]string
	e.ViewModel().OnChange(func(records []models.FavoriteRecord) {
		got = append(got, keys(records))
	})

	e.Hydrate()
	e.Toggle(fav(1, "A"))
	e.Toggle(fav(2, "B"))
	e.Toggle(models.FavoriteRecord{ID: 1})

	assert.Equal(t, [][]string{{}, {"1"}, {"1", "2"}, {"2"}}, got)
	assert.Equal(t, 1, e.ViewModel().Len())
}

func TestEngine_StringIDsFromStoreMatchNumericToggle(t *testing.T) {
	st, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.SetRawFavorites([]byte(`[{"id":"7","title":"Seven"},{"id":8,"title":"Eight"}]`)))

	e := newTestEngine(t, NewLocalStore(st, logging.Discard()), nil, session.NewTracker())

	assert.Equal(t, []string{"7", "8"}, keys(e.Hydrate()))
	assert.True(t, e.IsFavorite(7))

	added, _ := e.Toggle(models.FavoriteRecord{ID: 7})
	assert.False(t, added)

	stored, err := st.Favorites()
	require.NoError(t, err)
	assert.Equal(t, []string{"8"}, keys(stored))
}

func TestEngine_ApplyRemoteWritesLocallyOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	local := &memLocal{records: []models.FavoriteRecord{fav(1, "One"), fav(2, "Two")}}
	e := newTestEngine(t, local, remote, session.NewTracker())
	e.Hydrate()

	put := fav(3, "Three")
	assert.True(t, e.ApplyRemote(3, &put))
	assert.Equal(t, []string{"3", "1", "2"}, keys(e.Favorites()))

	renamed := fav(2, "Two (Director's Cut)")
	assert.True(t, e.ApplyRemote(2, &renamed))
	assert.Equal(t, []string{"2", "3", "1"}, keys(e.Favorites()))
	assert.Equal(t, "Two (Director's Cut)", e.Favorites()[0].Title)

	assert.True(t, e.ApplyRemote(1, nil))
	assert.Equal(t, []string{"2", "3"}, keys(e.Favorites()))
	assert.Equal(t, []string{"2", "3"}, keys(local.snapshot()))

	saves := local.saves
	assert.False(t, e.ApplyRemote(42, nil))
	assert.Equal(t, saves, local.saves)
}

func TestEngine_ApplyRemoteDeleteSurvivesSync(t *testing.T) {
	remote := newMemRemote()
	tracker := session.NewTracker()
	tracker.Set(alice)

	require.NoError(t, remote.UpsertMany(context.Background(), alice, []models.FavoriteRecord{fav(1, "One"), fav(2, "Two")}))

	local := &memLocal{}
	e := newTestEngine(t, local, remote, tracker)
	require.NoError(t, waitTask(t, e.Sync()))
	assert.ElementsMatch(t, []string{"1", "2"}, keys(e.Favorites()))

	// Another device removes 1; the feed delivers the delete.
	require.NoError(t, remote.Remove(context.Background(), alice, 1))
	assert.True(t, e.ApplyRemote(1, nil))

	require.NoError(t, waitTask(t, e.Sync()))
	assert.Equal(t, []string{"2"}, keys(e.Favorites()))

	got, err := remote.LoadAll(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, keys(got))
}

func TestEngine_SignedInRemoveFailureKeepsEntryRemoved(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	local := &memLocal{records: []models.FavoriteRecord{fav(550, "Fight Club")}}
	tracker := session.NewTracker()
	tracker.Set(alice)

	writeErr := errors.New("connection reset")
	remote.EXPECT().Remove(gomock.Any(), alice, models.MovieID(550)).Return(writeErr)

	e := newTestEngine(t, local, remote, tracker)
	e.Hydrate()

	added, task := e.Toggle(models.FavoriteRecord{ID: 550})
	require.False(t, added)

	assert.ErrorIs(t, waitTask(t, task), writeErr)
	assert.False(t, e.IsFavorite(550))
	assert.Empty(t, e.Favorites())
	assert.Empty(t, local.snapshot())
}

func TestEngine_FailedRemoteReadDoesNotRecordSync(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemoteStore(ctrl)

	tracker := session.NewTracker()
	tracker.Set(alice)

	loadErr := errors.New("status 401: invalid or expired token")
	remote.EXPECT().LoadAll(gomock.Any(), alice).Return(nil, loadErr)
	remote.EXPECT().LoadAll(gomock.Any(), alice).Return(nil, nil)

	var synced []string

	e := New(Config{
		Local:    &memLocal{},
		Remote:   remote,
		Sessions: tracker,
		Logger:   logging.Discard(),
		OnSynced: func(userID string, _ time.Time) { synced = append(synced, userID) },
	})
	t.Cleanup(e.Close)

	assert.ErrorIs(t, waitTask(t, e.Sync()), loadErr)
	assert.Empty(t, synced)
	assert.Equal(t, StatusSynced, e.Status())

	require.NoError(t, waitTask(t, e.Sync()))
	assert.Equal(t, []string{alice.UserID}, synced)
}
