package favorites

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openState(t *testing.T) *state.State {
	t.Helper()

	st, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)

	return st
}

func TestLocalStore_RoundTrip(t *testing.T) {
	st := openState(t)
	defer st.Close()

	store := NewLocalStore(st, slog.New(slog.DiscardHandler))
	assert.Empty(t, store.Load())

	want := []models.FavoriteRecord{fav(2, "B"), fav(1, "A")}
	store.Save(want)

	assert.Equal(t, want, store.Load())
}

func TestLocalStore_MalformedLoadsEmpty(t *testing.T) {
	for _, raw := range []string{`{"id":1}`, `null`, `not json`, `[{"id":{}}]`} {
		t.Run(raw, func(t *testing.T) {
			st := openState(t)
			defer st.Close()

			require.NoError(t, st.SetRawFavorites([]byte(raw)))

			var buf bytes.Buffer
			store := NewLocalStore(st, slog.New(slog.NewTextHandler(&buf, nil)))

			got := store.Load()
			assert.NotNil(t, got)
			assert.Empty(t, got)
			assert.Contains(t, buf.String(), "local favorites unreadable")
		})
	}
}

func TestLocalStore_SaveFailureIsLogged(t *testing.T) {
	st := openState(t)
	require.NoError(t, st.Close())

	var buf bytes.Buffer
	store := NewLocalStore(st, slog.New(slog.NewTextHandler(&buf, nil)))

	assert.NotPanics(t, func() { store.Save([]models.FavoriteRecord{fav(1, "A")}) })
	assert.Contains(t, buf.String(), "saving local favorites failed")
}
