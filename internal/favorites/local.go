package favorites

import (
	"log/slog"

	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/state"
)

// stateStore adapts the bbolt state database to LocalStore. Read and
// write failures are logged and swallowed: the view-model stays the
// source of truth for the running process.
type stateStore struct {
	state  *state.State
	logger *slog.Logger
}

// NewLocalStore returns a LocalStore backed by st.
func NewLocalStore(st *state.State, logger *slog.Logger) LocalStore {
	return &stateStore{state: st, logger: logger}
}

func (s *stateStore) Load() []models.FavoriteRecord {
	records, err := s.state.Favorites()
	if err != nil {
		s.logger.Warn("local favorites unreadable, starting empty", slog.String("error", err.Error()))
		return []models.FavoriteRecord{}
	}

	if records == nil {
		return []models.FavoriteRecord{}
	}

	return records
}

func (s *stateStore) Save(records []models.FavoriteRecord) {
	if err := s.state.SetFavorites(records); err != nil {
		s.logger.Warn("saving local favorites failed", slog.Int("count", len(records)), slog.String("error", err.Error()))
	}
}
