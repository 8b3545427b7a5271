package favorites

import (
	"sync"

	"github.com/alexjbarnes/reel-sync/internal/models"
)

// ViewModel is the in-memory favorites list shown to users. Readers may
// use it from any goroutine; only the Engine mutates it.
type ViewModel struct {
	mu        sync.RWMutex
	records   []models.FavoriteRecord
	listeners []func([]models.FavoriteRecord)
}

// List returns a copy of the current list.
func (v *ViewModel) List() []models.FavoriteRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]models.FavoriteRecord, len(v.records))
	copy(out, v.records)

	return out
}

// Len returns the number of favorites.
func (v *ViewModel) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return len(v.records)
}

// Contains reports whether id is a favorite.
func (v *ViewModel) Contains(id models.MovieID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return indexOf(v.records, id.Key()) >= 0
}

// OnChange registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change, outside the engine's lock.
func (v *ViewModel) OnChange(fn func([]models.FavoriteRecord)) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.listeners = append(v.listeners, fn)
}

func (v *ViewModel) set(records []models.FavoriteRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.records = records
}

func (v *ViewModel) notify() {
	v.mu.RLock()
	listeners := v.listeners
	v.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	snapshot := v.List()
	for _, fn := range listeners {
		fn(snapshot)
	}
}
