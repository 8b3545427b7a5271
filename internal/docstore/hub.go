package docstore

import (
	"sync"

	"github.com/alexjbarnes/reel-sync/internal/models"
)

// Change operations.
const (
	OpPut    = "put"
	OpDelete = "delete"
)

// watcherBuffer is how many changes a slow watcher may lag behind before
// further changes are dropped for it.
const watcherBuffer = 64

// Change describes one write to a user's favorites.
type Change struct {
	Op string `json:"op"`
	// ID is the movie id in string form.
	ID     string                 `json:"id"`
	Record *models.FavoriteRecord `json:"record,omitempty"`
}

// Hub fans out favorites changes to the watchers of the same user.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Change]struct{})}
}

// Subscribe registers a watcher for userID. The returned cancel function
// unregisters it and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Change, func()) {
	ch := make(chan Change, watcherBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Change]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()

			close(ch)
		})
	}
}

// Publish delivers c to every watcher of userID without blocking. It
// returns how many watchers received it.
func (h *Hub) Publish(userID string, c Change) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0

	for ch := range h.subs[userID] {
		select {
		case ch <- c:
			delivered++
		default:
		}
	}

	return delivered
}

// Watchers returns the number of watchers registered for userID.
func (h *Hub) Watchers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs[userID])
}
