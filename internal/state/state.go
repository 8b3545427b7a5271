package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/session"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.reel-sync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket    = []byte("app")
	syncBucket   = []byte("sync")
	favoritesKey = []byte("favorites")
	sessionKey   = []byte("session")
)

// ErrMalformedFavorites is returned when the persisted favorites entry is
// not a JSON array of favorite records.
var ErrMalformedFavorites = errors.New("malformed favorites entry")

// State wraps a bbolt database for all persistent client state.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. The app and sync buckets are created on open.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(appBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(syncBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Favorites returns the persisted favorites list in stored order. A
// missing entry yields an empty list. An entry that is not a JSON array
// of records yields ErrMalformedFavorites.
func (s *State) Favorites() ([]models.FavoriteRecord, error) {
	var records []models.FavoriteRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(favoritesKey)
		if v == nil {
			return nil
		}

		if err := json.Unmarshal(v, &records); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFavorites, err)
		}

		// "null" decodes without error but is not an array.
		if records == nil {
			return fmt.Errorf("%w: not an array", ErrMalformedFavorites)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// SetFavorites replaces the persisted favorites list.
func (s *State) SetFavorites(records []models.FavoriteRecord) error {
	out := make([]models.FavoriteRecord, len(records))
	for i, r := range records {
		out[i] = r.Normalized()
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding favorites: %w", err)
	}

	return s.SetRawFavorites(data)
}

// SetRawFavorites stores data verbatim as the favorites entry. Nothing is
// validated; Favorites reports a malformed entry when it is read back.
func (s *State) SetRawFavorites(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(favoritesKey, data)
	})
}

// Session returns the cached session, or nil when signed out.
func (s *State) Session() (*session.Session, error) {
	var sess *session.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(sessionKey)
		if v == nil {
			return nil
		}

		sess = &session.Session{}

		return json.Unmarshal(v, sess)
	})

	return sess, err
}

// SetSession persists the session so later invocations stay signed in.
func (s *State) SetSession(sess session.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		return tx.Bucket(appBucket).Put(sessionKey, data)
	})
}

// ClearSession removes the cached session.
func (s *State) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(sessionKey)
	})
}

// LastSync returns when favorites were last reconciled for userID, or the
// zero time if never.
func (s *State) LastSync(userID string) time.Time {
	var t time.Time

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(syncBucket).Get([]byte(userID))
		if v == nil {
			return nil
		}

		return t.UnmarshalBinary(v)
	})

	return t
}

// SetLastSync records a completed reconciliation for userID.
func (s *State) SetLastSync(userID string, at time.Time) error {
	data, err := at.MarshalBinary()
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(syncBucket).Put([]byte(userID), data)
	})
}
