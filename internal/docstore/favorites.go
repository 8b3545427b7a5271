package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/models"
)

// ListFavorites returns userID's favorites, most recently saved first.
// Each record's SavedAt carries its stored timestamp.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]models.FavoriteRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document, saved_at FROM favorites WHERE user_id = ? ORDER BY saved_at DESC, movie_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying favorites: %w", err)
	}
	defer rows.Close()

	out := []models.FavoriteRecord{}

	for rows.Next() {
		var (
			doc     string
			savedAt int64
			rec     models.FavoriteRecord
		)

		if err := rows.Scan(&doc, &savedAt); err != nil {
			return nil, fmt.Errorf("scanning favorite: %w", err)
		}

		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("decoding favorite document: %w", err)
		}

		rec = rec.Normalized()
		rec.SavedAt = time.Unix(0, savedAt).UTC()
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating favorites: %w", err)
	}

	return out, nil
}

// PutFavorite creates or replaces the document for rec.ID and stamps it
// with a new save time, moving it to the front of the list.
func (s *Store) PutFavorite(ctx context.Context, userID string, rec models.FavoriteRecord) (models.FavoriteRecord, error) {
	rec = rec.Normalized()

	doc, err := json.Marshal(rec)
	if err != nil {
		return models.FavoriteRecord{}, fmt.Errorf("encoding favorite: %w", err)
	}

	stamp := s.stamp()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO favorites (user_id, movie_id, document, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, movie_id) DO UPDATE SET document = excluded.document, saved_at = excluded.saved_at`,
		userID, rec.Key(), string(doc), stamp,
	)
	if err != nil {
		return models.FavoriteRecord{}, fmt.Errorf("upserting favorite %s: %w", rec.Key(), err)
	}

	rec.SavedAt = time.Unix(0, stamp).UTC()

	return rec, nil
}

// DeleteFavorite removes id from userID's favorites. It reports whether a
// document existed; deleting an absent id is not an error.
func (s *Store) DeleteFavorite(ctx context.Context, userID string, id models.MovieID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND movie_id = ?`,
		userID, id.Key(),
	)
	if err != nil {
		return false, fmt.Errorf("deleting favorite %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting favorite %s: %w", id, err)
	}

	return n > 0, nil
}
