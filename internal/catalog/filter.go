package catalog

import (
	"strings"

	"github.com/alexjbarnes/reel-sync/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// FilterByTitle returns the movies whose title contains term, ignoring
// case. Titles and term are NFC normalized and case folded first, so
// "AMÉLIE" matches "Amélie" regardless of how the accent was encoded.
// An empty term returns movies unchanged.
func FilterByTitle(movies []models.FavoriteRecord, term string) []models.FavoriteRecord {
	if strings.TrimSpace(term) == "" {
		return movies
	}

	fold := cases.Fold()
	needle := fold.String(norm.NFC.String(term))

	out := make([]models.FavoriteRecord, 0, len(movies))
	for _, m := range movies {
		if strings.Contains(fold.String(norm.NFC.String(m.Title)), needle) {
			out = append(out, m)
		}
	}

	return out
}
