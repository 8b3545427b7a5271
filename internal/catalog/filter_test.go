package catalog

import (
	"testing"

	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/stretchr/testify/assert"
)

func titles(movies []models.FavoriteRecord) []string {
	out := make([]string, len(movies))
	for i, m := range movies {
		out[i] = m.Title
	}

	return out
}

func TestFilterByTitle(t *testing.T) {
	movies := []models.FavoriteRecord{
		movie(1, "The Dark Knight"),
		movie(2, "Amélie"),
		movie(3, "Knives Out"),
		movie(4, "Straße"),
	}

	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"The Dark Knight", "Amélie", "Knives Out", "Straße"}},
		{"   ", []string{"The Dark Knight", "Amélie", "Knives Out", "Straße"}},
		{"KNI", []string{"The Dark Knight", "Knives Out"}},
		{"AMÉLIE", []string{"Amélie"}},
		// "e" followed by a combining acute accent.
		{"amélie", []string{"Amélie"}},
		{"STRASSE", []string{"Straße"}},
		{"nothing", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(FilterByTitle(movies, tt.term)))
		})
	}
}
