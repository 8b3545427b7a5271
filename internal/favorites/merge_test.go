package favorites

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fav(id int64, title string) models.FavoriteRecord {
	return models.FavoriteRecord{ID: models.MovieID(id), Title: title, Genres: []models.Genre{}}
}

func keys(records []models.FavoriteRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key()
	}

	return out
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name          string
		local         []models.FavoriteRecord
		remote        []models.FavoriteRecord
		wantMerged    []models.FavoriteRecord
		wantLocalOnly []models.FavoriteRecord
	}{
		{
			name:       "both empty",
			wantMerged: []models.FavoriteRecord{},
		},
		{
			name:       "remote only",
			remote:     []models.FavoriteRecord{fav(1, "Alien")},
			wantMerged: []models.FavoriteRecord{fav(1, "Alien")},
		},
		{
			name:          "local only",
			local:         []models.FavoriteRecord{fav(2, "Brazil")},
			wantMerged:    []models.FavoriteRecord{fav(2, "Brazil")},
			wantLocalOnly: []models.FavoriteRecord{fav(2, "Brazil")},
		},
		{
			name:       "remote wins on shared id",
			local:      []models.FavoriteRecord{fav(3, "A")},
			remote:     []models.FavoriteRecord{fav(3, "B")},
			wantMerged: []models.FavoriteRecord{fav(3, "B")},
		},
		{
			name:          "remote first then local only in local order",
			local:         []models.FavoriteRecord{fav(5, "E"), fav(1, "local A"), fav(4, "D")},
			remote:        []models.FavoriteRecord{fav(1, "A"), fav(2, "B")},
			wantMerged:    []models.FavoriteRecord{fav(1, "A"), fav(2, "B"), fav(5, "E"), fav(4, "D")},
			wantLocalOnly: []models.FavoriteRecord{fav(5, "E"), fav(4, "D")},
		},
		{
			name:          "duplicates inside local collapse",
			local:         []models.FavoriteRecord{fav(7, "first"), fav(7, "second")},
			wantMerged:    []models.FavoriteRecord{fav(7, "first")},
			wantLocalOnly: []models.FavoriteRecord{fav(7, "first")},
		},
		{
			name:       "duplicates inside remote collapse to newest",
			remote:     []models.FavoriteRecord{fav(8, "newer"), fav(8, "older")},
			wantMerged: []models.FavoriteRecord{fav(8, "newer")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, localOnly := Merge(tt.local, tt.remote)
			assert.Equal(t, tt.wantMerged, merged)
			assert.Equal(t, tt.wantLocalOnly, localOnly)
		})
	}
}

// randomList builds up to n records with ids drawn from a small range so
// local and remote lists overlap often.
func randomList(r *rand.Rand, n int, tag string) []models.FavoriteRecord {
	count := r.IntN(n + 1)
	out := make([]models.FavoriteRecord, 0, count)

	for i := 0; i < count; i++ {
		id := r.Int64N(12) + 1
		out = append(out, fav(id, fmt.Sprintf("%s-%d", tag, id)))
	}

	return dedupe(out)
}

func TestMerge_UnionProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		local := randomList(r, 8, "local")
		remote := randomList(r, 8, "remote")

		merged, _ := Merge(local, remote)

		want := map[string]bool{}
		for _, rec := range append(append([]models.FavoriteRecord{}, local...), remote...) {
			want[rec.Key()] = true
		}

		got := map[string]bool{}
		for _, rec := range merged {
			require.False(t, got[rec.Key()], "id %s appears twice", rec.Key())
			got[rec.Key()] = true
		}

		require.Equal(t, want, got)
	}
}

func TestMerge_PrecedenceProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 500; i++ {
		local := randomList(r, 8, "local")
		remote := randomList(r, 8, "remote")

		merged, _ := Merge(local, remote)

		byKey := map[string]models.FavoriteRecord{}
		for _, rec := range merged {
			byKey[rec.Key()] = rec
		}

		for _, rec := range remote {
			require.Equal(t, rec, byKey[rec.Key()])
		}
	}
}

func TestMerge_IdempotentAgainstSameRemote(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))

	for i := 0; i < 500; i++ {
		local := randomList(r, 8, "local")
		remote := randomList(r, 8, "remote")

		first, _ := Merge(local, remote)
		second, _ := Merge(first, remote)

		require.Equal(t, first, second)
	}
}

func TestMerge_LocalOnlyNeverInRemote(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))

	for i := 0; i < 200; i++ {
		local := randomList(r, 8, "local")
		remote := randomList(r, 8, "remote")

		_, localOnly := Merge(local, remote)
		for _, rec := range localOnly {
			assert.Negative(t, indexOf(remote, rec.Key()))
		}
	}
}

func TestDedupe_KeepsFirst(t *testing.T) {
	got := dedupe([]models.FavoriteRecord{fav(1, "a"), fav(2, "b"), fav(1, "c")})
	assert.Equal(t, []string{"1", "2"}, keys(got))
	assert.Equal(t, "a", got[0].Title)
}

func TestWithout_RemovesAllMatches(t *testing.T) {
	got := without([]models.FavoriteRecord{fav(1, "a"), fav(2, "b"), fav(1, "c")}, "1")
	assert.Equal(t, []string{"2"}, keys(got))
}
