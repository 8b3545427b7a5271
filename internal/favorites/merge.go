package favorites

import "github.com/alexjbarnes/reel-sync/internal/models"

// Merge reconciles a local and a remote favorites list. The result is the
// remote list in its stored order followed by the local records whose id
// the remote list does not contain, in local order. Ids are compared in
// string form, so a record stored with a numeric id in one list and a
// string id in the other is the same entry. When both lists hold an id,
// the remote copy wins. Duplicates within either list are dropped, first
// occurrence kept.
//
// localOnly is the subset of merged that came from local and needs to be
// pushed to the remote store.
func Merge(local, remote []models.FavoriteRecord) (merged, localOnly []models.FavoriteRecord) {
	seen := make(map[string]struct{}, len(local)+len(remote))
	merged = make([]models.FavoriteRecord, 0, len(local)+len(remote))

	for _, r := range remote {
		if _, dup := seen[r.Key()]; dup {
			continue
		}

		seen[r.Key()] = struct{}{}
		merged = append(merged, r)
	}

	for _, l := range local {
		if _, dup := seen[l.Key()]; dup {
			continue
		}

		seen[l.Key()] = struct{}{}
		merged = append(merged, l)
		localOnly = append(localOnly, l)
	}

	return merged, localOnly
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(records []models.FavoriteRecord) []models.FavoriteRecord {
	merged, _ := Merge(records, nil)
	return merged
}

func indexOf(records []models.FavoriteRecord, key string) int {
	for i, r := range records {
		if r.Key() == key {
			return i
		}
	}

	return -1
}

func without(records []models.FavoriteRecord, key string) []models.FavoriteRecord {
	out := make([]models.FavoriteRecord, 0, len(records))
	for _, r := range records {
		if r.Key() != key {
			out = append(out, r)
		}
	}

	return out
}
