package core

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/textnorm"
)

// MaxCandidates is the number of suggestions attached to an unmatched entity.
const MaxCandidates = 3

// FindUnmatched groups eligible records by referenced code and returns the
// codes with no entity of kind in the snapshot, in first-seen order.
// OccurrenceCount counts every eligible row referencing the code.
func FindUnmatched(records []CandidateRecord, snap *Snapshot, kind catalog.Kind) []UnmatchedEntity {
	if kind == "" {
		return nil
	}

	var out []UnmatchedEntity
	index := make(map[string]int)
	for i := range records {
		rec := &records[i]
		if !rec.Eligible() {
			continue
		}
		key := textnorm.Key(rec.Record.Code)
		if key == "" || snap.ByCode(kind, rec.Record.Code) != nil {
			continue
		}

		if j, ok := index[key]; ok {
			out[j].OccurrenceCount++
			if out[j].ExternalName == "" {
				out[j].ExternalName = rec.Record.Name
			}
			continue
		}
		index[key] = len(out)
		out = append(out, UnmatchedEntity{
			ExternalCode:    rec.Record.Code,
			ExternalName:    rec.Record.Name,
			OccurrenceCount: 1,
		})
	}

	for i := range out {
		out[i].Candidates = Suggest(out[i], snap.Entities(kind))
	}
	return out
}

// Suggest ranks catalog entities that look like u, best first. Codes and
// names are matched as fuzzy subsequences in either direction.
func Suggest(u UnmatchedEntity, entities []catalog.Entity) []catalog.Entity {
	if len(entities) == 0 {
		return nil
	}

	codes := make([]string, len(entities))
	names := make([]string, len(entities))
	for i, e := range entities {
		codes[i] = e.Code
		names[i] = e.Name
	}

	best := make(map[int]int) // entity index -> lowest distance
	consider := func(ranks fuzzy.Ranks) {
		for _, r := range ranks {
			if d, ok := best[r.OriginalIndex]; !ok || r.Distance < d {
				best[r.OriginalIndex] = r.Distance
			}
		}
	}

	if u.ExternalCode != "" {
		consider(fuzzy.RankFindNormalizedFold(u.ExternalCode, codes))
	}
	if u.ExternalName != "" {
		consider(fuzzy.RankFindNormalizedFold(u.ExternalName, names))
		for i, n := range names {
			if n != "" && fuzzy.MatchNormalizedFold(n, u.ExternalName) {
				if d := fuzzy.LevenshteinDistance(n, u.ExternalName); !hasBetter(best, i, d) {
					best[i] = d
				}
			}
		}
	}

	idx := make([]int, 0, len(best))
	for i := range best {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if best[idx[a]] != best[idx[b]] {
			return best[idx[a]] < best[idx[b]]
		}
		return idx[a] < idx[b]
	})
	if len(idx) > MaxCandidates {
		idx = idx[:MaxCandidates]
	}

	out := make([]catalog.Entity, len(idx))
	for i, j := range idx {
		out[i] = entities[j]
	}
	return out
}

func hasBetter(best map[int]int, i, d int) bool {
	cur, ok := best[i]
	return ok && cur <= d
}

// resolutionKey is the map key for a referenced code.
func resolutionKey(code string) string {
	return textnorm.Key(code)
}

// CheckResolutions returns an *UnresolvedError naming every unmatched code
// without a usable resolution. A map_existing choice must point at an
// entity of kind in the snapshot.
func CheckResolutions(unmatched []UnmatchedEntity, resolutions map[string]Resolution, snap *Snapshot, kind catalog.Kind) error {
	var missing []string
	for _, u := range unmatched {
		res, ok := resolutions[resolutionKey(u.ExternalCode)]
		if !ok || !validResolution(res, snap, kind) {
			missing = append(missing, u.ExternalCode)
		}
	}
	if len(missing) > 0 {
		return &UnresolvedError{Codes: missing}
	}
	return nil
}

func validResolution(res Resolution, snap *Snapshot, kind catalog.Kind) bool {
	switch res.Action {
	case ResolveCreateNew:
		return true
	case ResolveMapExisting:
		return res.EntityID != "" && snap.ByID(kind, res.EntityID) != nil
	}
	return false
}
