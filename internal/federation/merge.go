package federation

import "sort"

// Scored is one candidate result from a single source.
type Scored struct {
	ID      string
	Score   float64
	Payload any
}

// Merge combines local results with per-remote result sets. The combined
// score of a candidate is local_score + sum(remote_score_i * weight_i) over
// sources that returned the same id; results only seen on a remote enter
// with their weighted score alone. Output is ranked descending.
func Merge(local []Scored, remotes [][]Scored, weights []float64) []Scored {
	type entry struct {
		score   float64
		payload any
	}
	combined := make(map[string]*entry)
	order := make([]string, 0, len(local))

	for _, res := range local {
		if _, ok := combined[res.ID]; !ok {
			order = append(order, res.ID)
		}
		combined[res.ID] = &entry{score: res.Score, payload: res.Payload}
	}

	for i, results := range remotes {
		if i >= len(weights) {
			break
		}
		w := weights[i]
		for _, res := range results {
			if e, ok := combined[res.ID]; ok {
				e.score += res.Score * w
				continue
			}
			order = append(order, res.ID)
			combined[res.ID] = &entry{score: res.Score * w, payload: res.Payload}
		}
	}

	out := make([]Scored, 0, len(order))
	for _, id := range order {
		e := combined[id]
		out = append(out, Scored{ID: id, Score: e.score, Payload: e.payload})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
