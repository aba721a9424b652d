package registry

import (
	"sort"
	"strings"
)

const maxSuggestions = 3

// suggestNames ranks near-miss candidates for a failed lookup. Candidates
// containing the query's characters in order score above pure edit
// distance; the result is display-only and never affects resolution.
func suggestNames(query string, names []string) []string {
	type scored struct {
		name string
		sub  int
		dist int
	}
	queryLower := strings.ToLower(query)
	var ranked []scored
	for _, name := range names {
		nameLower := strings.ToLower(name)
		dist := editDistance(queryLower, nameLower)
		sub := subsequenceScore(queryLower, nameLower)
		if sub == 0 && dist*2 > len(query)+len(name) {
			continue
		}
		ranked = append(ranked, scored{name: name, sub: sub, dist: dist})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sub != ranked[j].sub {
			return ranked[i].sub > ranked[j].sub
		}
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].name < ranked[j].name
	})
	var out []string
	for _, s := range ranked {
		out = append(out, s.name)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// subsequenceScore rewards candidates containing every query character in
// order, with bonuses for consecutive runs and word-boundary hits. Returns
// 0 when the query is not a subsequence of the candidate.
func subsequenceScore(query, candidate string) int {
	if query == "" {
		return 0
	}
	score := 0
	lastMatch := -2
	run := 0
	pos := 0
	for _, qc := range query {
		found := false
		for pos < len(candidate) {
			cc := rune(candidate[pos])
			if qc == cc {
				if pos == lastMatch+1 {
					run++
					score += 5 + run
				} else {
					run = 0
					score++
				}
				if pos == 0 {
					score += 10
				} else if prev := candidate[pos-1]; prev == '-' || prev == '_' || prev == '/' {
					score += 5
				}
				lastMatch = pos
				pos++
				found = true
				break
			}
			pos++
		}
		if !found {
			return 0
		}
	}
	return score
}

func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
