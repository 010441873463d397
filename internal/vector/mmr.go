package vector

// MMR selects k of the candidates by maximal marginal relevance. relevance[i] is the relevance
// of cands[i] to the query. Each step picks the candidate maximising
//
//	lambda*relevance - (1-lambda)*max(cosine to already selected)
//
// so lambda=1 is plain relevance ranking and lambda=0 is maximal diversity. The first pick is the
// most relevant candidate. Ties go to the earlier candidate.
func MMR(cands []Candidate, relevance []float64, k int, lambda float64) []Candidate {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	if k > len(cands) {
		k = len(cands)
	}
	selected := make([]int, 0, k)
	used := make([]bool, len(cands))
	// maxSim[i] is the highest similarity of cands[i] to any selected candidate.
	maxSim := make([]float64, len(cands))

	for len(selected) < k {
		best, bestScore := -1, 0.0
		for i := range cands {
			if used[i] {
				continue
			}
			score := relevance[i]
			if len(selected) > 0 {
				score = lambda*relevance[i] - (1-lambda)*maxSim[i]
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
		for i := range cands {
			if used[i] {
				continue
			}
			if s := Cosine(cands[i].Vector, cands[best].Vector); len(selected) == 1 || s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	out := make([]Candidate, len(selected))
	for i, idx := range selected {
		out[i] = cands[idx]
		out[i].Score = relevance[idx]
	}
	return out
}
