package retrieve

import (
	"sort"

	"ragengine/internal/backends"
	"ragengine/internal/model"
)

// defaultRRFK is the standard Reciprocal Rank Fusion constant, used when
// no k is given.
const defaultRRFK = 60

type textFused struct {
	id       string
	chunk    model.SourceChunk
	ftRank   int
	ftScore  float64
	vecRank  int
	vecScore float64
	fused    float64
	hasFt    bool
	hasVec   bool
}

// fuseText combines the lexical and vector result lists for one variant
// via Reciprocal Rank Fusion with k=rrfK (defaultRRFK when rrfK <= 0),
// summed across the two modalities. Tie-break favors higher original dense score,
// then lexicographic chunk_id.
func fuseText(lex []backends.LexicalRanked, vec []model.SourceChunk, rrfK int) []textFused {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	byID := map[string]*textFused{}
	order := []string{}
	get := func(id string) *textFused {
		if tf, ok := byID[id]; ok {
			return tf
		}
		tf := &textFused{id: id}
		byID[id] = tf
		order = append(order, id)
		return tf
	}
	for i, r := range lex {
		tf := get(r.ID)
		tf.chunk = r.Chunk
		tf.hasFt = true
		tf.ftRank = i + 1
		tf.ftScore = r.Score
	}
	for i, c := range vec {
		tf := get(c.ChunkID)
		if tf.chunk.ChunkID == "" {
			tf.chunk = c
		}
		tf.hasVec = true
		tf.vecRank = i + 1
		tf.vecScore = c.Score
	}
	out := make([]textFused, 0, len(order))
	for _, id := range order {
		tf := byID[id]
		var contrib float64
		if tf.hasFt {
			contrib += 1.0 / float64(rrfK+tf.ftRank)
		}
		if tf.hasVec {
			contrib += 1.0 / float64(rrfK+tf.vecRank)
		}
		tf.fused = contrib
		out = append(out, *tf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].fused != out[j].fused {
			return out[i].fused > out[j].fused
		}
		if out[i].vecScore != out[j].vecScore {
			return out[i].vecScore > out[j].vecScore
		}
		return out[i].id < out[j].id
	})
	return out
}

// modalityScored is one candidate after per-modality min-max
// normalization.
type modalityScored struct {
	chunk    model.SourceChunk
	textNorm float64
	imgNorm  float64
	tblNorm  float64
	hasText  bool
	hasImg   bool
	hasTbl   bool
}

func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}

// Fuse runs min-max normalization + weighted combination across the
// fused text list, image, and table results, dedups by chunk_id keeping
// the max combined score, and returns top_k sorted desc.
func Fuse(textFusedList []textFused, image, table []model.SourceChunk, opt Options) []Result {
	alpha, beta, gamma := modalityWeights(opt)

	byID := map[string]*modalityScored{}
	order := []string{}
	get := func(id string, chunk model.SourceChunk) *modalityScored {
		if m, ok := byID[id]; ok {
			return m
		}
		m := &modalityScored{chunk: chunk}
		byID[id] = m
		order = append(order, id)
		return m
	}

	textScores := make([]float64, len(textFusedList))
	for i, tf := range textFusedList {
		textScores[i] = tf.fused
	}
	textNorm := minMaxNormalize(textScores)
	for i, tf := range textFusedList {
		m := get(tf.id, tf.chunk)
		m.hasText = true
		m.textNorm = textNorm[i]
	}

	imgScores := make([]float64, len(image))
	for i, c := range image {
		imgScores[i] = c.Score
	}
	imgNorm := minMaxNormalize(imgScores)
	for i, c := range image {
		m := get(c.ChunkID, c)
		m.hasImg = true
		m.imgNorm = imgNorm[i]
	}

	tblScores := make([]float64, len(table))
	for i, c := range table {
		tblScores[i] = c.Score
	}
	tblNorm := minMaxNormalize(tblScores)
	for i, c := range table {
		m := get(c.ChunkID, c)
		m.hasTbl = true
		m.tblNorm = tblNorm[i]
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		m := byID[id]
		var combined float64
		var parts int
		if m.hasText {
			combined += alpha * m.textNorm
			parts++
		}
		if m.hasImg {
			combined += beta * m.imgNorm
			parts++
		}
		if m.hasTbl {
			combined += gamma * m.tblNorm
			parts++
		}
		hasBoth := parts > 1
		if hasBoth {
			combined = averageAcross(m, alpha, beta, gamma)
		}
		chunk := m.chunk
		chunk.ChunkID = id
		chunk.Score = combined
		out = append(out, Result{
			Chunk:   chunk,
			HasBoth: hasBoth,
			Explanation: map[string]any{
				"fused": combined,
			},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Chunk.Score != out[j].Chunk.Score {
			return out[i].Chunk.Score > out[j].Chunk.Score
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})

	k := opt.TopK
	if k <= 0 {
		k = 10
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// averageAcross averages the weighted contributions actually present
// for a document appearing in more than one modality.
func averageAcross(m *modalityScored, alpha, beta, gamma float64) float64 {
	var sum float64
	var n int
	if m.hasText {
		sum += alpha * m.textNorm
		n++
	}
	if m.hasImg {
		sum += beta * m.imgNorm
		n++
	}
	if m.hasTbl {
		sum += gamma * m.tblNorm
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// modalityWeights resolves alpha/beta/gamma, defaulting to (0.6,0.2,0.2)
// and re-normalizing so the three always sum to 1.
func modalityWeights(opt Options) (float64, float64, float64) {
	a, b, c := opt.Alpha, opt.Beta, opt.Gamma
	if a <= 0 && b <= 0 && c <= 0 {
		a, b, c = 0.6, 0.2, 0.2
	}
	sum := a + b + c
	if sum <= 0 {
		return 0.6, 0.2, 0.2
	}
	return a / sum, b / sum, c / sum
}

// Diversify greedily picks k results, dividing each remaining score by a
// penalty that grows with the picks already taken from the same document
// and modality. A document whose scores stay ahead after the penalty can
// still fill several slots. It is an optional quality enhancement (off by default) generalizing this
// codebase's own greedy diversification pass.
func Diversify(results []Result, k int) []Result {
	if k <= 0 || len(results) <= k {
		return results
	}
	const lambdaDoc = 0.75
	const lambdaSrc = 0.25
	docCount := map[string]int{}
	srcCount := map[model.Modality]int{}
	remaining := append([]Result(nil), results...)
	out := make([]Result, 0, k)
	for len(out) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1.0
		for i, r := range remaining {
			denom := 1 + lambdaDoc*float64(docCount[r.Chunk.DocumentID]) + lambdaSrc*float64(srcCount[r.Chunk.Modality])
			adjusted := r.Chunk.Score / denom
			if adjusted > bestScore {
				bestScore = adjusted
				bestIdx = i
			}
		}
		chosen := remaining[bestIdx]
		out = append(out, chosen)
		docCount[chosen.Chunk.DocumentID]++
		srcCount[chosen.Chunk.Modality]++
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return out
}
