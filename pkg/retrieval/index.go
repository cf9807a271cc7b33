package retrieval

import (
	"math"
	"sort"
)

// DefaultMinScore is the cosine similarity floor below which results are dropped.
const DefaultMinScore = 0.05

const snippetLines = 5

// Result is one ranked search hit.
type Result struct {
	ChunkID   string  `json:"chunk_id"`
	FileID    string  `json:"file_id"`
	FilePath  string  `json:"file_path"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
}

// sparse is an L2-normalized term → weight vector. Terms are kept sorted so
// floating-point sums are evaluated in a fixed order across rebuilds.
type sparse struct {
	terms   []string
	weights map[string]float64
}

func (s sparse) size() int { return len(s.terms) }

// Index is an immutable TF-IDF snapshot over a chunk corpus. It is never
// updated in place; a rebuild produces a new Index.
type Index struct {
	chunks   []Chunk
	vectors  []sparse
	idf      map[string]float64
	vocab    []string
	minScore float64
}

// Build computes the TF-IDF vectors for chunks. idf(t) = ln((N+1)/(df(t)+1)) + 1.
func Build(chunks []Chunk, minScore float64) *Index {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	ix := &Index{
		chunks:   chunks,
		vectors:  make([]sparse, len(chunks)),
		idf:      make(map[string]float64),
		minScore: minScore,
	}

	termFreqs := make([]map[string]int, len(chunks))
	df := make(map[string]int)
	for i := range chunks {
		tf := make(map[string]int)
		for _, tok := range Tokenize(chunks[i].Content) {
			tf[tok]++
		}
		termFreqs[i] = tf
		for term := range tf {
			df[term]++
		}
	}

	n := float64(len(chunks))
	for term, d := range df {
		ix.idf[term] = math.Log((n+1)/(float64(d)+1)) + 1
		ix.vocab = append(ix.vocab, term)
	}
	sort.Strings(ix.vocab)

	for i, tf := range termFreqs {
		ix.vectors[i] = ix.weigh(tf)
	}
	return ix
}

// weigh turns raw term counts into an L2-normalized tf × idf vector.
// Terms outside the vocabulary get the idf of a zero-document-frequency term.
func (ix *Index) weigh(tf map[string]int) sparse {
	vec := sparse{
		terms:   make([]string, 0, len(tf)),
		weights: make(map[string]float64, len(tf)),
	}
	for term := range tf {
		vec.terms = append(vec.terms, term)
	}
	sort.Strings(vec.terms)

	unseen := math.Log(float64(len(ix.chunks))+1) + 1
	var norm float64
	for _, term := range vec.terms {
		idf, ok := ix.idf[term]
		if !ok {
			idf = unseen
		}
		w := float64(tf[term]) * idf
		vec.weights[term] = w
		norm += w * w
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for _, term := range vec.terms {
		vec.weights[term] /= norm
	}
	return vec
}

// vectorize applies the chunk weighting to free text.
func (ix *Index) vectorize(text string) sparse {
	tf := make(map[string]int)
	for _, tok := range Tokenize(text) {
		tf[tok]++
	}
	return ix.weigh(tf)
}

// cosine computes the dot product of two normalized vectors by walking the smaller one.
func cosine(a, b sparse) float64 {
	if a.size() > b.size() {
		a, b = b, a
	}
	var dot float64
	for _, term := range a.terms {
		if other, ok := b.weights[term]; ok {
			dot += a.weights[term] * other
		}
	}
	return dot
}

// Search ranks chunks against query. At most limit results are returned,
// highest score first; equal scores keep corpus order.
func (ix *Index) Search(query string, limit int) []Result {
	if ix == nil || len(ix.chunks) == 0 || limit <= 0 {
		return nil
	}
	q := ix.vectorize(query)
	if q.size() == 0 {
		return nil
	}

	var results []Result
	for i := range ix.chunks {
		score := cosine(q, ix.vectors[i])
		if score < ix.minScore {
			continue
		}
		c := &ix.chunks[i]
		results = append(results, Result{
			ChunkID:   c.ID,
			FileID:    c.FileID,
			FilePath:  c.FilePath,
			Score:     score,
			Snippet:   snippet(c.Content, snippetLines),
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunks)
}

// Vocabulary returns the sorted indexed terms.
func (ix *Index) Vocabulary() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, len(ix.vocab))
	copy(out, ix.vocab)
	return out
}

// IDF returns the inverse document frequency of term.
func (ix *Index) IDF(term string) (float64, bool) {
	if ix == nil {
		return 0, false
	}
	v, ok := ix.idf[term]
	return v, ok
}

// Chunks returns a copy of the indexed chunks in corpus order.
func (ix *Index) Chunks() []Chunk {
	if ix == nil {
		return nil
	}
	out := make([]Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}
