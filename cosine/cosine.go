// Package cosine implements an extraction strategy that clusters text
// chunks by TF-IDF cosine similarity, optionally keeping only chunks
// similar to a query.
package cosine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/fwojciec/crawlkit"
)

// Strategy defaults.
const (
	DefaultSimilarityThreshold = 0.3
	DefaultClusterThreshold    = 0.5
	DefaultWordCountThreshold  = 10
	DefaultTopK                = 3
)

var (
	_ crawlkit.ExtractionStrategy = (*Strategy)(nil)
	_ crawlkit.Fingerprinter      = (*Strategy)(nil)
)

// Cluster is a group of related chunks.
type Cluster struct {
	Index   int      `json:"index"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Strategy groups chunks into clusters of similar content.
type Strategy struct {
	// Query, when set, drops chunks whose similarity to it is below
	// SimilarityThreshold.
	Query               string
	SimilarityThreshold float64

	// ClusterThreshold is the minimum similarity between a chunk and a
	// cluster's centroid for the chunk to join it.
	ClusterThreshold float64

	// WordCountThreshold drops chunks with fewer words.
	WordCountThreshold int

	// TopK is the number of tags reported per cluster.
	TopK int
}

// NewStrategy returns a Strategy with default thresholds.
func NewStrategy(query string) *Strategy {
	return &Strategy{
		Query:               query,
		SimilarityThreshold: DefaultSimilarityThreshold,
		ClusterThreshold:    DefaultClusterThreshold,
		WordCountThreshold:  DefaultWordCountThreshold,
		TopK:                DefaultTopK,
	}
}

func (s *Strategy) Name() string {
	return "cosine"
}

func (s *Strategy) Fingerprint() string {
	return fmt.Sprintf("q=%q|sim=%g|cluster=%g|words=%d|top=%d",
		s.Query, s.SimilarityThreshold, s.ClusterThreshold, s.WordCountThreshold, s.TopK)
}

func (s *Strategy) InputFormat() crawlkit.InputFormat {
	return crawlkit.InputText
}

// Extract returns the clusters in order of their first chunk.
func (s *Strategy) Extract(ctx context.Context, _ string, chunks []string) (any, error) {
	var docs []string
	var terms [][]string
	for _, c := range chunks {
		if len(strings.Fields(c)) < s.WordCountThreshold {
			continue
		}
		docs = append(docs, c)
		terms = append(terms, tokenize(c))
	}
	if len(docs) == 0 {
		return []Cluster{}, nil
	}

	idf := inverseDocumentFrequency(terms)
	vectors := make([]vector, len(docs))
	for i, t := range terms {
		vectors[i] = weigh(t, idf)
	}

	if s.Query != "" {
		q := weigh(tokenize(s.Query), idf)
		var kept []int
		for i, v := range vectors {
			if similarity(q, v) >= s.SimilarityThreshold {
				kept = append(kept, i)
			}
		}
		docs, vectors = pick(docs, kept), pick(vectors, kept)
	}

	var groups []*group
	for i, v := range vectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var best *group
		bestSim := s.ClusterThreshold
		for _, g := range groups {
			if sim := similarity(g.centroid(), v); sim >= bestSim {
				best, bestSim = g, sim
			}
		}
		if best == nil {
			best = &group{sum: vector{}}
			groups = append(groups, best)
		}
		best.add(i, v)
	}

	clusters := make([]Cluster, len(groups))
	for i, g := range groups {
		parts := make([]string, len(g.members))
		for j, m := range g.members {
			parts[j] = docs[m]
		}
		clusters[i] = Cluster{
			Index:   i,
			Content: strings.Join(parts, "\n\n"),
			Tags:    g.centroid().top(s.TopK),
		}
	}
	return clusters, nil
}

type vector map[string]float64

func (v vector) norm() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// top returns the k heaviest terms, ties broken alphabetically.
func (v vector) top(k int) []string {
	terms := make([]string, 0, len(v))
	for t := range v {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if v[terms[i]] != v[terms[j]] {
			return v[terms[i]] > v[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > k {
		terms = terms[:k]
	}
	return terms
}

func similarity(a, b vector) float64 {
	na, nb := a.norm(), b.norm()
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for t, w := range a {
		dot += w * b[t]
	}
	return dot / (na * nb)
}

type group struct {
	members []int
	sum     vector
}

func (g *group) add(i int, v vector) {
	g.members = append(g.members, i)
	for t, w := range v {
		g.sum[t] += w
	}
}

func (g *group) centroid() vector {
	c := make(vector, len(g.sum))
	n := float64(len(g.members))
	for t, w := range g.sum {
		c[t] = w / n
	}
	return c
}

func inverseDocumentFrequency(docs [][]string) map[string]float64 {
	df := make(map[string]int)
	for _, terms := range docs {
		seen := make(map[string]bool)
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for t, d := range df {
		idf[t] = math.Log((1+n)/(1+float64(d))) + 1
	}
	return idf
}

// weigh builds a TF-IDF vector. Terms unknown to idf get the weight of a
// term seen in no document.
func weigh(terms []string, idf map[string]float64) vector {
	v := make(vector)
	for _, t := range terms {
		v[t]++
	}
	for t, tf := range v {
		w, ok := idf[t]
		if !ok {
			w = 1
		}
		v[t] = tf * w
	}
	return v
}

func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := words[:0]
	for _, w := range words {
		if len(w) > 2 && !stopwords[w] {
			terms = append(terms, w)
		}
	}
	return terms
}

func pick[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "any": true, "can": true, "has": true, "have": true,
	"was": true, "were": true, "this": true, "that": true, "with": true, "from": true,
	"they": true, "will": true, "would": true, "there": true, "their": true, "what": true,
	"when": true, "which": true, "into": true, "than": true, "then": true, "them": true,
	"these": true, "those": true, "its": true, "our": true, "your": true, "also": true,
}
