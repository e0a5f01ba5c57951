// Package index blends content embeddings toward a voice's training
// features via nearest-neighbor retrieval.
package index

import (
	"fmt"
	"sort"

	"github.com/Player124413/PolGen-RVC/internal/runtime/tensor"
	"github.com/Player124413/PolGen-RVC/internal/safetensors"
)

// neighborCount is the number of nearest training vectors averaged per frame.
const neighborCount = 8

// Store holds the flat training-feature matrix of one voice. A nil Store is
// valid and blends as a no-op. Stores are immutable after Load and safe to
// share across conversions.
type Store struct {
	vectors []float32
	rows    int
	dim     int
}

// Load reads the feature matrix from a safetensors file holding a single
// [N, D] tensor named "vectors".
func Load(path string) (*Store, error) {
	st, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	defer st.Close()

	return FromStore(st)
}

// FromStore extracts the feature matrix from an already-open store.
func FromStore(st *safetensors.Store) (*Store, error) {
	t, err := st.Tensor("vectors")
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	if len(t.Shape) != 2 || t.Shape[0] <= 0 || t.Shape[1] <= 0 {
		return nil, fmt.Errorf("index: vectors must have shape [N, D], got %v", t.Shape)
	}

	return &Store{
		vectors: t.Data,
		rows:    int(t.Shape[0]),
		dim:     int(t.Shape[1]),
	}, nil
}

// Len reports the number of stored vectors.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}

	return s.rows
}

// Blend pulls each embedding frame toward the weighted average of its
// nearest stored vectors: out = (1-rate)*frame + rate*avg. Weights are the
// normalized inverse squared distances. rate 0, a nil or empty store, or a
// dimension mismatch with rate 0 leave the input untouched; the embedding is
// modified in place.
func (s *Store) Blend(emb *tensor.Tensor, rate float64) error {
	if rate == 0 || s.Len() == 0 {
		return nil
	}

	if rate < 0 || rate > 1 {
		return fmt.Errorf("index: blend rate %v out of [0, 1]", rate)
	}

	if emb == nil {
		return fmt.Errorf("index: nil embedding")
	}

	shape := emb.Shape()
	if len(shape) != 3 || int(shape[2]) != s.dim {
		return fmt.Errorf("index: embedding shape %v does not match stored dimension %d", shape, s.dim)
	}

	frames := int(shape[1])
	data := emb.RawData()
	avg := make([]float32, s.dim)

	for f := range frames {
		frame := data[f*s.dim : (f+1)*s.dim]
		s.weightedAverage(frame, avg)

		r := float32(rate)
		for i := range frame {
			frame[i] = (1-r)*frame[i] + r*avg[i]
		}
	}

	return nil
}

type neighbor struct {
	row  int
	dist float64
}

// weightedAverage fills out with the inverse-square-distance weighted mean
// of the k nearest stored vectors to query.
func (s *Store) weightedAverage(query []float32, out []float32) {
	k := min(neighborCount, s.rows)
	nearest := s.search(query, k)

	var total float64
	weights := make([]float64, k)

	for i, n := range nearest {
		w := 1 / (n.dist + 1e-9)
		weights[i] = w
		total += w
	}

	for i := range out {
		out[i] = 0
	}

	for i, n := range nearest {
		w := float32(weights[i] / total)
		row := s.vectors[n.row*s.dim : (n.row+1)*s.dim]

		for j := range out {
			out[j] += w * row[j]
		}
	}
}

// search returns the k rows closest to query by squared L2 distance.
func (s *Store) search(query []float32, k int) []neighbor {
	nearest := make([]neighbor, 0, k+1)

	for row := range s.rows {
		vec := s.vectors[row*s.dim : (row+1)*s.dim]

		var dist float64
		for i := range query {
			d := float64(query[i] - vec[i])
			dist += d * d
		}

		if len(nearest) == k && dist >= nearest[k-1].dist {
			continue
		}

		nearest = append(nearest, neighbor{row: row, dist: dist})
		sort.Slice(nearest, func(a, b int) bool { return nearest[a].dist < nearest[b].dist })

		if len(nearest) > k {
			nearest = nearest[:k]
		}
	}

	return nearest
}
