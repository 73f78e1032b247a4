package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeVector(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	blob := serializeVector(in)
	assert.Len(t, blob, len(in)*4)
	assert.Equal(t, in, deserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSortCandidates(t *testing.T) {
	c := []candidate{{"b", 0.5}, {"a", 0.9}, {"c", 0.5}}
	sortCandidates(c)
	assert.Equal(t, []candidate{{"a", 0.9}, {"b", 0.5}, {"c", 0.5}}, c)
}
