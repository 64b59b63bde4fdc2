package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
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
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	for _, temp := range []float64{0, 0.1, 1, 5} {
		probs := Softmax([]float64{0.9, 0.2, -0.4, 0.2}, temp)
		require.Len(t, probs, 4)
		var sum float64
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "temperature %v", temp)
	}
}

func TestSoftmaxTemperatureSharpens(t *testing.T) {
	flat := Softmax([]float64{0.5, 0.3}, 1)
	sharp := Softmax([]float64{0.5, 0.3}, 0.1)
	assert.Greater(t, sharp[0], flat[0])
	assert.InDelta(t, 1/(1+math.Exp(-2)), sharp[0], 1e-9)
}

func TestSoftmaxLargeScoresStayFinite(t *testing.T) {
	probs := Softmax([]float64{1000, 999}, 1)
	assert.False(t, math.IsNaN(probs[0]))
	assert.Greater(t, probs[0], probs[1])
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestMeanMax(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Max(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 3.0, Max([]float64{1, 3, 2}))
	assert.Equal(t, -1.0, Max([]float64{-3, -1, -2}))
}
