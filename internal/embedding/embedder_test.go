package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-9)
	assert.InDelta(t, 0.8, v[1], 1e-9)

	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := Normalize([]float64{0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0}, v)
	assert.True(t, IsZero(v))
	assert.False(t, IsZero([]float64{0, 1e-12}))
}
