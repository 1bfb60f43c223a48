package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/ndb/internal/errs"
)

func assertClose(t *testing.T, got, want float32, eps float32) {
	t.Helper()
	assert.LessOrEqual(t, float32(math.Abs(float64(got-want))), eps)
}

func TestDotProductBasic(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	assertClose(t, Dot(a, b), 70.0, 1e-5)
	assertClose(t, Scalar.Dot(a, b), 70.0, 1e-5)
}

func TestCosineSameVector(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	assertClose(t, Cos(a, a), 1.0, 1e-5)
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assertClose(t, Cos(a, b), 0.0, 1e-6)
}

func TestCosineZeroVector(t *testing.T) {
	a := []float32{1, 2, 3}
	z := []float32{0, 0, 0}
	assert.Equal(t, float32(0), Cos(a, z))
}

func TestCosineBounded(t *testing.T) {
	a := []float32{3, -1, 7, 2}
	b := []float32{-2, 5, 0.5, 9}
	c := Cos(a, b)
	assert.GreaterOrEqual(t, c, float32(-1.000001))
	assert.LessOrEqual(t, c, float32(1.000001))
}

func TestEuclideanBasic(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 8}
	want := float32(math.Sqrt(9 + 16 + 25))
	assertClose(t, Euclid(a, b), want, 1e-4)
}

func TestEuclideanNonNegativeAndSymmetric(t *testing.T) {
	a := []float32{1, -2, 3.5}
	b := []float32{-4, 6, 8.25}
	ab := Euclid(a, b)
	ba := Euclid(b, a)
	assert.GreaterOrEqual(t, ab, float32(0))
	assertClose(t, ab, ba, 1e-5)
}

func TestSimdScalarAgreement(t *testing.T) {
	a := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	b := []float32{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	assertClose(t, Dot(a, b), Scalar.Dot(a, b), 1e-3)
	assertClose(t, Cos(a, b), Scalar.Cos(a, b), 1e-3)
	assertClose(t, Euclid(a, b), Scalar.Euclid(a, b), 1e-3)
}

func TestDimensionMismatch(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2}
	_, err := DotProduct.Compute(a, b)
	require.Error(t, err)
	k, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWrongDimension, k)
}

func TestHigherIsBetter(t *testing.T) {
	assert.True(t, DotProduct.HigherIsBetter())
	assert.True(t, Cosine.HigherIsBetter())
	assert.False(t, Euclidean.HigherIsBetter())
}
