package kmeans

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/energyguard/pkg/detectors"
)

func TestClusterCount(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: 1, want: 1},
		{n: 2, want: 2},
		{n: 20, want: 2},
		{n: 50, want: 3},
		{n: 70, want: 4},
		{n: 100, want: 5},
		{n: 190, want: 10},
		{n: 5000, want: 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClusterCount(tt.n), "n=%d", tt.n)
	}
}

func TestFit(t *testing.T) {
	t.Run("empty data", func(t *testing.T) {
		assert.Error(t, New().Fit(nil))
	})

	t.Run("separated blobs", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		var data [][]float64
		for i := 0; i < 50; i++ {
			data = append(data, []float64{rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1})
			data = append(data, []float64{10 + rng.NormFloat64()*0.1, 10 + rng.NormFloat64()*0.1})
		}

		m := New(WithClusters(2), WithSeed(3))
		require.NoError(t, m.Fit(data))
		require.Len(t, m.Centroids(), 2)
		assert.Len(t, m.Labels(), len(data))
		assert.Less(t, m.Inertia(), 5.0)

		// neighbours share a label, the two blobs do not
		assert.NotEqual(t, m.Labels()[0], m.Labels()[1])
		assert.Equal(t, m.Labels()[0], m.Labels()[2])
	})

	t.Run("identical points", func(t *testing.T) {
		data := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
		m := New(WithClusters(3))
		require.NoError(t, m.Fit(data))

		dist, err := m.Distances(data)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 0, 0}, dist)
	})
}

func TestDistancesBeforeFit(t *testing.T) {
	_, err := New().Distances([][]float64{{1}})
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {
	t.Run("labels follow contamination", func(t *testing.T) {
		data := generateTestData(7, 200, 3)
		for _, c := range []float64{0.01, 0.05, 0.1, 0.25, 0.5} {
			scores, err := New(WithSeed(42)).Detect(data, c)
			require.NoError(t, err)

			flagged := 0
			for _, s := range scores {
				assert.GreaterOrEqual(t, s.Value, 0.0)
				assert.LessOrEqual(t, s.Value, 1.0)
				if s.IsAnomaly {
					flagged++
				}
			}
			assert.InDelta(t, c, float64(flagged)/float64(len(data)), 0.02, "contamination %v", c)
		}
	})

	t.Run("same seed same labels", func(t *testing.T) {
		data := generateTestData(9, 150, 4)
		a, err := New(WithSeed(11)).Detect(data, 0.1)
		require.NoError(t, err)
		b, err := New(WithSeed(11)).Detect(data, 0.1)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("equal distances score zero", func(t *testing.T) {
		data := [][]float64{{2}, {2}, {2}, {2}, {2}}
		scores, err := New().Detect(data, 0.2)
		require.NoError(t, err)
		for _, s := range scores {
			assert.Equal(t, detectors.Score{}, s)
		}
	})

	t.Run("too few rows", func(t *testing.T) {
		scores, err := New().Detect([][]float64{{4}}, 0.1)
		require.NoError(t, err)
		assert.Equal(t, []detectors.Score{{}}, scores)
	})

	t.Run("invalid contamination", func(t *testing.T) {
		_, err := New().Detect(generateTestData(1, 10, 2), 0)
		assert.ErrorIs(t, err, detectors.ErrInvalidContamination)
	})
}

func BenchmarkDetect(b *testing.B) {
	data := generateTestData(1, 2000, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		New().Detect(data, 0.1)
	}
}

func generateTestData(seed int64, n, features int) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rng.NormFloat64()
		}
	}
	return data
}
