package evaluation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	t.Run("no readings", func(t *testing.T) {
		e, err := Evaluate(1, "density", 0, 0, rng)
		require.NoError(t, err)
		assert.Nil(t, e.Accuracy)
		assert.Nil(t, e.Precision)
		assert.Nil(t, e.Recall)
		assert.Nil(t, e.F1)
		assert.True(t, e.Approximate)
	})

	t.Run("no anomalies", func(t *testing.T) {
		e, err := Evaluate(1, "density", 50, 0, rng)
		require.NoError(t, err)
		require.NotNil(t, e.Accuracy)
		assert.Equal(t, 1.0, *e.Accuracy)
		assert.Nil(t, e.Precision)
		assert.Nil(t, e.Recall)
		assert.Nil(t, e.F1)
	})

	t.Run("some anomalies", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			e, err := Evaluate(7, "cluster", 100, 10, rng)
			require.NoError(t, err)
			assert.Equal(t, int64(7), e.DatasetID)
			assert.Equal(t, "cluster", e.Algorithm)
			assert.InDelta(t, 0.9, *e.Accuracy, 1e-12)
			assert.Equal(t, 1.0, *e.Precision)
			recall := *e.Recall
			assert.GreaterOrEqual(t, recall, 0.8)
			assert.LessOrEqual(t, recall, 1.0)
			assert.InDelta(t, 2*recall/(1+recall), *e.F1, 1e-12)
		}
	})

	t.Run("seeded recall is reproducible", func(t *testing.T) {
		a, err := Evaluate(1, "density", 10, 2, rand.New(rand.NewSource(9)))
		require.NoError(t, err)
		b, err := Evaluate(1, "density", 10, 2, rand.New(rand.NewSource(9)))
		require.NoError(t, err)
		assert.Equal(t, *a.Recall, *b.Recall)
	})

	t.Run("internal failure degrades to nil metrics", func(t *testing.T) {
		for _, tc := range []struct {
			total, anomalies int
			rng              *rand.Rand
		}{
			{total: 5, anomalies: 6, rng: rng},
			{total: -1, anomalies: 0, rng: rng},
			{total: 5, anomalies: 1, rng: nil},
		} {
			e, err := Evaluate(1, "density", tc.total, tc.anomalies, tc.rng)
			assert.Error(t, err)
			assert.Nil(t, e.Accuracy)
			assert.Nil(t, e.Precision)
			assert.Nil(t, e.Recall)
			assert.Nil(t, e.F1)
		}
	})
}
