// Package kmeans implements cluster-distance anomaly detection on top of
// k-means clustering.
package kmeans

import (
	"errors"
	"math"
	"math/rand"

	"github.com/hed1ad/energyguard/pkg/detectors"
)

// KMeans partitions samples into k clusters with Lloyd's algorithm and
// k-means++ seeding. An instance is owned by a single detection run.
type KMeans struct {
	// Configuration
	k         int // 0 picks the count from the sample size
	maxIter   int
	nInit     int
	tolerance float64
	rng       *rand.Rand

	// Trained model
	centroids [][]float64
	labels    []int
	inertia   float64
	trained   bool
}

// Option configures a KMeans.
type Option func(*KMeans)

// WithClusters fixes the number of clusters.
func WithClusters(k int) Option {
	return func(m *KMeans) {
		m.k = k
	}
}

// WithMaxIterations bounds the Lloyd iterations per initialization.
func WithMaxIterations(n int) Option {
	return func(m *KMeans) {
		m.maxIter = n
	}
}

// WithInit sets how many seeded initializations are tried; the lowest
// inertia wins.
func WithInit(n int) Option {
	return func(m *KMeans) {
		m.nInit = n
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(m *KMeans) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a new KMeans with the given options.
func New(opts ...Option) *KMeans {
	m := &KMeans{
		maxIter:   300,
		nInit:     10,
		tolerance: 1e-4,
		rng:       rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ClusterCount returns round(n/20) clamped to [2, 10], and never more than n.
func ClusterCount(n int) int {
	k := int(math.Round(float64(n) / 20))
	k = max(2, min(10, k))
	return min(k, n)
}

// Fit clusters the data.
func (m *KMeans) Fit(data [][]float64) error {
	if len(data) == 0 {
		return errors.New("empty training data")
	}

	k := m.k
	if k <= 0 {
		k = ClusterCount(len(data))
	}
	k = min(k, len(data))

	m.inertia = math.Inf(1)
	for i := 0; i < max(m.nInit, 1); i++ {
		centroids, labels, inertia := m.lloyd(data, m.seedCentroids(data, k))
		if inertia < m.inertia {
			m.centroids, m.labels, m.inertia = centroids, labels, inertia
		}
	}
	if m.centroids == nil {
		return errors.New("clustering produced no finite inertia")
	}

	m.trained = true
	return nil
}

// seedCentroids picks k initial centroids with k-means++.
func (m *KMeans) seedCentroids(data [][]float64, k int) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(data[m.rng.Intn(len(data))]))

	dist := make([]float64, len(data))
	for len(centroids) < k {
		var total float64
		for i, row := range data {
			dist[i] = math.Inf(1)
			for _, c := range centroids {
				dist[i] = min(dist[i], squaredDistance(row, c))
			}
			total += dist[i]
		}

		// All remaining points coincide with a centroid.
		if total == 0 {
			centroids = append(centroids, clone(data[m.rng.Intn(len(data))]))
			continue
		}

		target := m.rng.Float64() * total
		pick := len(data) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, clone(data[pick]))
	}

	return centroids
}

// lloyd refines centroids until they stop moving or maxIter is reached.
func (m *KMeans) lloyd(data [][]float64, centroids [][]float64) ([][]float64, []int, float64) {
	nFeatures := len(data[0])
	labels := make([]int, len(data))

	for iter := 0; iter < m.maxIter; iter++ {
		// Assignment step
		for i, row := range data {
			labels[i] = nearest(row, centroids)
		}

		// Update step
		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for j := range sums {
			sums[j] = make([]float64, nFeatures)
		}
		for i, row := range data {
			counts[labels[i]]++
			for f, v := range row {
				sums[labels[i]][f] += v
			}
		}

		var shift float64
		for j := range centroids {
			// Empty clusters keep their previous centroid
			if counts[j] == 0 {
				continue
			}
			for f := range sums[j] {
				sums[j][f] /= float64(counts[j])
			}
			shift += squaredDistance(sums[j], centroids[j])
			centroids[j] = sums[j]
		}

		if shift <= m.tolerance {
			break
		}
	}

	var inertia float64
	for i, row := range data {
		labels[i] = nearest(row, centroids)
		inertia += squaredDistance(row, centroids[labels[i]])
	}

	return centroids, labels, inertia
}

// Distances returns the Euclidean distance of each sample to its nearest centroid.
func (m *KMeans) Distances(data [][]float64) ([]float64, error) {
	if !m.trained {
		return nil, errors.New("model not trained")
	}

	out := make([]float64, len(data))
	for i, row := range data {
		out[i] = math.Sqrt(squaredDistance(row, m.centroids[nearest(row, m.centroids)]))
	}
	return out, nil
}

// Centroids returns the fitted cluster centers.
func (m *KMeans) Centroids() [][]float64 {
	return m.centroids
}

// Labels returns the cluster index of each training sample.
func (m *KMeans) Labels() []int {
	return m.labels
}

// Inertia returns the sum of squared distances of samples to their centroid.
func (m *KMeans) Inertia() float64 {
	return m.inertia
}

// Detect clusters the data and labels rows whose centroid distance exceeds
// the (1-contamination) percentile. Scores are min-max normalized distances.
func (m *KMeans) Detect(data [][]float64, contamination float64) ([]detectors.Score, error) {
	if err := detectors.ValidateContamination(contamination); err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return make([]detectors.Score, len(data)), nil
	}

	if err := m.Fit(data); err != nil {
		return nil, err
	}

	distances, err := m.Distances(data)
	if err != nil {
		return nil, err
	}
	if !detectors.Finite(distances) {
		return nil, errors.New("non-finite centroid distance")
	}

	return detectors.LabelAbove(detectors.MinMax(distances), distances, contamination), nil
}

func nearest(row []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for j, c := range centroids {
		if d := squaredDistance(row, c); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clone(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
