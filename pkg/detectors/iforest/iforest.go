// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"errors"
	"math"
	"math/rand"

	"github.com/hed1ad/energyguard/pkg/detectors"
)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
// An instance is owned by a single detection run and is not safe for
// concurrent use.
type IsolationForest struct {
	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	threshold     float64
	maxDepth      int
	rng           *rand.Rand

	// Trained model
	trees   []*iTree
	trained bool

	// Statistics from training
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		threshold:     0.5,
		rng:           rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(f)
	}

	// Max depth based on sample size
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))

	return f
}

// Fit trains the Isolation Forest on the provided data.
func (f *IsolationForest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return errors.New("empty training data")
	}

	nSamples := len(data)
	nFeatures := len(data[0])

	// Adjust sample size if needed
	sampleSize := min(f.sampleSize, nSamples)
	f.maxDepth = int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	// Build trees
	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = f.buildTree(sample, nFeatures, 0)
	}

	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	// Set threshold based on contamination
	if f.contamination > 0 {
		scores := f.predict(data)
		f.threshold = detectors.Percentile(scores, 100*(1-f.contamination))
	}

	return nil
}

// buildTree recursively builds an isolation tree.
func (f *IsolationForest) buildTree(data [][]float64, nFeatures, depth int) *iTree {
	return &iTree{
		root: f.buildNode(data, nFeatures, depth),
	}
}

func (f *IsolationForest) buildNode(data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := f.rng.Intn(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		minVal = min(minVal, row[feature])
		maxVal = max(maxVal, row[feature])
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(leftData, nFeatures, depth+1),
		right:        f.buildNode(rightData, nFeatures, depth+1),
	}
}

// Predict returns isolation scores in [0, 1] for the given samples.
// Higher score = more anomalous.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	if !f.trained {
		return nil, errors.New("model not trained")
	}

	return f.predict(data), nil
}

func (f *IsolationForest) predict(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.predictOne(sample)
	}
	return scores
}

// PredictOne returns the isolation score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	if !f.trained {
		return 0, errors.New("model not trained")
	}

	return f.predictOne(sample), nil
}

func (f *IsolationForest) predictOne(sample []float64) float64 {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// A single-sample forest has nothing to normalize against.
	if f.avgPathLength == 0 {
		return 0.5
	}

	// Anomaly score: 2^(-avgPath / c(n))
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// Decision returns the signed decision value for each sample: the distance
// of the sample's score below the contamination threshold. Negative values
// are outliers.
func (f *IsolationForest) Decision(data [][]float64) ([]float64, error) {
	scores, err := f.Predict(data)
	if err != nil {
		return nil, err
	}

	for i, s := range scores {
		scores[i] = f.threshold - s
	}
	return scores, nil
}

// Detect fits the forest on data and labels the rows whose decision value is
// negative. The score is 1 - (decision + 0.5), floored at zero.
func (f *IsolationForest) Detect(data [][]float64, contamination float64) ([]detectors.Score, error) {
	if err := detectors.ValidateContamination(contamination); err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return make([]detectors.Score, len(data)), nil
	}

	f.contamination = contamination
	if err := f.Fit(data); err != nil {
		return nil, err
	}

	decisions, err := f.Decision(data)
	if err != nil {
		return nil, err
	}

	scores := make([]detectors.Score, len(decisions))
	for i, d := range decisions {
		scores[i] = detectors.Score{
			Value:     max(0, 1-(d+0.5)),
			IsAnomaly: d < 0,
		}
	}
	return scores, nil
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ~ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.threshold = t
}
