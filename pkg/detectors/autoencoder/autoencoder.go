// Package autoencoder implements reconstruction-error anomaly detection with a
// small dense autoencoder trained by Adam on mean squared error.
//
// The network mirrors its input through a bottleneck:
//
//	D -> max(D/2,1) -> max(D/4,1) -> max(D/2,1) -> D
//
// Hidden layers use ReLU and the output layer is linear. Rows the network
// reproduces poorly are unlike the bulk of the data.
package autoencoder

import (
	"errors"
	"math"
	"math/rand"

	"github.com/hed1ad/energyguard/pkg/detectors"
)

// ErrDiverged is returned when training produces non-finite errors.
var ErrDiverged = errors.New("autoencoder training diverged")

// Autoencoder is owned by a single detection run and is not safe for
// concurrent use.
type Autoencoder struct {
	// Configuration
	epochs       int
	batchSize    int
	learningRate float64
	rng          *rand.Rand

	// Trained model
	layers  []*layer
	step    int
	trained bool
}

// Option configures an Autoencoder.
type Option func(*Autoencoder)

// WithEpochs sets the number of passes over the data.
func WithEpochs(n int) Option {
	return func(a *Autoencoder) {
		a.epochs = n
	}
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(n int) Option {
	return func(a *Autoencoder) {
		a.batchSize = n
	}
}

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) Option {
	return func(a *Autoencoder) {
		a.learningRate = lr
	}
}

// WithSeed sets the random seed for weight initialization and shuffling.
func WithSeed(seed int64) Option {
	return func(a *Autoencoder) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a new Autoencoder with the given options.
func New(opts ...Option) *Autoencoder {
	a := &Autoencoder{
		epochs:       50,
		batchSize:    32,
		learningRate: 0.001,
		rng:          rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Widths returns the layer widths for an input of dimension d.
func Widths(d int) []int {
	half := max(d/2, 1)
	quarter := max(d/4, 1)
	return []int{d, half, quarter, half, d}
}

// Fit trains the network to reproduce data.
func (a *Autoencoder) Fit(data [][]float64) error {
	if len(data) == 0 {
		return errors.New("empty training data")
	}

	widths := Widths(len(data[0]))
	a.layers = make([]*layer, len(widths)-1)
	for i := range a.layers {
		a.layers[i] = newLayer(widths[i], widths[i+1], i < len(a.layers)-1, a.rng)
	}
	a.step = 0

	batch := max(a.batchSize, 1)
	for epoch := 0; epoch < a.epochs; epoch++ {
		order := a.rng.Perm(len(data))
		for start := 0; start < len(order); start += batch {
			end := min(start+batch, len(order))
			a.trainBatch(data, order[start:end])
		}
	}

	a.trained = true
	return nil
}

// trainBatch accumulates gradients over one mini-batch and applies an Adam step.
func (a *Autoencoder) trainBatch(data [][]float64, idx []int) {
	for _, l := range a.layers {
		l.zeroGrad()
	}

	scale := 1 / float64(len(idx))
	for _, i := range idx {
		x := data[i]
		acts := a.forward(x)

		out := acts[len(acts)-1]
		grad := make([]float64, len(out))
		for j := range out {
			grad[j] = 2 * (out[j] - x[j]) / float64(len(out)) * scale
		}

		for l := len(a.layers) - 1; l >= 0; l-- {
			grad = a.layers[l].backward(acts[l], acts[l+1], grad)
		}
	}

	a.step++
	for _, l := range a.layers {
		l.adam(a.learningRate, a.step)
	}
}

// forward returns the activations of every layer, input first.
func (a *Autoencoder) forward(x []float64) [][]float64 {
	acts := make([][]float64, 0, len(a.layers)+1)
	acts = append(acts, x)
	for _, l := range a.layers {
		acts = append(acts, l.forward(acts[len(acts)-1]))
	}
	return acts
}

// Reconstruct returns the network output for each sample.
func (a *Autoencoder) Reconstruct(data [][]float64) ([][]float64, error) {
	if !a.trained {
		return nil, errors.New("model not trained")
	}

	out := make([][]float64, len(data))
	for i, x := range data {
		acts := a.forward(x)
		out[i] = acts[len(acts)-1]
	}
	return out, nil
}

// Errors returns the per-row mean squared reconstruction error.
func (a *Autoencoder) Errors(data [][]float64) ([]float64, error) {
	recon, err := a.Reconstruct(data)
	if err != nil {
		return nil, err
	}

	errs := make([]float64, len(data))
	for i, x := range data {
		var sum float64
		for j := range x {
			d := x[j] - recon[i][j]
			sum += d * d
		}
		errs[i] = sum / float64(len(x))
	}
	return errs, nil
}

// Detect trains on data and labels rows whose normalized reconstruction
// error exceeds the (1-contamination) percentile.
func (a *Autoencoder) Detect(data [][]float64, contamination float64) ([]detectors.Score, error) {
	if err := detectors.ValidateContamination(contamination); err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return make([]detectors.Score, len(data)), nil
	}

	if err := a.Fit(data); err != nil {
		return nil, err
	}

	errs, err := a.Errors(data)
	if err != nil {
		return nil, err
	}
	if !detectors.Finite(errs) {
		return nil, ErrDiverged
	}

	normalized := detectors.MinMax(errs)
	return detectors.LabelAbove(normalized, normalized, contamination), nil
}

// layer is a dense layer with Adam state.
type layer struct {
	in, out int
	relu    bool

	w [][]float64 // out x in
	b []float64

	gw [][]float64
	gb []float64

	mw, vw [][]float64
	mb, vb []float64
}

func newLayer(in, out int, relu bool, rng *rand.Rand) *layer {
	l := &layer{
		in:   in,
		out:  out,
		relu: relu,
		w:    matrix(out, in),
		b:    make([]float64, out),
		gw:   matrix(out, in),
		gb:   make([]float64, out),
		mw:   matrix(out, in),
		vw:   matrix(out, in),
		mb:   make([]float64, out),
		vb:   make([]float64, out),
	}

	// Glorot uniform
	limit := math.Sqrt(6 / float64(in+out))
	for o := range l.w {
		for i := range l.w[o] {
			l.w[o][i] = (rng.Float64()*2 - 1) * limit
		}
	}
	return l
}

func (l *layer) forward(x []float64) []float64 {
	y := make([]float64, l.out)
	for o := range y {
		sum := l.b[o]
		for i, v := range x {
			sum += l.w[o][i] * v
		}
		if l.relu && sum < 0 {
			sum = 0
		}
		y[o] = sum
	}
	return y
}

// backward accumulates parameter gradients given the gradient of the loss
// with respect to this layer's output, and returns the gradient with respect
// to its input.
func (l *layer) backward(x, y, grad []float64) []float64 {
	prev := make([]float64, l.in)
	for o := range grad {
		g := grad[o]
		if l.relu && y[o] <= 0 {
			continue
		}
		l.gb[o] += g
		for i, v := range x {
			l.gw[o][i] += g * v
			prev[i] += l.w[o][i] * g
		}
	}
	return prev
}

func (l *layer) zeroGrad() {
	for o := range l.gw {
		clear(l.gw[o])
	}
	clear(l.gb)
}

const (
	beta1   = 0.9
	beta2   = 0.999
	epsilon = 1e-7
)

func (l *layer) adam(lr float64, step int) {
	c1 := 1 - math.Pow(beta1, float64(step))
	c2 := 1 - math.Pow(beta2, float64(step))

	update := func(p *float64, g float64, m, v *float64) {
		*m = beta1*(*m) + (1-beta1)*g
		*v = beta2*(*v) + (1-beta2)*g*g
		*p -= lr * (*m / c1) / (math.Sqrt(*v/c2) + epsilon)
	}

	for o := range l.w {
		for i := range l.w[o] {
			update(&l.w[o][i], l.gw[o][i], &l.mw[o][i], &l.vw[o][i])
		}
		update(&l.b[o], l.gb[o], &l.mb[o], &l.vb[o])
	}
}

func matrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
