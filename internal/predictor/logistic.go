package predictor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/model"
)

// MinSamples is the history size below which the model stays untrained.
const MinSamples = 50

// MaxHistory is the number of most recent outcomes kept for training.
const MaxHistory = 5000

const (
	epochs       = 400
	learningRate = 0.3
	l2           = 1e-3
)

// Estimator produces a win probability for a feature vector and learns from outcomes.
type Estimator interface {
	Estimate(ctx context.Context, features []float64) float64
	RecordOutcome(ctx context.Context, features []float64, label int) error
	Samples() int
}

// LogisticModel is a standardized logistic regression fitted by batch gradient descent.
// It returns 0.5 until it has been trained.
type LogisticModel struct {
	mu          sync.RWMutex
	minSamples  int
	maxHistory  int
	x           [][]float64
	y           []float64
	weights     []float64
	bias        float64
	mean, std   []float64
	trained     bool
	lastTrained time.Time
	now         func() time.Time
}

// NewLogisticModel creates an untrained model. minSamples <= 0 uses MinSamples.
func NewLogisticModel(minSamples int) *LogisticModel {
	if minSamples <= 0 {
		minSamples = MinSamples
	}
	return &LogisticModel{minSamples: minSamples, maxHistory: MaxHistory, now: time.Now}
}

// Load seeds the training history from recorded outcomes.
func (m *LogisticModel) Load(outcomes []model.OutcomeRecord) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range outcomes {
		if len(o.Features) != FeatureCount {
			continue
		}
		m.x = append(m.x, append([]float64(nil), o.Features...))
		m.y = append(m.y, float64(o.Outcome))
		n++
	}
	m.trim()
	log.Info().Int("loaded", n).Int("total", len(m.x)).Msg("estimator history loaded")
	return n
}

func (m *LogisticModel) Samples() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.x)
}

func (m *LogisticModel) RecordOutcome(_ context.Context, features []float64, label int) error {
	if len(features) != FeatureCount {
		return fmt.Errorf("feature vector has %d values, want %d", len(features), FeatureCount)
	}
	if label != model.OutcomeWin && label != model.OutcomeLoss {
		return fmt.Errorf("label %d is not 0 or 1", label)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.x = append(m.x, append([]float64(nil), features...))
	m.y = append(m.y, float64(label))
	m.trim()
	return nil
}

// trim drops the oldest samples beyond maxHistory. Callers hold mu.
func (m *LogisticModel) trim() {
	drop := len(m.x) - m.maxHistory
	if m.maxHistory <= 0 || drop <= 0 {
		return
	}
	n := copy(m.x, m.x[drop:])
	clear(m.x[n:])
	m.x = m.x[:n]
	m.y = m.y[:copy(m.y, m.y[drop:])]
}

func (m *LogisticModel) Estimate(_ context.Context, features []float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained || len(features) != len(m.weights) {
		return 0.5
	}
	z := m.bias
	for i, v := range features {
		z += m.weights[i] * (v - m.mean[i]) / m.std[i]
	}
	return sigmoid(z)
}

// Retrain refits the model on the full history. It reports false without error
// when there are fewer than the minimum samples.
func (m *LogisticModel) Retrain(ctx context.Context) (bool, error) {
	m.mu.RLock()
	x := append([][]float64(nil), m.x...)
	y := append([]float64(nil), m.y...)
	m.mu.RUnlock()

	if len(x) < m.minSamples {
		log.Info().Int("samples", len(x)).Int("need", m.minSamples).Msg("not enough outcomes to retrain")
		return false, nil
	}

	mean, std := standardize(x)
	scaled := make([][]float64, len(x))
	for i, row := range x {
		scaled[i] = make([]float64, len(row))
		for j, v := range row {
			scaled[i][j] = (v - mean[j]) / std[j]
		}
	}

	w := make([]float64, FeatureCount)
	var b float64
	n := float64(len(scaled))
	grad := make([]float64, FeatureCount)
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, row := range scaled {
			z := b
			for j, v := range row {
				z += w[j] * v
			}
			diff := sigmoid(z) - y[i]
			for j, v := range row {
				grad[j] += diff * v
			}
			gb += diff
		}
		for j := range w {
			w[j] -= learningRate * (grad[j]/n + l2*w[j])
		}
		b -= learningRate * gb / n
	}

	m.mu.Lock()
	m.weights, m.bias, m.mean, m.std = w, b, mean, std
	m.trained = true
	m.lastTrained = m.now()
	m.mu.Unlock()

	log.Info().Int("samples", len(x)).Float64("accuracy", accuracy(scaled, y, w, b)).Msg("estimator retrained")
	return true, nil
}

// LastTrained is zero until the first successful retrain.
func (m *LogisticModel) LastTrained() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTrained
}

func standardize(x [][]float64) (mean, std []float64) {
	mean = make([]float64, FeatureCount)
	std = make([]float64, FeatureCount)
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			mean[j] += v / n
		}
	}
	for _, row := range x {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d / n
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j])
		if std[j] < 1e-9 {
			std[j] = 1
		}
	}
	return mean, std
}

func accuracy(x [][]float64, y, w []float64, b float64) float64 {
	correct := 0
	for i, row := range x {
		z := b
		for j, v := range row {
			z += w[j] * v
		}
		if (sigmoid(z) >= 0.5) == (y[i] == 1) {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
