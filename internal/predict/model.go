package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// ErrNoModel is returned by Load when no artifact exists at the path.
var ErrNoModel = errors.New("predict: no model artifact")

// Coefficients is one market's logistic regression on standardized features.
type Coefficients struct {
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Samples  int       `json:"samples"`
	Accuracy float64   `json:"accuracy"`
}

// Model is the persisted artifact: a shared scaler plus per-market weights.
type Model struct {
	Version   string                   `json:"version"`
	TrainedAt time.Time                `json:"trained_at"`
	Samples   int                      `json:"samples"`
	Features  []string                 `json:"features"`
	Mean      []float64                `json:"mean"`
	Std       []float64                `json:"std"`
	Markets   map[string]*Coefficients `json:"markets"`
}

// Load reads a model artifact and checks its layout against FeatureNames.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoModel
	}
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}

	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decoding model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return m, nil
}

func (m *Model) validate() error {
	if len(m.Features) != len(FeatureNames) {
		return fmt.Errorf("expected %d features, got %d", len(FeatureNames), len(m.Features))
	}
	for i, name := range FeatureNames {
		if m.Features[i] != name {
			return fmt.Errorf("feature %d is %q, expected %q", i, m.Features[i], name)
		}
	}
	if len(m.Mean) != len(FeatureNames) || len(m.Std) != len(FeatureNames) {
		return errors.New("scaler size does not match features")
	}
	for market, c := range m.Markets {
		if c == nil || len(c.Weights) != len(FeatureNames) {
			return fmt.Errorf("market %s: weight size does not match features", market)
		}
	}
	return nil
}

// Probability returns the modeled probability (0..1) of the favorite for SU
// and ATS, or of the over for OU. ok is false when the market was not trained.
func (m *Model) Probability(market string, x []float64) (float64, bool) {
	if m == nil {
		return 0, false
	}
	c, ok := m.Markets[market]
	if !ok || c == nil || len(x) != len(c.Weights) {
		return 0, false
	}
	return sigmoid(dot(c.Weights, m.scale(x)) + c.Bias), true
}

func (m *Model) scale(x []float64) []float64 {
	z := make([]float64, len(x))
	for i := range x {
		if m.Std[i] > 0 {
			z[i] = (x[i] - m.Mean[i]) / m.Std[i]
		}
	}
	return z
}

// SaveModel writes the artifact through a temp file and rename so readers
// never see a partial model.
func SaveModel(m *Model, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp model: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming model: %w", err)
	}
	return nil
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
