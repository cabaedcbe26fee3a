// Package routing runs ranking-weight A/B experiments: deterministic
// consistent-hash arm assignment by user or session id, conversion-rate
// metric aggregation per arm, and a two-proportion z-test for
// significance. The control arm always carries the specification's
// literal fusion weights so scenarios S1-S6 hold under experiment ID
// "" or when no experiment is running.
package routing

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// Status is an experiment's lifecycle state.
type Status string

const (
	Draft     Status = "draft"
	Running   Status = "running"
	Paused    Status = "paused"
	Concluded Status = "concluded"
)

// Weights overrides the ranker's score-fusion weights for one arm.
// See §4.5 for the specification's literal defaults.
type Weights struct {
	CF         float64 `json:"cf"`
	Popularity float64 `json:"popularity"`
	Bandit     float64 `json:"bandit"`
	TextWith   float64 `json:"text_with_search"`
	TextWithout float64 `json:"text_without_search"`
	Session    float64 `json:"session"`
}

// ControlWeights reproduces the specification's literal fusion weights.
func ControlWeights() Weights {
	return Weights{CF: 0.45, Popularity: 0.18, Bandit: 0.12, TextWith: 0.20, TextWithout: 0.05, Session: 0.10}
}

// Arm is one variant of a ranking-weight experiment.
type Arm struct {
	Name          string  `json:"name"`
	Weights       Weights `json:"weights"`
	TrafficWeight float64 `json:"traffic_weight"` // 0.0-1.0, must sum to 1.0 across arms
}

// Experiment is a ranking-weight A/B test.
type Experiment struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Arms        []Arm      `json:"arms"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ConcludedAt *time.Time `json:"concluded_at,omitempty"`
	WinnerIdx   int        `json:"winner_idx"`

	MinSampleSize         int     `json:"min_sample_size"`
	SignificanceThreshold float64 `json:"significance_threshold"`
}

// ArmMetrics accumulates a single arm's observed outcomes.
type ArmMetrics struct {
	Requests    int64   `json:"requests"`
	Conversions int64   `json:"conversions"` // clicks or purchases attributed to a served item
	ConversionRate float64 `json:"conversion_rate"`
}

func (m *ArmMetrics) recalculate() {
	if m.Requests > 0 {
		m.ConversionRate = float64(m.Conversions) / float64(m.Requests)
	}
}

// Engine runs ranking-weight experiments.
type Engine struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	metrics     map[string][]ArmMetrics
}

// NewEngine returns an empty experiment engine.
func NewEngine() *Engine {
	return &Engine{
		experiments: make(map[string]*Experiment),
		metrics:     make(map[string][]ArmMetrics),
	}
}

// Create registers a new experiment in draft status.
func (e *Engine) Create(exp *Experiment) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.experiments[exp.ID]; exists {
		return fmt.Errorf("routing: experiment %s already exists", exp.ID)
	}

	var total float64
	for _, a := range exp.Arms {
		total += a.TrafficWeight
	}
	if len(exp.Arms) > 0 && math.Abs(total-1.0) > 0.01 {
		return fmt.Errorf("routing: arm traffic weights must sum to 1.0, got %.3f", total)
	}

	if exp.SignificanceThreshold == 0 {
		exp.SignificanceThreshold = 0.95
	}
	if exp.MinSampleSize == 0 {
		exp.MinSampleSize = 100
	}
	exp.Status = Draft
	exp.CreatedAt = time.Now()
	exp.WinnerIdx = -1
	e.experiments[exp.ID] = exp
	e.metrics[exp.ID] = make([]ArmMetrics, len(exp.Arms))
	return nil
}

// Start transitions an experiment to running.
func (e *Engine) Start(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, ok := e.experiments[id]
	if !ok {
		return fmt.Errorf("routing: experiment %s not found", id)
	}
	if exp.Status != Draft && exp.Status != Paused {
		return fmt.Errorf("routing: experiment %s is %s, cannot start", id, exp.Status)
	}
	now := time.Now()
	exp.StartedAt = &now
	exp.Status = Running
	return nil
}

// Assign deterministically maps a request key (userId or sessionId) to
// an arm's weights via consistent hashing. When no experiment is
// running for id, or id is empty, it returns the control weights.
func (e *Engine) Assign(id, requestKey string) (Weights, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	exp, ok := e.experiments[id]
	if !ok || exp.Status != Running || len(exp.Arms) == 0 {
		return ControlWeights(), -1
	}

	hash := sha256.Sum256([]byte(id + ":" + requestKey))
	hashVal := float64(binary.BigEndian.Uint64(hash[:8])) / float64(math.MaxUint64)

	cumulative := 0.0
	for i, a := range exp.Arms {
		cumulative += a.TrafficWeight
		if hashVal < cumulative {
			return a.Weights, i
		}
	}
	last := len(exp.Arms) - 1
	return exp.Arms[last].Weights, last
}

// RecordOutcome attributes one served request's conversion outcome to
// the arm it was assigned to.
func (e *Engine) RecordOutcome(id string, armIdx int, converted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	metrics, ok := e.metrics[id]
	if !ok || armIdx < 0 || armIdx >= len(metrics) {
		return
	}
	m := &metrics[armIdx]
	m.Requests++
	if converted {
		m.Conversions++
	}
	m.recalculate()
}

// ZTestResult is a two-proportion z-test outcome comparing two arms'
// conversion rates.
type ZTestResult struct {
	ZScore      float64 `json:"z_score"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	BetterIdx   int     `json:"better_idx"`
}

// CompareConversionRates runs a two-proportion z-test between the
// first two arms of an experiment (control vs. treatment).
func (e *Engine) CompareConversionRates(id string) (*ZTestResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	metrics, ok := e.metrics[id]
	if !ok {
		return nil, fmt.Errorf("routing: experiment %s not found", id)
	}
	if len(metrics) < 2 {
		return nil, fmt.Errorf("routing: need at least 2 arms")
	}
	exp := e.experiments[id]

	m0, m1 := metrics[0], metrics[1]
	if m0.Requests < int64(exp.MinSampleSize) || m1.Requests < int64(exp.MinSampleSize) {
		return &ZTestResult{}, nil
	}

	p1, p2 := m0.ConversionRate, m1.ConversionRate
	n1, n2 := float64(m0.Requests), float64(m1.Requests)

	pPool := (float64(m0.Conversions) + float64(m1.Conversions)) / (n1 + n2)
	if pPool == 0 || pPool == 1 {
		return &ZTestResult{}, nil
	}
	se := math.Sqrt(pPool * (1 - pPool) * (1/n1 + 1/n2))
	if se == 0 {
		return &ZTestResult{}, nil
	}

	z := (p2 - p1) / se
	pValue := 2 * normalCDF(-math.Abs(z))
	betterIdx := 0
	if p2 > p1 {
		betterIdx = 1
	}

	return &ZTestResult{
		ZScore:      z,
		PValue:      pValue,
		Significant: pValue < (1 - exp.SignificanceThreshold),
		BetterIdx:   betterIdx,
	}, nil
}

// Conclude manually concludes an experiment with the given winning arm.
func (e *Engine) Conclude(id string, winnerIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	exp, ok := e.experiments[id]
	if !ok {
		return fmt.Errorf("routing: experiment %s not found", id)
	}
	if winnerIdx < 0 || winnerIdx >= len(exp.Arms) {
		return fmt.Errorf("routing: invalid winner index %d", winnerIdx)
	}
	now := time.Now()
	exp.ConcludedAt = &now
	exp.Status = Concluded
	exp.WinnerIdx = winnerIdx
	return nil
}

// Get returns an experiment and its per-arm metrics.
func (e *Engine) Get(id string) (*Experiment, []ArmMetrics, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	exp, ok := e.experiments[id]
	if !ok {
		return nil, nil, fmt.Errorf("routing: experiment %s not found", id)
	}
	metricsCopy := make([]ArmMetrics, len(e.metrics[id]))
	copy(metricsCopy, e.metrics[id])
	return exp, metricsCopy, nil
}

// List returns every experiment.
func (e *Engine) List() []*Experiment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Experiment, 0, len(e.experiments))
	for _, exp := range e.experiments {
		out = append(out, exp)
	}
	return out
}

// Delete removes an experiment.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.experiments[id]; !ok {
		return fmt.Errorf("routing: experiment %s not found", id)
	}
	delete(e.experiments, id)
	delete(e.metrics, id)
	return nil
}

// normalCDF approximates the standard normal CDF via the Abramowitz &
// Stegun rational approximation.
func normalCDF(x float64) float64 {
	if x < -8 {
		return 0
	}
	if x > 8 {
		return 1
	}
	t := 1.0 / (1.0 + 0.2316419*math.Abs(x))
	d := 0.3989422804014327
	prob := d * math.Exp(-x*x/2.0) *
		(t * (0.3193815 + t*(-0.3565638+t*(1.781478+t*(-1.821256+t*1.330274)))))
	if x > 0 {
		return 1 - prob
	}
	return prob
}
