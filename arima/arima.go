// Package arima fits univariate ARIMA(p,d,q) models by conditional sum
// of squares and produces multi-step point forecasts.
package arima

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidOrder     = errors.New("model order must have non-negative p, d, q")
	ErrInsufficientData = errors.New("insufficient observations for model order")
	ErrModelFit         = errors.New("model fit failed")
	ErrNotFitted        = errors.New("model has not been fitted")
	ErrInvalidSteps     = errors.New("forecast steps must be positive")
)

const (
	maxIterations = 500
	tolerance     = 1e-8
	learningRate  = 0.01

	// AR and MA coefficients are clamped inside the unit interval to keep
	// the fit stationary and invertible.
	coefBound = 0.99
)

// Order is the (p,d,q) triple of an ARIMA model: autoregressive lag
// order, differencing order, and moving-average lag order.
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

// DefaultOrder returns the (1,1,1) order used when the caller does not
// pick one.
func DefaultOrder() Order {
	return Order{P: 1, D: 1, Q: 1}
}

func (o Order) Validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 {
		return fmt.Errorf("got (%d,%d,%d), %w", o.P, o.D, o.Q, ErrInvalidOrder)
	}
	return nil
}

// MinObservations is the practical minimum series length for a stable
// fit of this order: enough points to feed the longest autoregressive
// lag after differencing, and at least two differenced observations.
func (o Order) MinObservations() int {
	min := o.P + o.D + 1
	if o.D+2 > min {
		min = o.D + 2
	}
	return min
}

// Model is a fitted ARIMA model. Create one per input series; fits are
// not reused across series.
type Model struct {
	Order     Order
	ARCoef    []float64
	MACoef    []float64
	Intercept float64
	Variance  float64

	y         []float64
	levels    [][]float64
	diff      []float64
	residuals []float64
	fittedVal []float64
	fitted    bool
}

// New creates an unfitted model with the given order.
func New(order Order) (*Model, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		Order:  order,
		ARCoef: make([]float64, order.P),
		MACoef: make([]float64, order.Q),
	}, nil
}

// Fit estimates model parameters from the observation sequence. The
// input is treated as equally spaced in time.
func (m *Model) Fit(y []float64) error {
	if len(y) < m.Order.MinObservations() {
		return fmt.Errorf(
			"got %d observations, need at least %d for order (%d,%d,%d), %w",
			len(y), m.Order.MinObservations(), m.Order.P, m.Order.D, m.Order.Q,
			ErrInsufficientData,
		)
	}

	m.y = make([]float64, len(y))
	copy(m.y, y)

	// Each intermediate differenced series is kept so Predict can undo
	// the differencing from the right anchors.
	levels := make([][]float64, m.Order.D+1)
	levels[0] = m.y
	for i := 1; i <= m.Order.D; i++ {
		levels[i] = difference(levels[i-1])
	}
	diff := levels[m.Order.D]
	if isConstant(diff) {
		return fmt.Errorf("series is constant after differencing %d times, %w", m.Order.D, ErrModelFit)
	}
	m.levels = levels
	m.diff = diff

	if err := m.estimate(); err != nil {
		return err
	}

	m.fitted = true
	return nil
}

// estimate runs conditional sum of squares with Yule-Walker initialized
// AR coefficients and gradient refinement of both coefficient sets.
func (m *Model) estimate() error {
	y := m.diff
	n := len(y)
	p := m.Order.P
	q := m.Order.Q

	m.Intercept = stat.Mean(y, nil)

	if p == 0 && q == 0 {
		m.residuals = make([]float64, n)
		m.fittedVal = make([]float64, n)
		for i, v := range y {
			m.fittedVal[i] = m.Intercept
			m.residuals[i] = v - m.Intercept
		}
		m.Variance = stat.Variance(m.residuals, nil)
		return nil
	}

	if p > 0 {
		if r := autocorrelation(y, p); r != nil {
			m.ARCoef = yuleWalker(r, p)
		}
	}
	for i := range m.MACoef {
		m.MACoef[i] = 0.1
	}

	startIdx := p
	if q > startIdx {
		startIdx = q
	}

	residuals := make([]float64, n)
	prevSSE := math.Inf(1)
	for iter := 0; iter < maxIterations; iter++ {
		sse := m.conditionalResiduals(y, residuals, startIdx)

		arGrad := make([]float64, p)
		maGrad := make([]float64, q)
		for t := startIdx; t < n; t++ {
			for i := 0; i < p && t-i-1 >= 0; i++ {
				arGrad[i] -= 2 * residuals[t] * (y[t-i-1] - m.Intercept)
			}
			for i := 0; i < q && t-i-1 >= 0; i++ {
				maGrad[i] -= 2 * residuals[t] * residuals[t-i-1]
			}
		}
		for i := 0; i < p; i++ {
			m.ARCoef[i] = clamp(m.ARCoef[i] - learningRate*arGrad[i]/float64(n))
		}
		for i := 0; i < q; i++ {
			m.MACoef[i] = clamp(m.MACoef[i] - learningRate*maGrad[i]/float64(n))
		}

		if !math.IsInf(prevSSE, 1) && math.Abs(prevSSE-sse) < tolerance*(1+prevSSE) {
			break
		}
		prevSSE = sse
	}

	sse := m.conditionalResiduals(y, residuals, startIdx)
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return fmt.Errorf("optimizer diverged, %w", ErrModelFit)
	}
	for _, c := range m.ARCoef {
		if math.IsNaN(c) {
			return fmt.Errorf("autoregressive coefficients diverged, %w", ErrModelFit)
		}
	}
	for _, c := range m.MACoef {
		if math.IsNaN(c) {
			return fmt.Errorf("moving-average coefficients diverged, %w", ErrModelFit)
		}
	}

	m.residuals = make([]float64, n)
	m.fittedVal = make([]float64, n)
	for t := 0; t < n; t++ {
		if t < startIdx {
			m.fittedVal[t] = m.Intercept
			m.residuals[t] = y[t] - m.Intercept
			continue
		}
		pred := m.onePred(y, m.residuals, t)
		m.fittedVal[t] = pred
		m.residuals[t] = y[t] - pred
	}

	count := n - startIdx
	if count > p+q+1 {
		m.Variance = sse / float64(count-p-q-1)
	} else if count > 0 {
		m.Variance = sse / float64(count)
	}
	return nil
}

// conditionalResiduals fills residuals for t >= startIdx and returns the
// conditional sum of squares. Earlier entries are left at zero.
func (m *Model) conditionalResiduals(y, residuals []float64, startIdx int) float64 {
	var sse float64
	for t := range residuals {
		residuals[t] = 0
	}
	for t := startIdx; t < len(y); t++ {
		residuals[t] = y[t] - m.onePred(y, residuals, t)
		sse += residuals[t] * residuals[t]
	}
	return sse
}

func (m *Model) onePred(y, residuals []float64, t int) float64 {
	pred := m.Intercept
	for i := 0; i < m.Order.P && t-i-1 >= 0; i++ {
		pred += m.ARCoef[i] * (y[t-i-1] - m.Intercept)
	}
	for i := 0; i < m.Order.Q && t-i-1 >= 0; i++ {
		pred += m.MACoef[i] * residuals[t-i-1]
	}
	return pred
}

// Predict produces point forecasts for the given number of steps past
// the end of the fitted series, on the original (undifferenced) scale.
// Future shocks are taken at their expectation of zero.
func (m *Model) Predict(steps int) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if steps < 1 {
		return nil, fmt.Errorf("got %d steps, %w", steps, ErrInvalidSteps)
	}

	n := len(m.diff)
	extY := make([]float64, n+steps)
	copy(extY, m.diff)
	extRes := make([]float64, n+steps)
	copy(extRes, m.residuals)

	for h := 0; h < steps; h++ {
		t := n + h
		pred := m.Intercept
		for i := 0; i < m.Order.P && t-i-1 >= 0; i++ {
			pred += m.ARCoef[i] * (extY[t-i-1] - m.Intercept)
		}
		for i := 0; i < m.Order.Q && t-i-1 >= 0 && t-i-1 < n; i++ {
			pred += m.MACoef[i] * extRes[t-i-1]
		}
		extY[t] = pred
	}

	forecast := make([]float64, steps)
	copy(forecast, extY[n:])
	return m.integrate(forecast), nil
}

// integrate undoes d rounds of differencing by cumulative sums. The
// first round is anchored on the last value of the (d-1)-times
// differenced series, the final round on the last observation, landing
// the forecast back on the original scale.
func (m *Model) integrate(forecast []float64) []float64 {
	for k := m.Order.D - 1; k >= 0; k-- {
		level := m.levels[k]
		prev := level[len(level)-1]
		for j := range forecast {
			forecast[j] += prev
			prev = forecast[j]
		}
	}
	return forecast
}

// Residuals returns the in-sample residuals on the differenced scale.
func (m *Model) Residuals() []float64 {
	if !m.fitted {
		return nil
	}
	out := make([]float64, len(m.residuals))
	copy(out, m.residuals)
	return out
}

// FittedValues returns the in-sample one-step predictions on the
// differenced scale.
func (m *Model) FittedValues() []float64 {
	if !m.fitted {
		return nil
	}
	out := make([]float64, len(m.fittedVal))
	copy(out, m.fittedVal)
	return out
}

func difference(y []float64) []float64 {
	if len(y) < 2 {
		return nil
	}
	out := make([]float64, len(y)-1)
	for i := 1; i < len(y); i++ {
		out[i-1] = y[i] - y[i-1]
	}
	return out
}

func isConstant(y []float64) bool {
	if len(y) < 2 {
		return true
	}
	for _, v := range y[1:] {
		if v != y[0] {
			return false
		}
	}
	return true
}

func clamp(c float64) float64 {
	return math.Max(-coefBound, math.Min(coefBound, c))
}

// autocorrelation computes the sample ACF up to maxLag. Returns nil for
// a zero-variance series.
func autocorrelation(y []float64, maxLag int) []float64 {
	n := len(y)
	mean := stat.Mean(y, nil)

	var c0 float64
	for _, v := range y {
		c0 += (v - mean) * (v - mean)
	}
	if c0 == 0 {
		return nil
	}

	out := make([]float64, maxLag+1)
	out[0] = 1.0
	for lag := 1; lag <= maxLag && lag < n; lag++ {
		var c float64
		for t := lag; t < n; t++ {
			c += (y[t] - mean) * (y[t-lag] - mean)
		}
		out[lag] = c / c0
	}
	return out
}

// yuleWalker solves the Yule-Walker equations R phi = r for the initial
// AR coefficients, where R is the Toeplitz matrix of autocorrelations.
func yuleWalker(r []float64, p int) []float64 {
	phi := make([]float64, p)
	if len(r) <= p {
		return phi
	}

	toeplitz := mat.NewDense(p, p, nil)
	rhs := mat.NewVecDense(p, nil)
	for i := 0; i < p; i++ {
		rhs.SetVec(i, r[i+1])
		for j := 0; j < p; j++ {
			lag := i - j
			if lag < 0 {
				lag = -lag
			}
			toeplitz.Set(i, j, r[lag])
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(toeplitz, rhs); err != nil {
		// singular system, start the optimizer from zero
		return phi
	}
	for i := range phi {
		phi[i] = clamp(sol.AtVec(i))
	}
	return phi
}
