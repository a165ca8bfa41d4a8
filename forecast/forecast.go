// Package forecast produces multi-year point forecasts of annual
// vaccination counts from a fitted ARIMA model.
package forecast

import (
	"errors"
	"fmt"

	"github.com/vaxsight/vaxsight/arima"
	"github.com/vaxsight/vaxsight/timedataset"
)

var ErrInvalidHorizon = errors.New("forecast horizon must be positive")

// Point is one forecast entry. Values are real numbers, never rounded
// to whole counts.
type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Result holds the input history alongside the forecast for the years
// immediately following it.
type Result struct {
	History timedataset.AnnualSeries `json:"history"`
	Points  []Point                  `json:"forecast"`
	Order   arima.Order              `json:"model_order"`
}

// Values returns the forecast values in year order.
func (r *Result) Values() []float64 {
	out := make([]float64, len(r.Points))
	for i := range r.Points {
		out[i] = r.Points[i].Value
	}
	return out
}

// Forecast fits an ARIMA model of the given order to the annual series
// and forecasts the next horizon years, starting at the year after the
// last historical one.
//
// The counts are fitted as an equally spaced sequence: a gap between
// calendar years is treated as a single time step, not filled with
// zero-count placeholders. Changing this would change forecast numerics
// for every gapped series, so it is kept as-is deliberately.
func Forecast(series timedataset.AnnualSeries, horizon int, order arima.Order) (*Result, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("got horizon %d, %w", horizon, ErrInvalidHorizon)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid annual series, %w", err)
	}

	m, err := arima.New(order)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(series.Counts()); err != nil {
		return nil, fmt.Errorf("unable to fit model to annual series, %w", err)
	}

	values, err := m.Predict(horizon)
	if err != nil {
		return nil, fmt.Errorf("unable to forecast %d years, %w", horizon, err)
	}

	points := make([]Point, horizon)
	lastYear := series.LastYear()
	for i, v := range values {
		points[i] = Point{Year: lastYear + i + 1, Value: v}
	}

	return &Result{
		History: series.Copy(),
		Points:  points,
		Order:   order,
	}, nil
}
