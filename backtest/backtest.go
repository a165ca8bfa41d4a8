// Package backtest validates forecast accuracy against held-out history
// using a train/test split and standard error metrics.
package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/vaxsight/vaxsight/arima"
	"github.com/vaxsight/vaxsight/forecast"
	"github.com/vaxsight/vaxsight/timedataset"
)

var (
	ErrInvalidHorizon = errors.New("held-out horizon must be positive")
	ErrLenMismatch    = errors.New("actual and predicted have different lengths")
)

// Result holds the split, the forecast over the held-out horizon, and
// the accuracy metrics. TestForecast is aligned with TestActual by
// position, not by calendar year: for a gapped series the comparison is
// positional, matching the reference behavior.
type Result struct {
	Train        timedataset.AnnualSeries `json:"train"`
	TestActual   timedataset.AnnualSeries `json:"test_actual"`
	TestForecast []forecast.Point         `json:"test_forecast"`
	MAE          float64                  `json:"mae"`
	RMSE         float64                  `json:"rmse"`
}

// Run withholds the last heldOut entries of the series, refits the
// model on the remainder, forecasts over the held-out horizon, and
// scores the forecast against the actual values.
func Run(series timedataset.AnnualSeries, heldOut int, order arima.Order) (*Result, error) {
	if heldOut < 1 {
		return nil, fmt.Errorf("got held-out horizon %d, %w", heldOut, ErrInvalidHorizon)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid annual series, %w", err)
	}
	if len(series) <= heldOut {
		return nil, fmt.Errorf(
			"series has %d entries, cannot hold out %d, %w",
			len(series), heldOut, arima.ErrInsufficientData,
		)
	}

	split := len(series) - heldOut
	train := series[:split].Copy()
	test := series[split:].Copy()

	res, err := forecast.Forecast(train, heldOut, order)
	if err != nil {
		return nil, fmt.Errorf("unable to forecast over held-out horizon, %w", err)
	}

	predicted := res.Values()
	actual := test.Counts()

	mae, err := MAE(actual, predicted)
	if err != nil {
		return nil, err
	}
	rmse, err := RMSE(actual, predicted)
	if err != nil {
		return nil, err
	}

	return &Result{
		Train:        train,
		TestActual:   test,
		TestForecast: res.Points,
		MAE:          mae,
		RMSE:         rmse,
	}, nil
}

// MAE is the mean absolute error between aligned actual and predicted
// values.
func MAE(actual, predicted []float64) (float64, error) {
	if len(actual) != len(predicted) {
		return 0, fmt.Errorf("got %d actual and %d predicted, %w", len(actual), len(predicted), ErrLenMismatch)
	}
	if len(actual) == 0 {
		return 0, ErrLenMismatch
	}

	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual)), nil
}

// RMSE is the root mean squared error between aligned actual and
// predicted values.
func RMSE(actual, predicted []float64) (float64, error) {
	if len(actual) != len(predicted) {
		return 0, fmt.Errorf("got %d actual and %d predicted, %w", len(actual), len(predicted), ErrLenMismatch)
	}
	if len(actual) == 0 {
		return 0, ErrLenMismatch
	}

	var sum float64
	for i := range actual {
		diff := actual[i] - predicted[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(actual))), nil
}
