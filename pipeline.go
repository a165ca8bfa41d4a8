// Package vaxsight assembles the vaccination forecasting pipeline: raw
// records are aggregated into an annual series, fitted with an ARIMA
// model for a multi-year forecast, validated against held-out history,
// and optionally compared against a cross-source total.
package vaxsight

import (
	"fmt"

	"github.com/vaxsight/vaxsight/arima"
	"github.com/vaxsight/vaxsight/backtest"
	"github.com/vaxsight/vaxsight/forecast"
	"github.com/vaxsight/vaxsight/timedataset"
)

// Options configures a pipeline run. Everything is an explicit
// parameter; the pipeline holds no session or request state.
type Options struct {
	Order   arima.Order `json:"order"`
	Horizon int         `json:"horizon"`
	HeldOut int         `json:"held_out"`
}

// NewDefaultOptions returns the reference configuration: an ARIMA(1,1,1)
// fit, a three year forecast, and two held-out years for validation.
func NewDefaultOptions() *Options {
	return &Options{
		Order:   arima.DefaultOrder(),
		Horizon: 3,
		HeldOut: 2,
	}
}

func (o *Options) Validate() error {
	if err := o.Order.Validate(); err != nil {
		return err
	}
	if o.Horizon < 1 {
		return fmt.Errorf("got horizon %d, %w", o.Horizon, forecast.ErrInvalidHorizon)
	}
	if o.HeldOut < 1 {
		return fmt.Errorf("got held-out horizon %d, %w", o.HeldOut, backtest.ErrInvalidHorizon)
	}
	return nil
}

// Report is the combined output of one pipeline run. Comparison is nil
// when no external total was supplied, which is distinct from a
// comparison against a zero total.
type Report struct {
	Forecast   *forecast.Result `json:"forecast"`
	Backtest   *backtest.Result `json:"backtest"`
	Comparison *Comparison      `json:"comparison,omitempty"`
}

// Pipeline runs the single-pass batch computation per request. Each Run
// call fits fresh models on locally owned data, so one Pipeline may be
// shared across goroutines.
type Pipeline struct {
	opt *Options
}

// New creates a Pipeline with the provided options. If no options are
// provided a default is used.
func New(opt *Options) (*Pipeline, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{opt: opt}, nil
}

// Run aggregates the vaccinated records into an annual series, then
// produces the full-history forecast and the train/test backtest. Any
// failure surfaces to the caller; no stage substitutes fabricated
// numbers.
func (p *Pipeline) Run(rows []timedataset.Row) (*Report, error) {
	series, err := timedataset.Build(rows, timedataset.VaccinatedOnly)
	if err != nil {
		return nil, fmt.Errorf("unable to build annual series, %w", err)
	}
	return p.RunSeries(series)
}

// RunSeries is Run for a caller that already holds an aggregated series.
func (p *Pipeline) RunSeries(series timedataset.AnnualSeries) (*Report, error) {
	fc, err := forecast.Forecast(series, p.opt.Horizon, p.opt.Order)
	if err != nil {
		return nil, fmt.Errorf("forecast stage failed, %w", err)
	}

	bt, err := backtest.Run(series, p.opt.HeldOut, p.opt.Order)
	if err != nil {
		return nil, fmt.Errorf("backtest stage failed, %w", err)
	}

	return &Report{Forecast: fc, Backtest: bt}, nil
}

// RunWithExternal is Run plus a comparison against an externally
// supplied cross-source vaccinated total.
func (p *Pipeline) RunWithExternal(rows []timedataset.Row, externalTotal float64) (*Report, error) {
	report, err := p.Run(rows)
	if err != nil {
		return nil, err
	}

	cmp, err := Compare(report.Forecast.History.Total(), externalTotal)
	if err != nil {
		return nil, err
	}
	report.Comparison = &cmp
	return report, nil
}
