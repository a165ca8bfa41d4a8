package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxsight/vaxsight/arima"
	"github.com/vaxsight/vaxsight/timedataset"
)

func fiveYearSeries() timedataset.AnnualSeries {
	return timedataset.AnnualSeries{
		{Year: 2018, Count: 100},
		{Year: 2019, Count: 120},
		{Year: 2020, Count: 90},
		{Year: 2021, Count: 150},
		{Year: 2022, Count: 200},
	}
}

func TestForecast(t *testing.T) {
	res, err := Forecast(fiveYearSeries(), 3, arima.DefaultOrder())
	require.NoError(t, err)

	require.Len(t, res.Points, 3)
	assert.Equal(t, 2023, res.Points[0].Year)
	assert.Equal(t, 2024, res.Points[1].Year)
	assert.Equal(t, 2025, res.Points[2].Year)
	for _, p := range res.Points {
		assert.False(t, math.IsNaN(p.Value))
		assert.False(t, math.IsInf(p.Value, 0))
	}

	assert.Equal(t, fiveYearSeries(), res.History)
	assert.Equal(t, arima.DefaultOrder(), res.Order)
}

// Forecast years must be strictly consecutive from the last historical
// year, never aligned to calendar gaps in the history.
func TestForecastConsecutiveYearsWithGaps(t *testing.T) {
	series := timedataset.AnnualSeries{
		{Year: 2014, Count: 80},
		{Year: 2016, Count: 95},
		{Year: 2017, Count: 60},
		{Year: 2020, Count: 130},
		{Year: 2021, Count: 170},
	}

	res, err := Forecast(series, 4, arima.DefaultOrder())
	require.NoError(t, err)

	require.Len(t, res.Points, 4)
	for i, p := range res.Points {
		assert.Equal(t, 2022+i, p.Year)
	}
}

// Gapped and compacted series with identical counts must produce
// identical forecast values: the fit sees an equally spaced sequence.
func TestForecastGapsNotZeroFilled(t *testing.T) {
	gapped := timedataset.AnnualSeries{
		{Year: 2010, Count: 100},
		{Year: 2013, Count: 120},
		{Year: 2017, Count: 90},
		{Year: 2020, Count: 150},
		{Year: 2022, Count: 200},
	}
	compact := fiveYearSeries()

	gappedRes, err := Forecast(gapped, 3, arima.DefaultOrder())
	require.NoError(t, err)
	compactRes, err := Forecast(compact, 3, arima.DefaultOrder())
	require.NoError(t, err)

	assert.Equal(t, compactRes.Values(), gappedRes.Values())
}

func TestForecastErrors(t *testing.T) {
	testData := map[string]struct {
		series  timedataset.AnnualSeries
		horizon int
		order   arima.Order
		err     error
	}{
		"zero horizon": {
			series:  fiveYearSeries(),
			horizon: 0,
			order:   arima.DefaultOrder(),
			err:     ErrInvalidHorizon,
		},
		"negative horizon": {
			series:  fiveYearSeries(),
			horizon: -2,
			order:   arima.DefaultOrder(),
			err:     ErrInvalidHorizon,
		},
		"single point": {
			series:  timedataset.AnnualSeries{{Year: 2020, Count: 50}},
			horizon: 3,
			order:   arima.DefaultOrder(),
			err:     arima.ErrInsufficientData,
		},
		"one below minimum": {
			series: timedataset.AnnualSeries{
				{Year: 2020, Count: 10},
				{Year: 2021, Count: 14},
			},
			horizon: 1,
			order:   arima.DefaultOrder(),
			err:     arima.ErrInsufficientData,
		},
		"duplicate years": {
			series: timedataset.AnnualSeries{
				{Year: 2020, Count: 10},
				{Year: 2020, Count: 14},
			},
			horizon: 1,
			order:   arima.DefaultOrder(),
			err:     timedataset.ErrNonMonotonic,
		},
		"empty series": {
			series:  nil,
			horizon: 1,
			order:   arima.DefaultOrder(),
			err:     timedataset.ErrNoRecords,
		},
		"invalid order": {
			series:  fiveYearSeries(),
			horizon: 1,
			order:   arima.Order{P: -1, D: 1, Q: 1},
			err:     arima.ErrInvalidOrder,
		},
		"degenerate constant series": {
			series: timedataset.AnnualSeries{
				{Year: 2018, Count: 0},
				{Year: 2019, Count: 0},
				{Year: 2020, Count: 0},
				{Year: 2021, Count: 0},
				{Year: 2022, Count: 0},
			},
			horizon: 2,
			order:   arima.DefaultOrder(),
			err:     arima.ErrModelFit,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := Forecast(td.series, td.horizon, td.order)
			require.Error(t, err)
			assert.ErrorIs(t, err, td.err)
			assert.Nil(t, res)
		})
	}
}

func TestForecastMinimumObservations(t *testing.T) {
	series := timedataset.AnnualSeries{
		{Year: 2020, Count: 100},
		{Year: 2021, Count: 120},
		{Year: 2022, Count: 90},
	}

	res, err := Forecast(series, 1, arima.DefaultOrder())
	require.NoError(t, err)
	require.Len(t, res.Points, 1)
	assert.Equal(t, 2023, res.Points[0].Year)
}

func TestForecastIdempotent(t *testing.T) {
	first, err := Forecast(fiveYearSeries(), 3, arima.DefaultOrder())
	require.NoError(t, err)
	second, err := Forecast(fiveYearSeries(), 3, arima.DefaultOrder())
	require.NoError(t, err)

	assert.Equal(t, first.Values(), second.Values())
}

func TestForecastDoesNotAliasInput(t *testing.T) {
	series := fiveYearSeries()
	res, err := Forecast(series, 2, arima.DefaultOrder())
	require.NoError(t, err)

	res.History[0].Count = -999
	assert.Equal(t, 100, series[0].Count)
}
