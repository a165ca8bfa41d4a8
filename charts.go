package vaxsight

import (
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/vaxsight/vaxsight/backtest"
	"github.com/vaxsight/vaxsight/forecast"
)

// LineForecast generates an echart line chart of the historical annual
// counts followed by the forecast horizon.
func LineForecast(res *forecast.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: "Vaccination Forecast",
			},
		),
	)

	years := make([]string, 0, len(res.History)+len(res.Points))
	actual := make([]opts.LineData, 0, len(res.History)+len(res.Points))
	predicted := make([]opts.LineData, 0, len(res.History)+len(res.Points))

	for _, ac := range res.History {
		years = append(years, strconv.Itoa(ac.Year))
		actual = append(actual, opts.LineData{Value: ac.Count})
		predicted = append(predicted, opts.LineData{Value: nil})
	}
	for _, p := range res.Points {
		years = append(years, strconv.Itoa(p.Year))
		actual = append(actual, opts.LineData{Value: nil})
		predicted = append(predicted, opts.LineData{Value: p.Value})
	}

	line.SetXAxis(years).
		AddSeries("Actual", actual).
		AddSeries("Forecast", predicted)
	return line
}

// LineBacktest generates an echart line chart pairing the held-out
// actual values with the positionally aligned forecast.
func LineBacktest(res *backtest.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title:    "Backtest",
				Subtitle: "MAE " + strconv.FormatFloat(res.MAE, 'f', 2, 64) + "  RMSE " + strconv.FormatFloat(res.RMSE, 'f', 2, 64),
			},
		),
	)

	positions := make([]string, 0, len(res.TestActual))
	actual := make([]opts.LineData, 0, len(res.TestActual))
	predicted := make([]opts.LineData, 0, len(res.TestForecast))
	for i := range res.TestActual {
		positions = append(positions, strconv.Itoa(res.TestActual[i].Year))
		actual = append(actual, opts.LineData{Value: res.TestActual[i].Count})
		predicted = append(predicted, opts.LineData{Value: res.TestForecast[i].Value})
	}

	line.SetXAxis(positions).
		AddSeries("Held-out actual", actual).
		AddSeries("Forecast", predicted)
	return line
}

// PlotReport renders the forecast and backtest charts of a report into
// an html file.
func PlotReport(report *Report, path string) error {
	page := components.NewPage()
	page.AddCharts(
		LineForecast(report.Forecast),
		LineBacktest(report.Backtest),
	)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return page.Render(io.MultiWriter(file))
}
