// Package timedataset converts raw vaccination records into ordered
// annual aggregate series suitable for model fitting.
package timedataset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNoRecords     = errors.New("no records to aggregate")
	ErrInvalidRecord = errors.New("invalid record")
	ErrNonMonotonic  = errors.New("series years are not strictly increasing")
	ErrNegativeCount = errors.New("series contains a negative count")
)

// Row is one raw dataset row before validation. Field values arrive as
// free text from the upstream tabular source.
type Row struct {
	Year       string
	Vaccinated string
}

// Record is a validated subject row.
type Record struct {
	Year       int
	Vaccinated bool
}

// RowError ties a rejected raw row to the reason it was rejected.
type RowError struct {
	Index int
	Row   Row
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Flag selects which records participate in aggregation.
type Flag int

const (
	All Flag = iota
	VaccinatedOnly
	UnvaccinatedOnly
)

func (f Flag) match(vaccinated bool) bool {
	switch f {
	case VaccinatedOnly:
		return vaccinated
	case UnvaccinatedOnly:
		return !vaccinated
	default:
		return true
	}
}

// ParseRow validates a raw row. The vaccination flag must be a
// case-insensitive "true" or "false"; any other value is rejected rather
// than coerced.
func ParseRow(r Row) (Record, error) {
	year, err := strconv.Atoi(strings.TrimSpace(r.Year))
	if err != nil {
		return Record{}, fmt.Errorf("year %q is not an integer, %w", r.Year, ErrInvalidRecord)
	}

	var vaccinated bool
	switch strings.ToLower(strings.TrimSpace(r.Vaccinated)) {
	case "true":
		vaccinated = true
	case "false":
		vaccinated = false
	default:
		return Record{}, fmt.Errorf("vaccination flag %q is not true/false, %w", r.Vaccinated, ErrInvalidRecord)
	}
	return Record{Year: year, Vaccinated: vaccinated}, nil
}

// AnnualCount is one entry of an annual aggregate series.
type AnnualCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// AnnualSeries is an ordered annual aggregate with strictly increasing
// years. Gaps between years are preserved, never zero-filled.
type AnnualSeries []AnnualCount

// Build parses and aggregates raw rows into an annual series, counting
// records that match the flag filter. It aborts on the first invalid row.
func Build(rows []Row, filter Flag) (AnnualSeries, error) {
	byYear := make(map[int]int)
	for i, row := range rows {
		rec, err := ParseRow(row)
		if err != nil {
			return nil, RowError{Index: i, Row: row, Err: err}
		}
		if filter.match(rec.Vaccinated) {
			byYear[rec.Year]++
		}
	}
	return fromCounts(byYear), nil
}

// BuildSkipInvalid aggregates raw rows like Build but collects invalid
// rows instead of aborting, leaving the skip-vs-abort decision to the
// caller.
func BuildSkipInvalid(rows []Row, filter Flag) (AnnualSeries, []RowError) {
	byYear := make(map[int]int)
	var rejected []RowError
	for i, row := range rows {
		rec, err := ParseRow(row)
		if err != nil {
			rejected = append(rejected, RowError{Index: i, Row: row, Err: err})
			continue
		}
		if filter.match(rec.Vaccinated) {
			byYear[rec.Year]++
		}
	}
	return fromCounts(byYear), rejected
}

// BuildRecords aggregates already-validated records.
func BuildRecords(records []Record, filter Flag) AnnualSeries {
	byYear := make(map[int]int)
	for _, rec := range records {
		if filter.match(rec.Vaccinated) {
			byYear[rec.Year]++
		}
	}
	return fromCounts(byYear)
}

func fromCounts(byYear map[int]int) AnnualSeries {
	series := make(AnnualSeries, 0, len(byYear))
	for year, count := range byYear {
		series = append(series, AnnualCount{Year: year, Count: count})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Year < series[j].Year
	})
	return series
}

// Validate checks the series invariants: strictly increasing years and
// non-negative counts.
func (s AnnualSeries) Validate() error {
	if len(s) == 0 {
		return ErrNoRecords
	}
	for i := range s {
		if s[i].Count < 0 {
			return fmt.Errorf("year %d has count %d, %w", s[i].Year, s[i].Count, ErrNegativeCount)
		}
		if i > 0 && s[i].Year <= s[i-1].Year {
			return fmt.Errorf("year %d follows %d, %w", s[i].Year, s[i-1].Year, ErrNonMonotonic)
		}
	}
	return nil
}

// Counts returns the count sequence in year order as floats for fitting.
func (s AnnualSeries) Counts() []float64 {
	y := make([]float64, len(s))
	for i := range s {
		y[i] = float64(s[i].Count)
	}
	return y
}

// Years returns the year sequence in series order.
func (s AnnualSeries) Years() []int {
	t := make([]int, len(s))
	for i := range s {
		t[i] = s[i].Year
	}
	return t
}

// LastYear returns the final historical year, or 0 for an empty series.
func (s AnnualSeries) LastYear() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Year
}

// Total returns the sum of all counts.
func (s AnnualSeries) Total() int {
	var total int
	for i := range s {
		total += s[i].Count
	}
	return total
}

// Copy returns an independent copy of the series.
func (s AnnualSeries) Copy() AnnualSeries {
	out := make(AnnualSeries, len(s))
	copy(out, s)
	return out
}
