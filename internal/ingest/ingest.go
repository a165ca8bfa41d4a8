// Package ingest pulls the published vaccination dataset over HTTP and
// loads it into the record store.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaxsight/vaxsight/internal/store"
	"github.com/vaxsight/vaxsight/timedataset"
)

var (
	ErrMissingColumn = errors.New("dataset is missing a required column")
	ErrEmptyDataset  = errors.New("dataset has no data rows")
)

// RecordWriter is the slice of the store the loader needs.
type RecordWriter interface {
	InsertRecords(ctx context.Context, records []store.Record) error
}

// Stats reports what one load did. Skipped rows are invalid rows that
// were counted and logged, never silently absorbed.
type Stats struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

type Loader struct {
	client *http.Client
	writer RecordWriter
	log    zerolog.Logger
}

func New(writer RecordWriter, log zerolog.Logger, timeout time.Duration) *Loader {
	return &Loader{
		client: &http.Client{Timeout: timeout},
		writer: writer,
		log:    log,
	}
}

// LoadURL fetches a CSV dataset and inserts its valid rows.
func (l *Loader) LoadURL(ctx context.Context, url string) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("build dataset request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("fetch dataset: unexpected status %s", resp.Status)
	}

	records, rowErrs, err := Parse(resp.Body)
	if err != nil {
		return Stats{}, err
	}
	for _, re := range rowErrs {
		l.log.Warn().Err(re.Err).Int("row", re.Line).Msg("skipping invalid dataset row")
	}

	if err := l.writer.InsertRecords(ctx, records); err != nil {
		return Stats{}, fmt.Errorf("store dataset: %w", err)
	}

	stats := Stats{
		Total:    len(records) + len(rowErrs),
		Inserted: len(records),
		Skipped:  len(rowErrs),
	}
	l.log.Info().
		Int("inserted", stats.Inserted).
		Int("skipped", stats.Skipped).
		Msg("dataset loaded")
	return stats, nil
}

// RowError ties a rejected CSV line to the reason it was rejected.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Parse reads a header-keyed CSV dataset. YEAR and VACCINATED are
// required columns; the demographic columns are optional. Rows whose
// year or vaccination flag fail validation are returned separately.
func Parse(r io.Reader) ([]store.Record, []RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"year", "vaccinated"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("column %q, %w", required, ErrMissingColumn)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []store.Record
	var rowErrs []RowError
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}

		raw := timedataset.Row{
			Year:       field(row, "year"),
			Vaccinated: field(row, "vaccinated"),
		}
		rec, err := timedataset.ParseRow(raw)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}

		records = append(records, store.Record{
			State:       field(row, "state"),
			City:        field(row, "city"),
			AgeGroup:    field(row, "age_group"),
			Gender:      field(row, "gender"),
			Ethnicity:   field(row, "ethnicity"),
			VaccineType: field(row, "vaccine_type"),
			Vaccinated:  raw.Vaccinated,
			Year:        rec.Year,
			Description: field(row, "description"),
		})
	}

	if len(records) == 0 && len(rowErrs) == 0 {
		return nil, nil, ErrEmptyDataset
	}
	return records, rowErrs, nil
}
