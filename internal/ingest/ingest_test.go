package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxsight/vaxsight/internal/store"
	"github.com/vaxsight/vaxsight/timedataset"
)

const sampleCSV = `STATE,CITY,AGE_GROUP,GENDER,ETHNICITY,VACCINE_TYPE,VACCINATED,YEAR,DESCRIPTION
Lagos,Ikeja,18-30,F,Yoruba,measles,true,2020,routine
Lagos,Ikeja,31-45,M,Yoruba,measles,FALSE,2020,routine
Kano,Kano,18-30,F,Hausa,polio,true,2021,campaign
`

func TestParse(t *testing.T) {
	records, rowErrs, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, records, 3)

	assert.Equal(t, store.Record{
		State:       "Lagos",
		City:        "Ikeja",
		AgeGroup:    "18-30",
		Gender:      "F",
		Ethnicity:   "Yoruba",
		VaccineType: "measles",
		Vaccinated:  "true",
		Year:        2020,
		Description: "routine",
	}, records[0])
	assert.Equal(t, "FALSE", records[1].Vaccinated)
	assert.Equal(t, 2021, records[2].Year)
}

func TestParseInvalidRows(t *testing.T) {
	body := `YEAR,VACCINATED
2020,true
2021,maybe
notayear,false
2022,false
`
	records, rowErrs, err := Parse(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, rowErrs, 2)

	assert.Equal(t, 3, rowErrs[0].Line)
	assert.Equal(t, 4, rowErrs[1].Line)
	for _, re := range rowErrs {
		assert.ErrorIs(t, re, timedataset.ErrInvalidRecord)
	}
}

func TestParseHeaderCaseInsensitive(t *testing.T) {
	body := `Year, Vaccinated
2020,true
`
	records, rowErrs, err := Parse(strings.NewReader(body))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, records, 1)
	assert.Equal(t, 2020, records[0].Year)
}

func TestParseMissingColumn(t *testing.T) {
	testData := map[string]string{
		"no vaccinated": "YEAR,STATE\n2020,Lagos\n",
		"no year":       "VACCINATED,STATE\ntrue,Lagos\n",
	}
	for name, body := range testData {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(strings.NewReader(body))
			assert.ErrorIs(t, err, ErrMissingColumn)
		})
	}
}

func TestParseEmptyDataset(t *testing.T) {
	_, _, err := Parse(strings.NewReader("YEAR,VACCINATED\n"))
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

type fakeWriter struct {
	records []store.Record
	err     error
}

func (f *fakeWriter) InsertRecords(_ context.Context, records []store.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, records...)
	return nil
}

func TestLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	writer := &fakeWriter{}
	loader := New(writer, zerolog.Nop(), 5*time.Second)

	stats, err := loader.LoadURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Inserted: 3, Skipped: 0}, stats)
	assert.Len(t, writer.records, 3)
}

func TestLoadURLSkipsInvalidRows(t *testing.T) {
	body := "YEAR,VACCINATED\n2020,true\n2021,maybe\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	writer := &fakeWriter{}
	loader := New(writer, zerolog.Nop(), 5*time.Second)

	stats, err := loader.LoadURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Inserted: 1, Skipped: 1}, stats)
}

func TestLoadURLBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	loader := New(&fakeWriter{}, zerolog.Nop(), 5*time.Second)
	_, err := loader.LoadURL(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestLoadURLWriterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	loader := New(&fakeWriter{err: assert.AnError}, zerolog.Nop(), 5*time.Second)
	_, err := loader.LoadURL(context.Background(), srv.URL)
	assert.ErrorIs(t, err, assert.AnError)
}
