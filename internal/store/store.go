// Package store persists vaccination records and user credentials in
// MySQL and serves the filtered views the pipeline and dashboard read.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/vaxsight/vaxsight/timedataset"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUserExists       = errors.New("username already taken")
	ErrUnknownAttribute = errors.New("unknown breakdown attribute")
)

const mysqlDuplicateEntry = 1062

// Record is one persisted dataset row. The vaccination flag is kept as
// the raw source text so the series builder, not the database, decides
// whether a row is valid.
type Record struct {
	State       string
	City        string
	AgeGroup    string
	Gender      string
	Ethnicity   string
	VaccineType string
	Vaccinated  string
	Year        int
	Description string
}

// Filter narrows record queries. Empty fields match everything.
type Filter struct {
	State       string `json:"state"`
	City        string `json:"city"`
	VaccineType string `json:"vaccine_type"`
}

// clause builds the WHERE fragment and its arguments for the filter.
func (f Filter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, f.State)
	}
	if f.City != "" {
		conds = append(conds, "city = ?")
		args = append(args, f.City)
	}
	if f.VaccineType != "" {
		conds = append(conds, "vaccine_type = ?")
		args = append(args, f.VaccineType)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// breakdownColumns whitelists the demographic attributes a caller may
// group by, keeping attribute names out of raw SQL.
var breakdownColumns = map[string]string{
	"state":        "state",
	"city":         "city",
	"age_group":    "age_group",
	"gender":       "gender",
	"ethnicity":    "ethnicity",
	"vaccine_type": "vaccine_type",
}

// BreakdownRow is one demographic group with its vaccinated and
// unvaccinated record counts.
type BreakdownRow struct {
	Value        string `json:"value"`
	Vaccinated   int    `json:"vaccinated"`
	Unvaccinated int    `json:"unvaccinated"`
}

// User is one stored credential row.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sql.DB
}

// Open connects to MySQL and verifies the connection.
func Open(dsn string, opt Options) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opt.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opt.MaxOpenConns)
	}
	if opt.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opt.MaxIdleConns)
	}
	if opt.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opt.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the record and user tables when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vaccination_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			state VARCHAR(100) NOT NULL DEFAULT '',
			city VARCHAR(100) NOT NULL DEFAULT '',
			age_group VARCHAR(50) NOT NULL DEFAULT '',
			gender VARCHAR(50) NOT NULL DEFAULT '',
			ethnicity VARCHAR(100) NOT NULL DEFAULT '',
			vaccine_type VARCHAR(100) NOT NULL DEFAULT '',
			vaccinated VARCHAR(20) NOT NULL,
			year INT NOT NULL,
			description TEXT,
			INDEX idx_state_city (state, city),
			INDEX idx_year (year)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(100) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertRecords writes a batch of records in one transaction.
func (s *Store) InsertRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vaccination_records
			(state, city, age_group, gender, ethnicity, vaccine_type, vaccinated, year, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.State, r.City, r.AgeGroup, r.Gender, r.Ethnicity,
			r.VaccineType, r.Vaccinated, r.Year, r.Description,
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

// CountRecords returns the number of stored records.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vaccination_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// VaccinationRows returns the year and raw vaccination flag of every
// record matching the filter, for aggregation by the series builder.
func (s *Store) VaccinationRows(ctx context.Context, f Filter) ([]timedataset.Row, error) {
	where, args := f.clause()
	rows, err := s.db.QueryContext(ctx,
		"SELECT year, vaccinated FROM vaccination_records"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query vaccination rows: %w", err)
	}
	defer rows.Close()

	var out []timedataset.Row
	for rows.Next() {
		var year, vaccinated string
		if err := rows.Scan(&year, &vaccinated); err != nil {
			return nil, fmt.Errorf("scan vaccination row: %w", err)
		}
		out = append(out, timedataset.Row{Year: year, Vaccinated: vaccinated})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vaccination rows: %w", err)
	}
	return out, nil
}

// Breakdown groups matching records by a demographic attribute and
// counts vaccinated and unvaccinated records per group.
func (s *Store) Breakdown(ctx context.Context, attribute string, f Filter) ([]BreakdownRow, error) {
	col, ok := breakdownColumns[attribute]
	if !ok {
		return nil, fmt.Errorf("attribute %q, %w", attribute, ErrUnknownAttribute)
	}

	where, args := f.clause()
	query := fmt.Sprintf(
		`SELECT %s,
			COALESCE(SUM(LOWER(vaccinated) = 'true'), 0),
			COALESCE(SUM(LOWER(vaccinated) = 'false'), 0)
		 FROM vaccination_records%s GROUP BY %s ORDER BY %s`,
		col, where, col, col)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query breakdown: %w", err)
	}
	defer rows.Close()

	var out []BreakdownRow
	for rows.Next() {
		var br BreakdownRow
		if err := rows.Scan(&br.Value, &br.Vaccinated, &br.Unvaccinated); err != nil {
			return nil, fmt.Errorf("scan breakdown row: %w", err)
		}
		out = append(out, br)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate breakdown rows: %w", err)
	}
	return out, nil
}

// CreateUser stores a new credential row.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return fmt.Errorf("username %q, %w", username, ErrUserExists)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UserByName fetches a credential row by username.
func (s *Store) UserByName(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q, %w", username, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
