package devmeter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

func NewTimescaleStorage(dbUrl string) (*timescaleStorage, error) {

	const version = "v1"

	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, err
	}

	tableName := "devmeter_samples_" + version

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var tableExists = func() (bool, error) {

		query := fmt.Sprintf("select exists (select 1 from %s)", tableName)

		_, err := db.QueryContext(ctx, query)
		if err == nil || strings.Contains(err.Error(), "does not exist") {
			return err == nil, nil
		}

		return false, err
	}

	var tableInit = func() error {

		query := fmt.Sprintf(`create table %s (
			time timestamp with time zone not null,
			label text not null,
			device int4 not null,
			tag int4 not null,
			heavy boolean not null,
			copy_rate float8,
			read_rate float8,
			write_rate float8,
			single_float float8,
			double_float float8,
			int32_rate float8,
			int64_rate float8
		)`, tableName)

		_, err := db.ExecContext(ctx, query)
		return err
	}

	if exists, _ := tableExists(); !exists {

		slog.Info("TIMESCALE: Setting up",
			slog.String("table", tableName))

		if err := tableInit(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &timescaleStorage{
		db:      db,
		version: version,
		table:   tableName,
	}, nil
}

type timescaleStorage struct {
	db      *sql.DB
	version string
	table   string
}

func (this *timescaleStorage) Type() string {
	return "timescale"
}

func (this *timescaleStorage) Version() string {
	return this.version
}

func (this *timescaleStorage) Close() error {
	return this.db.Close()
}

func (this *timescaleStorage) Ping() error {
	return this.db.Ping()
}

// Writes a single benchmark sample
func (this *timescaleStorage) WriteSample(ctx context.Context, entry SampleEntry) error {

	if entry.Label == "" {
		return errors.New("empty entry label")
	}

	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	row := map[string]any{
		"time":   entry.Time,
		"label":  entry.Label,
		"device": entry.Device,
		"tag":    entry.Tag,
		"heavy":  entry.Heavy,
	}

	var setRate = func(col string, val interface{ Ptr() *float64 }) {
		if ptr := val.Ptr(); ptr != nil {
			row[col] = *ptr
		}
	}

	setRate("copy_rate", entry.CopyRate)
	setRate("read_rate", entry.ReadRate)
	setRate("write_rate", entry.WriteRate)
	setRate("single_float", entry.SingleFloat)
	setRate("double_float", entry.DoubleFloat)
	setRate("int32_rate", entry.Int32Rate)
	setRate("int64_rate", entry.Int64Rate)

	return sqlInsertContext(ctx, this.db, this.table, row)
}

func sqlInsertContext(ctx context.Context, db *sql.DB, table string, row map[string]any) error {

	var columns []string
	var args []any
	for col, val := range row {
		columns = append(columns, col)
		args = append(args, val)
	}

	var bindvars []string
	for idx := range columns {
		bindvars = append(bindvars, "$"+strconv.Itoa(idx+1))
	}

	query := fmt.Sprintf("insert into %s (%s) values (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(bindvars, ", "))

	_, err := db.ExecContext(ctx, query, args...)
	return err
}
