package devmeter

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/golang-migrate/migrate/v4"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*
var sqliteMigfs embed.FS

func NewSqliteStorage(path string) (*sqliteStorage, error) {

	params := url.Values{}

	if before, after, has := strings.Cut(path, "?"); has {

		query, err := url.ParseQuery(after)
		if err != nil {
			return nil, err
		}

		path = before
		params = query
	}

	params.Set("_journal", "WAL")

	switch {
	case strings.HasSuffix(path, ".db"), strings.HasSuffix(path, ".db3"):
	default:
		path = filepath.Join(path, "./samples.db3")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "/" && dir != "\\" {
		if _, err := os.Stat(dir); err != nil {
			if err := os.Mkdir(dir, os.ModePerm); err != nil {
				return nil, err
			}
		}
	}

	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	slog.Debug("Storage: sqlite3 enabled",
		slog.String("path", path))

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	storage := &sqliteStorage{db: db}

	if err := storage.migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run storage migrations: %s", err.Error())
	}

	return storage, nil
}

type sqliteStorage struct {
	db *sql.DB
}

func (this *sqliteStorage) Type() string {
	return "sqlite"
}

func (this *sqliteStorage) Close() error {
	return this.db.Close()
}

func (this *sqliteStorage) WriteSample(ctx context.Context, entry SampleEntry) error {

	if entry.Label == "" {
		return errors.New("empty entry label")
	}

	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	const query = `insert into samples (
		time, label, device, tag, heavy,
		copy_rate, read_rate, write_rate,
		single_float, double_float, int32_rate, int64_rate
	) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := this.db.ExecContext(ctx, query,
		entry.Time.UnixNano(),
		entry.Label,
		entry.Device,
		entry.Tag,
		entry.Heavy,
		entry.CopyRate,
		entry.ReadRate,
		entry.WriteRate,
		entry.SingleFloat,
		entry.DoubleFloat,
		entry.Int32Rate,
		entry.Int64Rate)

	return err
}

func (this *sqliteStorage) QuerySampleRange(from time.Time, to time.Time) ([]SampleEntry, error) {

	const query = `select
		id, time, label, device, tag, heavy,
		copy_rate, read_rate, write_rate,
		single_float, double_float, int32_rate, int64_rate
	from samples where time >= ? and time <= ? order by time asc`

	rows, err := this.db.Query(query, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var result []SampleEntry

	for rows.Next() {

		var entry SampleEntry
		var timestamp int64

		if err := rows.Scan(
			&entry.ID,
			&timestamp,
			&entry.Label,
			&entry.Device,
			&entry.Tag,
			&entry.Heavy,
			&entry.CopyRate,
			&entry.ReadRate,
			&entry.WriteRate,
			&entry.SingleFloat,
			&entry.DoubleFloat,
			&entry.Int32Rate,
			&entry.Int64Rate); err != nil {
			return nil, err
		}

		entry.Time = time.Unix(0, timestamp)
		result = append(result, entry)
	}

	return result, rows.Err()
}

func (this *sqliteStorage) migrate(db *sql.DB) error {

	migfs, err := iofs.New(sqliteMigfs, "migrations")
	if err != nil {
		return err
	}

	migdb, err := sqlite_migrate.WithInstance(db, &sqlite_migrate.Config{})
	if err != nil {
		return err
	}

	mig, err := migrate.NewWithInstance("iofs", migfs, "sqlite3", migdb)
	if err != nil {
		return err
	}

	if err := mig.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}
