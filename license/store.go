package license

import (
	"context"
	"database/sql"
	"time"

	// sqlite driver
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the Info record in a single-row sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec("create table if not exists license (id integer primary key check (id = 1), purchase_timestamp integer not null);")
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Persist implements Persister. The previous record is replaced.
func (s *SQLiteStore) Persist(ctx context.Context, info Info) error {
	_, err := s.db.ExecContext(ctx, "insert or replace into license (id, purchase_timestamp) values (1, ?);", info.PurchaseTimestamp.UnixMilli())
	return err
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (*Info, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, "select purchase_timestamp from license where id = 1;").Scan(&ms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Info{PurchaseTimestamp: time.UnixMilli(ms)}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
