package sqliteutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects between a local sqlite file and a remote libsql
// database. Url wins when both are set.
type Config struct {
	Path      string `json:"path"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c Config) OpenDB(schema string) (*sql.DB, error) {
	if c.Url != "" {
		return openRemote(schema, c.Url, c.AuthToken)
	}
	path := c.Path
	if path == "" {
		path = ":memory:"
	}
	return OpenDB(schema, path)
}

func openRemote(schema, url, token string) (*sql.DB, error) {
	if token != "" {
		url = fmt.Sprintf("%s?authToken=%s", url, token)
	}
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	err = applySchema(db, schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenDB opens a local sqlite database at `path` and applies `schema` to it.
func OpenDB(schema, path string) (*sql.DB, error) {
	if path != ":memory:" {
		os.MkdirAll(filepath.Dir(path), 0777)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	err = applySchema(db, schema)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func applySchema(db *sql.DB, schema string) error {
	if schema == "" {
		return nil
	}
	_, err := db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
