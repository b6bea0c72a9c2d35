package download

import (
	"database/sql"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	// sqlite driver
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// MBTileVersion is written to the metadata table.
const MBTileVersion = "1.2"

func saveToMBTile(tile Tile, db *sql.DB) error {
	_, err := db.Exec("insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);", tile.T.Z, tile.T.X, tile.flipY(), tile.C)
	if err != nil {
		return err
	}
	return nil
}

func saveToFiles(tile Tile, rootdir, ext string) error {
	dir := filepath.Join(rootdir, fmt.Sprintf(`%d`, tile.T.Z), fmt.Sprintf(`%d`, tile.T.X))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	fileName := filepath.Join(dir, fmt.Sprintf(`%d.%s`, tile.T.Y, ext))
	err := ioutil.WriteFile(fileName, tile.C, 0644)
	if err != nil {
		return err
	}
	log.Debugln(fileName)
	return nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=0")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA locking_mode=EXCLUSIVE")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=DELETE")
	if err != nil {
		return err
	}
	return nil
}

func optimizeDatabase(db *sql.DB) error {
	_, err := db.Exec("ANALYZE;")
	if err != nil {
		return err
	}

	_, err = db.Exec("VACUUM;")
	if err != nil {
		return err
	}

	return nil
}

// setupMBTiles creates the MBTiles schema in a fresh file.
func setupMBTiles(file string, meta map[string]string) (*sql.DB, error) {
	os.Remove(file)
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}
	// a single writer, the save pipe
	db.SetMaxOpenConns(1)

	stmts := []string{
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index name on metadata (name);",
		"create unique index tile_index on tiles(zoom_level, tile_column, tile_row);",
	}
	if err := optimizeConnection(db); err != nil {
		db.Close()
		return nil, err
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	for name, value := range meta {
		if _, err := db.Exec("insert into metadata (name, value) values (?, ?)", name, value); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
