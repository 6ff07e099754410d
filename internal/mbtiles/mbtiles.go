// Package mbtiles reads MBTiles archives: SQLite databases holding a TMS
// tile pyramid and a name/value metadata table.
package mbtiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrTileNotFound is returned when the archive has no tile at z/x/y.
var ErrTileNotFound = errors.New("tile not found")

// Archive is an open, read-only MBTiles file.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens path read-only.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open mbtiles: %w", err)
	}
	db.SetMaxOpenConns(4)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open mbtiles %s: %w", path, err)
	}
	return &Archive{db: db, path: path}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the file the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Tile returns the stored bytes at XYZ z/x/y. Rows are flipped to the TMS
// scheme MBTiles uses.
func (a *Archive) Tile(ctx context.Context, z uint8, x, y uint32) ([]byte, error) {
	row := (uint32(1) << z) - 1 - y
	var data []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		z, x, row,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tile %d/%d/%d: %w", z, x, y, err)
	}
	return data, nil
}

// Metadata returns the raw name/value rows.
func (a *Archive) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT name, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	md := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		md[name] = value
	}
	return md, rows.Err()
}

// MetadataJSON returns the metadata table as a JSON-ready object. The "json"
// row, which tippecanoe fills with vector_layers and tilestats, is decoded in
// place so callers can reach metadata.json.vector_layers directly.
func (a *Archive) MetadataJSON(ctx context.Context) (map[string]any, error) {
	md, err := a.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	if raw, ok := md["json"]; ok {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			out["json"] = decoded
		}
	}
	return out, nil
}

// Format returns the tile format declared in metadata ("pbf", "png", ...).
func (a *Archive) Format(ctx context.Context) (string, error) {
	md, err := a.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return md["format"], nil
}

// Bounds parses the "bounds" metadata row. ok is false when it is absent
// or malformed.
func (a *Archive) Bounds(ctx context.Context) (bounds [4]float64, ok bool, err error) {
	md, err := a.Metadata(ctx)
	if err != nil {
		return bounds, false, err
	}
	bounds, ok = ParseBounds(md["bounds"])
	return bounds, ok, nil
}

// ParseBounds parses "minLon,minLat,maxLon,maxLat".
func ParseBounds(s string) ([4]float64, bool) {
	var b [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return b, false
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, false
		}
		b[i] = v
	}
	return b, b[0] <= b[2] && b[1] <= b[3]
}
