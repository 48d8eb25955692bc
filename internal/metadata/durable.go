package metadata

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aogier/nsdb/pkg/types"
)

// Store persists Locations and MetricInfos to SQLite so a restarted
// node can rebuild its cache via WarmUp instead of starting cold. It
// is optional: a Coordinator built without one keeps metadata in
// memory only.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the SQLite database at path
// and ensures its schema exists. A single connection is used — the
// metadata coordinator is itself single-writer, so there is never
// concurrent write contention to arbitrate.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS locations (
			db TEXT NOT NULL,
			ns TEXT NOT NULL,
			metric TEXT NOT NULL,
			node TEXT NOT NULL,
			from_ts INTEGER NOT NULL,
			to_ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_metric ON locations(db, ns, metric)`,
		`CREATE TABLE IF NOT EXISTS metric_infos (
			db TEXT NOT NULL,
			ns TEXT NOT NULL,
			metric TEXT NOT NULL,
			shard_interval_ms INTEGER NOT NULL,
			PRIMARY KEY (db, ns, metric)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("metadata: failed to initialize schema: %w", err)
		}
	}
	return nil
}

// SaveLocation appends a Location row.
func (s *Store) SaveLocation(ctx context.Context, db, ns, metric string, loc types.Location) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (db, ns, metric, node, from_ts, to_ts) VALUES (?, ?, ?, ?, ?, ?)`,
		db, ns, metric, loc.Node, loc.From, loc.To)
	if err != nil {
		return fmt.Errorf("metadata: failed to save location: %w", err)
	}
	return nil
}

// LoadLocations returns every seed location persisted across all (db, ns, metric) triples.
func (s *Store) LoadLocations(ctx context.Context) (map[[3]string][]types.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT db, ns, metric, node, from_ts, to_ts FROM locations`)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to load locations: %w", err)
	}
	defer rows.Close()

	out := make(map[[3]string][]types.Location)
	for rows.Next() {
		var db, ns, metric, node string
		var from, to int64
		if err := rows.Scan(&db, &ns, &metric, &node, &from, &to); err != nil {
			return nil, fmt.Errorf("metadata: failed to scan location: %w", err)
		}
		k := [3]string{db, ns, metric}
		out[k] = append(out[k], types.Location{Metric: metric, Node: node, From: from, To: to})
	}
	return out, rows.Err()
}

// SaveMetricInfo inserts or replaces the MetricInfo row for (db, ns, metric).
func (s *Store) SaveMetricInfo(ctx context.Context, db, ns, metric string, info types.MetricInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metric_infos (db, ns, metric, shard_interval_ms) VALUES (?, ?, ?, ?)`,
		db, ns, metric, info.ShardInterval)
	if err != nil {
		return fmt.Errorf("metadata: failed to save metric info: %w", err)
	}
	return nil
}

// LoadMetricInfos returns every persisted MetricInfo keyed by (db, ns, metric).
func (s *Store) LoadMetricInfos(ctx context.Context) (map[[3]string]types.MetricInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT db, ns, metric, shard_interval_ms FROM metric_infos`)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to load metric infos: %w", err)
	}
	defer rows.Close()

	out := make(map[[3]string]types.MetricInfo)
	for rows.Next() {
		var db, ns, metric string
		var interval int64
		if err := rows.Scan(&db, &ns, &metric, &interval); err != nil {
			return nil, fmt.Errorf("metadata: failed to scan metric info: %w", err)
		}
		out[[3]string{db, ns, metric}] = types.MetricInfo{Metric: metric, ShardInterval: interval}
	}
	return out, rows.Err()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
