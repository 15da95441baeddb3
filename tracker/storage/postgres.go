package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/types"
)

// Database mirrors benchmark runs into PostgreSQL for ad-hoc querying
type Database struct {
	db  *sql.DB
	cfg *config.PostgreSQLConfig
	log logrus.FieldLogger
}

// NewDatabase creates a database handle; call Connect before use
func NewDatabase(cfg *config.PostgreSQLConfig, log logrus.FieldLogger) *Database {
	return &Database{
		cfg: cfg,
		log: log.WithField("component", "postgres"),
	}
}

// Connect opens the connection pool and applies migrations
func (d *Database) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", d.cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(d.cfg.MaxOpenConns)
	db.SetMaxIdleConns(d.cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, db, d.log); err != nil {
		db.Close()
		return err
	}

	d.db = db
	d.log.WithFields(logrus.Fields{
		"host":     d.cfg.Host,
		"database": d.cfg.Database,
	}).Info("Connected to PostgreSQL database")
	return nil
}

// Close closes the connection pool
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// InsertEntry stores a run. It reports false when the run was already
// mirrored, keyed by group, commit id and date.
func (d *Database) InsertEntry(ctx context.Context, group string, entry types.Entry) (bool, error) {
	commitJSON, err := json.Marshal(entry.Commit)
	if err != nil {
		return false, fmt.Errorf("failed to encode commit: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO bench_entries (group_name, commit_id, entry_date, tool, commit_info)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_name, commit_id, entry_date) DO NOTHING
		RETURNING id`,
		group, entry.Commit.ID, entry.Date, entry.Tool, commitJSON,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bench_values (entry_id, ordinal, name, value, unit, bench_range, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, b := range entry.Benches {
		if _, err := stmt.ExecContext(ctx, id, i, b.Name, b.Value, b.Unit, b.Range, b.Extra); err != nil {
			return false, fmt.Errorf("failed to insert bench %q: %w", b.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit entry: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"group":  group,
		"commit": entry.Commit.ShortID(),
	}).Debug("Mirrored entry")
	return true, nil
}

// ListEntries returns the newest runs of a group, newest first
func (d *Database) ListEntries(ctx context.Context, group string, limit int) ([]types.Entry, error) {
	query := `
		SELECT id, commit_info, entry_date, tool
		FROM bench_entries
		WHERE group_name = $1
		ORDER BY entry_date DESC, id DESC`
	args := []interface{}{group}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	entries := []types.Entry{}
	for rows.Next() {
		var (
			id         int64
			commitJSON []byte
			entry      types.Entry
		)
		if err := rows.Scan(&id, &commitJSON, &entry.Date, &entry.Tool); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal(commitJSON, &entry.Commit); err != nil {
			return nil, fmt.Errorf("failed to decode commit: %w", err)
		}
		entry.Benches = []types.Bench{}
		ids = append(ids, id)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return entries, nil
	}

	benches, err := d.benchesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if b, ok := benches[id]; ok {
			entries[i].Benches = b
		}
	}
	return entries, nil
}

func (d *Database) benchesFor(ctx context.Context, ids []int64) (map[int64][]types.Bench, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT entry_id, name, value, unit, bench_range, extra
		FROM bench_values
		WHERE entry_id = ANY($1)
		ORDER BY entry_id, ordinal`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query benches: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]types.Bench, len(ids))
	for rows.Next() {
		var (
			id int64
			b  types.Bench
		)
		if err := rows.Scan(&id, &b.Name, &b.Value, &b.Unit, &b.Range, &b.Extra); err != nil {
			return nil, fmt.Errorf("failed to scan bench: %w", err)
		}
		out[id] = append(out[id], b)
	}
	return out, rows.Err()
}

// QuerySeries returns one bench across a group's mirrored runs, oldest
// first. since, in epoch millis, drops older runs when positive.
func (d *Database) QuerySeries(ctx context.Context, group, bench string, since int64) ([]types.SeriesPoint, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT e.entry_date, e.commit_id, v.value, v.unit
		FROM bench_entries e
		JOIN bench_values v ON v.entry_id = e.id
		WHERE e.group_name = $1 AND v.name = $2 AND e.entry_date >= $3
		ORDER BY e.entry_date ASC, e.id ASC`, group, bench, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	points := []types.SeriesPoint{}
	for rows.Next() {
		var p types.SeriesPoint
		if err := rows.Scan(&p.Date, &p.CommitID, &p.Value, &p.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan series point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteGroup removes every mirrored run of a group
func (d *Database) DeleteGroup(ctx context.Context, group string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM bench_entries WHERE group_name = $1`, group)
	if err != nil {
		return 0, fmt.Errorf("failed to delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	d.log.WithFields(logrus.Fields{"group": group, "entries": n}).Info("Deleted mirrored group")
	return n, nil
}
