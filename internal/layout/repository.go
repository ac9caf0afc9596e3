package layout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Repository defines the interface for layout persistence.
// This abstraction allows the dispatcher to be tested without a database.
type Repository interface {
	// Load reads the whole layout including route usage and loco positions.
	Load(ctx context.Context) (*Layout, error)

	// Import validates l and replaces the stored layout with it in a
	// single transaction.
	Import(ctx context.Context, l *Layout) error

	// IsEmpty reports whether no layout has been stored yet.
	IsEmpty(ctx context.Context) (bool, error)

	// SaveRouteUsage records the usage counters of a route.
	// Returns ErrNotFound if the route does not exist.
	SaveRouteUsage(ctx context.Context, id interlock.ObjectID, usage RouteUsage) error

	// SaveLocoTrack records where a loco stands and which way it faces.
	// Returns ErrNotFound if the loco does not exist.
	SaveLocoTrack(ctx context.Context, id, track interlock.ObjectID, orientation interlock.Orientation) error
}

// SQLiteRepository implements Repository using SQLite. Object
// configurations are stored as JSON; usage and position live in their own
// columns so they can be updated without rewriting the configuration.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// layoutTables lists the tables in dependency-free delete order.
var layoutTables = []string{"locos", "routes", "clusters", "counters", "accessories", "feedbacks", "tracks"}

// IsEmpty reports whether no layout has been stored yet.
func (r *SQLiteRepository) IsEmpty(ctx context.Context) (bool, error) {
	for _, table := range layoutTables {
		var n int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil { //nolint:gosec // Table names are constants
			return false, fmt.Errorf("counting %s: %w", table, err)
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// Import validates l and replaces the stored layout with it.
func (r *SQLiteRepository) Import(ctx context.Context, l *Layout) error {
	if err := Validate(l); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, table := range layoutTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil { //nolint:gosec // Table names are constants
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, c := range l.Tracks {
		if err := insertJSON(ctx, tx, "INSERT INTO tracks (id, name, config) VALUES (?, ?, ?)", c, c.ID, c.Name); err != nil {
			return fmt.Errorf("inserting track %d: %w", c.ID, err)
		}
	}
	for _, c := range l.Feedbacks {
		if err := insertJSON(ctx, tx,
			"INSERT INTO feedbacks (id, name, control_id, pin, config) VALUES (?, ?, ?, ?, ?)",
			c, c.ID, c.Name, c.ControlID, c.Pin); err != nil {
			return fmt.Errorf("inserting feedback %d: %w", c.ID, err)
		}
	}
	for _, c := range l.Accessories {
		if err := insertJSON(ctx, tx,
			"INSERT INTO accessories (id, name, kind, config) VALUES (?, ?, ?, ?)",
			c, c.ID, c.Name, c.Kind.String()); err != nil {
			return fmt.Errorf("inserting accessory %d: %w", c.ID, err)
		}
	}
	for _, c := range l.Counters {
		if err := insertJSON(ctx, tx, "INSERT INTO counters (id, name, config) VALUES (?, ?, ?)", c, c.ID, c.Name); err != nil {
			return fmt.Errorf("inserting counter %d: %w", c.ID, err)
		}
	}
	for _, c := range l.Clusters {
		if err := insertJSON(ctx, tx, "INSERT INTO clusters (id, name, config) VALUES (?, ?, ?)", c, c.ID, c.Name); err != nil {
			return fmt.Errorf("inserting cluster %d: %w", c.ID, err)
		}
	}
	for _, c := range l.Routes {
		usage := l.RouteUsage[c.ID]
		if err := insertJSON(ctx, tx,
			"INSERT INTO routes (id, name, last_used, usage_counter, config) VALUES (?, ?, ?, ?, ?)",
			c, c.ID, c.Name, formatTime(usage.LastUsed), usage.Counter); err != nil {
			return fmt.Errorf("inserting route %d: %w", c.ID, err)
		}
	}
	for _, c := range l.Locos {
		if err := insertJSON(ctx, tx,
			"INSERT INTO locos (id, name, track_id, orientation, config) VALUES (?, ?, ?, ?, ?)",
			c, c.ID, c.Name, c.TrackID, c.Orientation); err != nil {
			return fmt.Errorf("inserting loco %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing layout: %w", err)
	}
	return nil
}

// insertJSON runs query with args followed by cfg encoded as JSON.
func insertJSON(ctx context.Context, tx *sql.Tx, query string, cfg any, args ...any) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, append(args, string(data))...)
	return err
}

// Load reads the whole layout.
func (r *SQLiteRepository) Load(ctx context.Context) (*Layout, error) {
	l := &Layout{RouteUsage: make(map[interlock.ObjectID]RouteUsage)}
	var err error

	if l.Tracks, err = loadConfigs[interlock.TrackConfig](ctx, r.db, "tracks"); err != nil {
		return nil, err
	}
	if l.Feedbacks, err = loadConfigs[interlock.FeedbackConfig](ctx, r.db, "feedbacks"); err != nil {
		return nil, err
	}
	if l.Accessories, err = loadConfigs[interlock.AccessoryConfig](ctx, r.db, "accessories"); err != nil {
		return nil, err
	}
	if l.Counters, err = loadConfigs[interlock.CounterConfig](ctx, r.db, "counters"); err != nil {
		return nil, err
	}
	if l.Clusters, err = loadConfigs[interlock.ClusterConfig](ctx, r.db, "clusters"); err != nil {
		return nil, err
	}
	if err := r.loadRoutes(ctx, l); err != nil {
		return nil, err
	}
	if err := r.loadLocos(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// loadConfigs decodes the config column of every row of table, ordered by id.
func loadConfigs[T any](ctx context.Context, db *sql.DB, table string) ([]T, error) {
	rows, err := db.QueryContext(ctx, "SELECT config FROM "+table+" ORDER BY id") //nolint:gosec // Table names are constants
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		var cfg T
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			return nil, fmt.Errorf("unmarshalling %s config: %w", table, err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", table, err)
	}
	return out, nil
}

func (r *SQLiteRepository) loadRoutes(ctx context.Context, l *Layout) error {
	rows, err := r.db.QueryContext(ctx, "SELECT config, last_used, usage_counter FROM routes ORDER BY id")
	if err != nil {
		return fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			data     string
			lastUsed sql.NullString
			counter  int64
		)
		if err := rows.Scan(&data, &lastUsed, &counter); err != nil {
			return fmt.Errorf("scanning route row: %w", err)
		}
		var cfg interlock.RouteConfig
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			return fmt.Errorf("unmarshalling route config: %w", err)
		}
		l.Routes = append(l.Routes, cfg)

		usage := RouteUsage{Counter: uint64(counter)} //nolint:gosec // Counter is never negative
		if lastUsed.Valid {
			usage.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed.String) //nolint:errcheck // Format is controlled
		}
		if !usage.LastUsed.IsZero() || usage.Counter > 0 {
			l.RouteUsage[cfg.ID] = usage
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating routes: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) loadLocos(ctx context.Context, l *Layout) error {
	rows, err := r.db.QueryContext(ctx, "SELECT config, track_id, orientation FROM locos ORDER BY id")
	if err != nil {
		return fmt.Errorf("querying locos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			data        string
			track       int64
			orientation int64
		)
		if err := rows.Scan(&data, &track, &orientation); err != nil {
			return fmt.Errorf("scanning loco row: %w", err)
		}
		var cfg loco.Config
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			return fmt.Errorf("unmarshalling loco config: %w", err)
		}
		cfg.TrackID = interlock.ObjectID(track)
		cfg.Orientation = interlock.Orientation(orientation)
		l.Locos = append(l.Locos, cfg)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating locos: %w", err)
	}
	return nil
}

// SaveRouteUsage records the usage counters of a route.
func (r *SQLiteRepository) SaveRouteUsage(ctx context.Context, id interlock.ObjectID, usage RouteUsage) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE routes SET last_used = ?, usage_counter = ? WHERE id = ?",
		formatTime(usage.LastUsed), usage.Counter, id)
	if err != nil {
		return fmt.Errorf("updating route usage: %w", err)
	}
	return expectOneRow(result)
}

// SaveLocoTrack records where a loco stands and which way it faces.
func (r *SQLiteRepository) SaveLocoTrack(ctx context.Context, id, track interlock.ObjectID, orientation interlock.Orientation) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE locos SET track_id = ?, orientation = ? WHERE id = ?",
		track, orientation, id)
	if err != nil {
		return fmt.Errorf("updating loco track: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
