/*
Package sqlite provides a SQLite-backed implementation of inventory.Store.

PURPOSE:
  Persists label records, the movement log and reconciliation records with
  database/sql over mattn/go-sqlite3. The same schema ports to PostgreSQL
  with minor dialect changes.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on movements or reconciliations
  - labels rows are upserted, guarded by the version column
  - Corrections are new movements

KEY TABLES:
  labels:          One row per (location, label); units stored as JSON
  movements:       Immutable log; seq AUTOINCREMENT is the insertion order
  reconciliations: At most one row per (location, label, shift)

INDEXES:
  - idx_movements_location_shift: shift worklist and oversight (hot path)
  - idx_movements_location_label: label history and replay
  - idx_reconciliations_unique:   one close per label and shift

ATOMICITY:
  Apply() runs the version checks, the label upserts and the movement
  inserts in ONE sql transaction, labels before movements.

CONCURRENCY:
  Writes are serialized with a mutex; SQLite allows one writer anyway. The
  version column catches writers in other processes.

WAL MODE:
  Opened with WAL so readers never block the writer.

USAGE:
  store, err := sqlite.New("./data/barstock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := inventory.NewLedger(store, catalog)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/shift"
)

// Timestamps are stored as fixed-width UTC text so they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements inventory.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Current state per (location, label)
	CREATE TABLE IF NOT EXISTS labels (
		location TEXT NOT NULL,
		label_key TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		units_json TEXT NOT NULL,
		opening_weight TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (location, label_key)
	);

	-- Movements (append-only log)
	CREATE TABLE IF NOT EXISTS movements (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		location TEXT NOT NULL,
		label TEXT NOT NULL,
		label_key TEXT NOT NULL,
		category TEXT NOT NULL,
		kind TEXT NOT NULL,
		actor TEXT NOT NULL,
		proof_url TEXT,
		ts TEXT NOT NULL,
		shift_id TEXT NOT NULL,
		total_after TEXT NOT NULL,
		detail_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_location_shift
		ON movements(location, shift_id);
	CREATE INDEX IF NOT EXISTS idx_movements_location_label
		ON movements(location, label_key);

	-- Reconciliations (append-only, one per label and shift)
	CREATE TABLE IF NOT EXISTS reconciliations (
		id TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		label TEXT NOT NULL,
		label_key TEXT NOT NULL,
		category TEXT NOT NULL,
		shift_id TEXT NOT NULL,
		closing_weight TEXT NOT NULL,
		expected_weight TEXT NOT NULL,
		difference TEXT NOT NULL,
		mismatch INTEGER NOT NULL,
		proof_url TEXT NOT NULL,
		actor TEXT NOT NULL,
		ts TEXT NOT NULL
	);

	-- CRITICAL: a label is reconciled at most once per shift
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reconciliations_unique
		ON reconciliations(location, label_key, shift_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LABELS
// =============================================================================

type unitRow struct {
	ID        string          `json:"id"`
	Weight    decimal.Decimal `json:"weight"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Store) GetLabel(ctx context.Context, loc inventory.LocationID, label string) (*inventory.LabelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT location, name, category, active, units_json, opening_weight, version, updated_at
		FROM labels
		WHERE location = ? AND label_key = ?
	`, loc, labelKey(label))
	if err != nil {
		return nil, fmt.Errorf("failed to query label: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanLabel(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListLabels(ctx context.Context, loc inventory.LocationID) ([]inventory.LabelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT location, name, category, active, units_json, opening_weight, version, updated_at
		FROM labels
		WHERE location = ?
		ORDER BY name ASC
	`, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	var result []inventory.LabelRecord
	for rows.Next() {
		rec, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) ListLocations(ctx context.Context) ([]inventory.LocationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT location FROM labels ORDER BY location`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var result []inventory.LocationID
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		result = append(result, inventory.LocationID(loc))
	}
	return result, rows.Err()
}

func scanLabel(rows *sql.Rows) (inventory.LabelRecord, error) {
	var (
		rec       inventory.LabelRecord
		loc       string
		active    int
		unitsJSON string
		opening   string
		updatedAt string
	)
	err := rows.Scan(&loc, &rec.Name, &rec.Category, &active, &unitsJSON, &opening, &rec.Version, &updatedAt)
	if err != nil {
		return rec, fmt.Errorf("failed to scan label: %w", err)
	}

	var units []unitRow
	if err := json.Unmarshal([]byte(unitsJSON), &units); err != nil {
		return rec, fmt.Errorf("decode units of %s: %w", rec.Name, err)
	}
	for _, u := range units {
		rec.Units = append(rec.Units, inventory.Unit{ID: u.ID, Weight: u.Weight, CreatedAt: u.CreatedAt})
	}
	rec.Location = inventory.LocationID(loc)
	rec.Active = active != 0
	if rec.OpeningWeight, err = decimal.NewFromString(opening); err != nil {
		return rec, fmt.Errorf("decode opening weight of %s: %w", rec.Name, err)
	}
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

// =============================================================================
// APPLY - Ledger then log, one transaction
// =============================================================================

// Apply commits label records then movements atomically.
func (s *Store) Apply(ctx context.Context, changes []inventory.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, c := range changes {
		if err := s.putLabel(ctx, sqlTx, c); err != nil {
			return err
		}
	}

	seqs := make([][]int64, len(changes))
	for i, c := range changes {
		for _, m := range c.Movements {
			seq, err := s.insertMovement(ctx, sqlTx, m)
			if err != nil {
				return err
			}
			seqs[i] = append(seqs[i], seq)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	for i := range changes {
		for j, seq := range seqs[i] {
			changes[i].Movements[j].Seq = seq
		}
	}
	return nil
}

func (s *Store) putLabel(ctx context.Context, tx *sql.Tx, c inventory.Change) error {
	rec := c.Record
	key := labelKey(rec.Name)

	var current int64
	err := tx.QueryRowContext(ctx,
		"SELECT version FROM labels WHERE location = ? AND label_key = ?",
		rec.Location, key,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read label version: %w", err)
	}
	if current != c.ExpectedVersion {
		return inventory.ErrConcurrentModification
	}

	units := make([]unitRow, len(rec.Units))
	for i, u := range rec.Units {
		units[i] = unitRow{ID: u.ID, Weight: u.Weight, CreatedAt: u.CreatedAt.UTC()}
	}
	unitsJSON, err := json.Marshal(units)
	if err != nil {
		return fmt.Errorf("encode units of %s: %w", rec.Name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO labels
		(location, label_key, name, category, active, units_json, opening_weight, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, label_key) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			active = excluded.active,
			units_json = excluded.units_json,
			opening_weight = excluded.opening_weight,
			version = excluded.version,
			updated_at = excluded.updated_at
	`,
		rec.Location,
		key,
		rec.Name,
		rec.Category,
		boolInt(rec.Active),
		string(unitsJSON),
		rec.OpeningWeight.String(),
		c.ExpectedVersion+1,
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save label: %w", err)
	}
	return nil
}

func (s *Store) insertMovement(ctx context.Context, tx *sql.Tx, m inventory.Movement) (int64, error) {
	detailJSON, err := inventory.MarshalDetail(m.Detail)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO movements
		(id, location, label, label_key, category, kind, actor, proof_url, ts, shift_id, total_after, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		m.Location,
		m.Label,
		labelKey(m.Label),
		m.Category,
		m.Kind(),
		m.Actor,
		nullString(m.ProofURL),
		formatTime(m.Timestamp),
		m.Shift,
		m.TotalAfter.String(),
		string(detailJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append movement: %w", err)
	}
	return res.LastInsertId()
}

// =============================================================================
// MOVEMENTS
// =============================================================================

const movementColumns = `seq, id, location, label, category, kind, actor, proof_url, ts, shift_id, total_after, detail_json`

func (s *Store) LoadMovementsByShift(ctx context.Context, loc inventory.LocationID, sh shift.ID) ([]inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMovements(ctx, `
		SELECT `+movementColumns+`
		FROM movements
		WHERE location = ? AND shift_id = ?
		ORDER BY seq ASC
	`, loc, sh)
}

func (s *Store) LoadMovementsByLabel(ctx context.Context, loc inventory.LocationID, label string) ([]inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMovements(ctx, `
		SELECT `+movementColumns+`
		FROM movements
		WHERE location = ? AND label_key = ?
		ORDER BY seq ASC
	`, loc, labelKey(label))
}

func (s *Store) queryMovements(ctx context.Context, query string, args ...any) ([]inventory.Movement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []inventory.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (inventory.Movement, error) {
	var (
		m          inventory.Movement
		loc        string
		kind       string
		actor      string
		proofURL   sql.NullString
		ts         string
		shiftID    string
		totalAfter string
		detailJSON string
	)
	err := rows.Scan(&m.Seq, &m.ID, &loc, &m.Label, &m.Category, &kind, &actor,
		&proofURL, &ts, &shiftID, &totalAfter, &detailJSON)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	m.Location = inventory.LocationID(loc)
	m.Actor = inventory.ActorID(actor)
	m.ProofURL = proofURL.String
	m.Timestamp = parseTime(ts)
	m.Shift = shift.ID(shiftID)
	if m.TotalAfter, err = decimal.NewFromString(totalAfter); err != nil {
		return m, fmt.Errorf("decode total of movement %s: %w", m.ID, err)
	}
	if m.Detail, err = inventory.UnmarshalDetail(inventory.ActionKind(kind), []byte(detailJSON)); err != nil {
		return m, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	return m, nil
}

// =============================================================================
// RECONCILIATIONS
// =============================================================================

func (s *Store) LoadReconciliations(ctx context.Context, loc inventory.LocationID, sh shift.ID) ([]inventory.ReconciliationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location, label, category, shift_id, closing_weight, expected_weight,
		       difference, mismatch, proof_url, actor, ts
		FROM reconciliations
		WHERE location = ? AND shift_id = ?
		ORDER BY ts ASC, label ASC
	`, loc, sh)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliations: %w", err)
	}
	defer rows.Close()

	var result []inventory.ReconciliationRecord
	for rows.Next() {
		var (
			r                       inventory.ReconciliationRecord
			loc, shiftID, actor, ts string
			closing, expected, diff string
			mismatch                int
		)
		if err := rows.Scan(&r.ID, &loc, &r.Label, &r.Category, &shiftID, &closing, &expected,
			&diff, &mismatch, &r.ProofURL, &actor, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
		}
		r.Location = inventory.LocationID(loc)
		r.Shift = shift.ID(shiftID)
		r.Actor = inventory.ActorID(actor)
		r.Timestamp = parseTime(ts)
		r.Mismatch = mismatch != 0
		r.ClosingWeight = mustDecimal(closing)
		r.ExpectedWeight = mustDecimal(expected)
		r.Difference = mustDecimal(diff)
		result = append(result, r)
	}
	return result, rows.Err()
}

// SaveReconciliations inserts all records or none.
func (s *Store) SaveReconciliations(ctx context.Context, recs []inventory.ReconciliationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, r := range recs {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO reconciliations
			(id, location, label, label_key, category, shift_id, closing_weight, expected_weight,
			 difference, mismatch, proof_url, actor, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID,
			r.Location,
			r.Label,
			labelKey(r.Label),
			r.Category,
			r.Shift,
			r.ClosingWeight.String(),
			r.ExpectedWeight.String(),
			r.Difference.String(),
			boolInt(r.Mismatch),
			r.ProofURL,
			r.Actor,
			formatTime(r.Timestamp),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &inventory.AlreadyReconciledError{Label: r.Label, Shift: r.Shift}
			}
			return fmt.Errorf("failed to save reconciliation: %w", err)
		}
	}

	return sqlTx.Commit()
}

var _ inventory.Store = (*Store)(nil)

// Helper functions

func labelKey(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
