package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
)

// Store persists engine reports to SQLite. It implements engine.Observer:
// reports are buffered during a tick and written in one transaction when
// the tick completes.
type Store struct {
	engine.NopObserver

	db     *sql.DB
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	pending []*Record
	now     func() time.Time
}

// Open opens or creates the journal database at cfg.Path.
func Open(cfg *config.JournalConfig, logger *slog.Logger) (*Store, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	busy := cfg.BusyTimeout
	if busy == 0 {
		busy = config.DefaultJournalBusyTimeout
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "mkdir", Err: err}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1) // SQLite only supports a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: logger.With("component", "journal"),
		now:    time.Now,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("journal opened", "path", cfg.Path)
	return s, nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return &StorageError{Op: "create_schema", Err: err}
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return &StorageError{Op: "insert_schema_version", Err: err}
	}
	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return &StorageError{Op: "get_schema_version", Err: err}
	}
	if version != SchemaVersion {
		return &StorageError{Op: "schema_version_mismatch",
			Err: fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version)}
	}
	return nil
}

func (s *Store) add(r *Record) {
	r.ID = uuid.NewString()
	r.RecordedAt = s.now()
	s.mu.Lock()
	s.pending = append(s.pending, r)
	s.mu.Unlock()
}

// RuleFired buffers a firing record. Nothing is written until the tick
// completes.
func (s *Store) RuleFired(_ context.Context, f engine.Firing) {
	s.add(&Record{
		Kind:    KindFiring,
		Tick:    f.Tick,
		Pass:    f.Pass,
		RuleID:  f.RuleID,
		Event:   f.Event.Name,
		EventID: f.Event.ID,
		Actions: f.Actions,
		Outputs: f.Outputs,
		Changed: f.Changed,
	})
}

// RuleError buffers an error record carrying the failing phase and the
// stable error kind from engine.Kind.
func (s *Store) RuleError(_ context.Context, err *engine.RuleError) {
	s.add(&Record{
		Kind:      KindError,
		RuleID:    err.RuleID,
		Event:     err.Event,
		EventID:   err.EventID,
		Phase:     string(err.Phase),
		ErrorKind: engine.Kind(err),
		Message:   err.Cause.Error(),
	})
}

// CascadeOverflow buffers an overflow record. Pass holds the depth that was
// exceeded and RuleID the rule whose output would have started it.
func (s *Store) CascadeOverflow(_ context.Context, err *engine.CascadeDepthError) {
	s.add(&Record{
		Kind:      KindOverflow,
		Pass:      err.Depth,
		RuleID:    err.SourceRule,
		Event:     err.Event,
		ErrorKind: engine.KindCascadeDepthExceeded,
		Message:   err.Error(),
	})
}

// TickCompleted writes the records buffered during the tick. Records
// without a tick number take the report's.
func (s *Store) TickCompleted(ctx context.Context, report *engine.TickReport) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	for _, r := range batch {
		if r.Tick == 0 {
			r.Tick = report.Tick
		}
	}
	if err := s.Write(ctx, batch); err != nil {
		s.logger.ErrorContext(ctx, "failed to write journal records",
			"tick", report.Tick,
			"records", len(batch),
			"error", err,
		)
	}
}

// Write stores records in one transaction.
func (s *Store) Write(ctx context.Context, records []*Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return &StorageError{Op: "prepare", Err: err}
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.RecordedAt.IsZero() {
			r.RecordedAt = s.now()
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, string(r.Kind), int64(r.Tick), r.Pass,
			nullString(r.RuleID), r.Event, nullString(r.EventID),
			nullString(r.Phase), nullString(r.ErrorKind), nullString(r.Message),
			jsonList(r.Actions), jsonList(r.Outputs), r.Changed,
			r.RecordedAt.UnixNano(),
		)
		if err != nil {
			return &StorageError{Op: "insert", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	return nil
}

// Query returns the records matching f, newest first.
func (s *Store) Query(ctx context.Context, f *Filter) ([]*Record, error) {
	if f == nil {
		f = &Filter{}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	where, args := buildWhere(f)
	limit := f.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	q := "SELECT " + selectColumns + " FROM records" + where +
		fmt.Sprintf(" ORDER BY seq DESC LIMIT %d", limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return out, nil
}

// Count returns the number of records matching f. Limit is ignored.
func (s *Store) Count(ctx context.Context, f *Filter) (int64, error) {
	if f == nil {
		f = &Filter{}
	}
	if err := f.Validate(); err != nil {
		return 0, err
	}
	where, args := buildWhere(f)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+where, args...).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// Prune deletes records older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE recorded_at < ?", before.UnixNano())
	if err != nil {
		return 0, &StorageError{Op: "prune", Err: err}
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.InfoContext(ctx, "journal pruned", "deleted_count", n)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Records buffered for an unfinished tick are
// dropped.
func (s *Store) Close() error {
	return s.db.Close()
}

func buildWhere(f *Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.RuleID != "" {
		conds = append(conds, "rule_id = ?")
		args = append(args, f.RuleID)
	}
	if f.Event != "" {
		conds = append(conds, "event = ?")
		args = append(args, f.Event)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "recorded_at < ?")
		args = append(args, f.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		r        Record
		kind     string
		tick     int64
		recorded int64
		ruleID   sql.NullString
		eventID  sql.NullString
		phase    sql.NullString
		errKind  sql.NullString
		msg      sql.NullString
		actions  sql.NullString
		outputs  sql.NullString
	)
	err := rows.Scan(&r.ID, &kind, &tick, &r.Pass, &ruleID, &r.Event, &eventID,
		&phase, &errKind, &msg, &actions, &outputs, &r.Changed, &recorded)
	if err != nil {
		return nil, err
	}
	r.Kind = Kind(kind)
	r.Tick = uint64(tick)
	r.RuleID = ruleID.String
	r.EventID = eventID.String
	r.Phase = phase.String
	r.ErrorKind = errKind.String
	r.Message = msg.String
	r.RecordedAt = time.Unix(0, recorded)
	if actions.Valid {
		if err := json.Unmarshal([]byte(actions.String), &r.Actions); err != nil {
			return nil, err
		}
	}
	if outputs.Valid {
		if err := json.Unmarshal([]byte(outputs.String), &r.Outputs); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonList(v []string) any {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}
