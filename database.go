package soundcheck

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

const (
	defaultDatabaseStartPriority = 90
	defaultDatabaseEndPriority   = 90
)

// Rows is the minimal result-set surface a post-condition needs.
// *sql.Rows satisfies it natively.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DB is the database collaborator boundary. The sql adapter below covers
// database/sql drivers; db/tarantool covers Tarantool.
type DB interface {
	Exec(ctx context.Context, stmt string) error
	Query(ctx context.Context, stmt string) (Rows, error)
}

type sqlDB struct {
	db *sql.DB
}

// SQLDB adapts a *sql.DB to the DB boundary.
func SQLDB(db *sql.DB) DB {
	return sqlDB{db: db}
}

func (s sqlDB) Exec(ctx context.Context, stmt string) error {
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s sqlDB) Query(ctx context.Context, stmt string) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Statement lazily produces one SQL statement. Suppliers run at start
// time, not configuration time, so side effects of earlier subsystems
// are visible to them.
type Statement func() string

// Stmt wraps a fixed statement as a Statement.
func Stmt(s string) Statement {
	return func() string { return s }
}

// PostCondition is a named check evaluated against the database in the
// end phase: a query, a per-row mapping, and a predicate over the mapped
// value. Build one with QueryCheck.
type PostCondition interface {
	Name() string
	Query() string
	evaluate(ctx context.Context, db DB) Finding
}

type queryCheck[T any] struct {
	name  string
	query string
	scan  func(Rows) (T, error)
	pred  func(T) bool
}

// QueryCheck builds a post-condition: query runs once, scan maps each row
// (called with the cursor already positioned; it must not advance it),
// and pred must hold for every mapped value. Zero rows fail the check:
// a predicate that matched nothing proves nothing.
func QueryCheck[T any](name, query string, scan func(Rows) (T, error), pred func(T) bool) PostCondition {
	return &queryCheck[T]{name: name, query: query, scan: scan, pred: pred}
}

func (c *queryCheck[T]) Name() string  { return c.name }
func (c *queryCheck[T]) Query() string { return c.query }

func (c *queryCheck[T]) evaluate(ctx context.Context, db DB) Finding {
	f := Finding{
		Target: c.query,
		Check:  c.name,
		Kind:   KindPostCondition,
	}

	rows, err := db.Query(ctx, c.query)
	if err != nil {
		f.Detail = fmt.Sprintf("query failed: %v", err)
		return f
	}
	defer rows.Close()

	count := 0
	failed := false
	for rows.Next() {
		v, err := c.scan(rows)
		if err != nil {
			f.Detail = fmt.Sprintf("scan row %d: %v", count+1, err)
			return f
		}
		count++
		if !failed && !c.pred(v) {
			failed = true
			f.Actual = fmt.Sprintf("%v", v)
			f.Detail = fmt.Sprintf("row %d fails predicate", count)
		}
	}
	if err := rows.Err(); err != nil {
		f.Detail = fmt.Sprintf("iterate rows: %v", err)
		return f
	}
	if count == 0 {
		f.Detail = "no rows"
		return f
	}
	if failed {
		return f
	}

	f.OK = true
	f.Detail = fmt.Sprintf("%d rows", count)
	return f
}

type rowCountCheck struct {
	name  string
	query string
	min   int
}

// MinRows builds a post-condition that passes when the query returns at
// least min rows. Row contents are not inspected.
func MinRows(name, query string, min int) PostCondition {
	return &rowCountCheck{name: name, query: query, min: min}
}

func (c *rowCountCheck) Name() string  { return c.name }
func (c *rowCountCheck) Query() string { return c.query }

func (c *rowCountCheck) evaluate(ctx context.Context, db DB) Finding {
	f := Finding{
		Target:   c.query,
		Check:    c.name,
		Kind:     KindPostCondition,
		Expected: fmt.Sprintf("at least %d rows", c.min),
	}

	rows, err := db.Query(ctx, c.query)
	if err != nil {
		f.Detail = fmt.Sprintf("query failed: %v", err)
		return f
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		f.Detail = fmt.Sprintf("iterate rows: %v", err)
		return f
	}

	f.Actual = fmt.Sprintf("%d rows", count)
	if count < c.min {
		return f
	}
	f.OK = true
	return f
}

// ScanInt maps a single-integer row.
func ScanInt(r Rows) (int, error) {
	var n int
	err := r.Scan(&n)
	return n, err
}

// ScanString maps a single-string row.
func ScanString(r Rows) (string, error) {
	var s string
	err := r.Scan(&s)
	return s, err
}

// DatabaseConfig assembles a Database subsystem.
type DatabaseConfig struct {
	// DB is the database collaborator. Required.
	DB     DB
	Logger *zap.Logger
}

// Database owns an ordered list of pre-statements, run fail-fast in the
// start phase, and an ordered list of post-conditions, all evaluated in
// the end phase with failures collected rather than short-circuited.
// Its execution phase is a no-op: before/after cover the subsystem's
// whole contract.
type Database struct {
	db  DB
	log *zap.Logger

	before []Statement
	after  []PostCondition

	startPrio int
	endPrio   int
	sealed    bool
}

// NewDatabase validates cfg and builds the subsystem with priorities
// 90/90.
func NewDatabase(cfg DatabaseConfig) (*Database, error) {
	if cfg.DB == nil {
		return nil, configErrorf("database requires a DB")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Database{
		db:        cfg.DB,
		log:       log,
		startPrio: defaultDatabaseStartPriority,
		endPrio:   defaultDatabaseEndPriority,
	}, nil
}

// SetPriorities overrides the default start/end priorities.
func (d *Database) SetPriorities(start, end int) error {
	if d.sealed {
		return configErrorf("database already ran")
	}
	if !validPriority(start) || !validPriority(end) {
		return configErrorf("database priorities %d/%d out of range [%d,%d]",
			start, end, MinPriority, MaxPriority)
	}
	d.startPrio = start
	d.endPrio = end
	return nil
}

func (d *Database) Name() string       { return "database" }
func (d *Database) StartPriority() int { return d.startPrio }
func (d *Database) EndPriority() int   { return d.endPrio }

// BeforeRun appends pre-statements; order of addition is order of
// execution.
func (d *Database) BeforeRun(stmts ...Statement) error {
	if d.sealed {
		return configErrorf("database already ran, cannot add pre-statements")
	}
	for _, s := range stmts {
		if s == nil {
			return configErrorf("nil pre-statement")
		}
	}
	d.before = append(d.before, stmts...)
	return nil
}

// AfterRun appends post-conditions; order of addition is order of
// evaluation.
func (d *Database) AfterRun(checks ...PostCondition) error {
	if d.sealed {
		return configErrorf("database already ran, cannot add post-conditions")
	}
	for _, c := range checks {
		if c == nil {
			return configErrorf("nil post-condition")
		}
	}
	d.after = append(d.after, checks...)
	return nil
}

// Start resolves each statement supplier now and executes it. The first
// error aborts: the scenario must not run against half-prepared state.
func (d *Database) Start(ctx context.Context) error {
	d.sealed = true
	for i, supply := range d.before {
		stmt := supply()
		d.log.Debug("pre-statement",
			zap.Int("index", i+1),
			zap.String("stmt", stmt))
		if err := d.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pre-statement %d: %w", i+1, err)
		}
	}
	return nil
}

// Execute is a no-op; the database subsystem acts only in start and end.
func (d *Database) Execute(context.Context) error { return nil }

// End evaluates every post-condition, never stopping early; a failing
// query is recorded as a failed finding, not an error.
func (d *Database) End(ctx context.Context, rep *Report) error {
	for _, c := range d.after {
		f := c.evaluate(ctx, d.db)
		f.Subsystem = d.Name()
		rep.Append(f)
		d.log.Debug("post-condition",
			zap.String("check", c.Name()),
			zap.Bool("ok", f.OK))
	}
	return nil
}
