package nrsql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// ---------------- Driver registration ----------------

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]driver.Driver)
)

// Option configures a registered driver.
type Option func(*options)

type options struct {
	product newrelic.DatastoreProduct
}

// WithProduct sets the datastore product reported on query segments.
// The default is Postgres, the host's native database.
func WithProduct(p newrelic.DatastoreProduct) Option {
	return func(o *options) {
		o.product = p
	}
}

// Register wraps the provided driver with tracing logic and registers it in
// database/sql under the given name. Queries run against connections opened
// through the wrapped driver report datastore segments on the transaction in
// their context and feed the per-request query log. Typical usage:
//
//	import "github.com/lib/pq"
//	nrsql.Register("postgres-nr", &pq.Driver{})
//	db, _ := sql.Open("postgres-nr", dsn)
//
// Panics if the driver is nil or the name is already taken.
func Register(name string, d driver.Driver, opts ...Option) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if d == nil {
		panic("nrsql: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("nrsql: Register called twice for driver " + name)
	}

	o := &options{product: newrelic.DatastorePostgres}
	for _, opt := range opts {
		opt(o)
	}

	drivers[name] = d
	sql.Register(name, &nrDriver{realDriver: d, opts: o})
}

// ---------------- Driver wrappers ----------------

type nrDriver struct {
	realDriver driver.Driver
	opts       *options
}

func (d *nrDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.realDriver.Open(name)
	if err != nil {
		return nil, err
	}
	return &nrConn{realConn: conn, opts: d.opts}, nil
}

type nrConn struct {
	realConn driver.Conn
	opts     *options
}

func (c *nrConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.realConn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &nrStmt{realStmt: stmt, query: query, opts: c.opts}, nil
}

func (c *nrConn) Close() error              { return c.realConn.Close() }
func (c *nrConn) Begin() (driver.Tx, error) { return c.realConn.Begin() }

// Context-aware exec/query
func (c *nrConn) QueryContext(ctx context.Context, q string, a []driver.NamedValue) (driver.Rows, error) {
	if qx, ok := c.realConn.(driver.QueryerContext); ok {
		end := startSegment(ctx, c.opts.product, q)
		start := time.Now()
		rows, err := qx.QueryContext(ctx, q, a)
		end()
		recordQuery(ctx, q, time.Since(start))
		return rows, err
	}
	return nil, driver.ErrSkip
}

func (c *nrConn) ExecContext(ctx context.Context, q string, a []driver.NamedValue) (driver.Result, error) {
	if ex, ok := c.realConn.(driver.ExecerContext); ok {
		end := startSegment(ctx, c.opts.product, q)
		start := time.Now()
		res, err := ex.ExecContext(ctx, q, a)
		end()
		recordQuery(ctx, q, time.Since(start))
		return res, err
	}
	return nil, driver.ErrSkip
}

type nrStmt struct {
	realStmt driver.Stmt
	query    string
	opts     *options
}

func (s *nrStmt) Close() error                                     { return s.realStmt.Close() }
func (s *nrStmt) NumInput() int                                    { return s.realStmt.NumInput() }
func (s *nrStmt) Exec(args []driver.Value) (driver.Result, error)  { return s.realStmt.Exec(args) }
func (s *nrStmt) Query(args []driver.Value) (driver.Rows, error)   { return s.realStmt.Query(args) }

func (s *nrStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	end := startSegment(ctx, s.opts.product, s.query)
	start := time.Now()
	var res driver.Result
	var err error
	if ex, ok := s.realStmt.(driver.StmtExecContext); ok {
		res, err = ex.ExecContext(ctx, args)
	} else {
		res, err = s.realStmt.Exec(namedValueToValue(args))
	}
	end()
	recordQuery(ctx, s.query, time.Since(start))
	return res, err
}

func (s *nrStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	end := startSegment(ctx, s.opts.product, s.query)
	start := time.Now()
	var rows driver.Rows
	var err error
	if qx, ok := s.realStmt.(driver.StmtQueryContext); ok {
		rows, err = qx.QueryContext(ctx, args)
	} else {
		rows, err = s.realStmt.Query(namedValueToValue(args))
	}
	end()
	recordQuery(ctx, s.query, time.Since(start))
	return rows, err
}

// startSegment opens a datastore segment on the transaction in ctx, if any,
// and returns the function that closes it.
func startSegment(ctx context.Context, product newrelic.DatastoreProduct, query string) func() {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return func() {}
	}
	seg := &newrelic.DatastoreSegment{
		StartTime:          txn.StartSegmentNow(),
		Product:            product,
		Operation:          queryOperation(query),
		ParameterizedQuery: query,
	}
	return seg.End
}

// queryOperation extracts the leading SQL verb ("select", "insert", ...).
func queryOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func namedValueToValue(named []driver.NamedValue) []driver.Value {
	vs := make([]driver.Value, len(named))
	for i, nv := range named {
		vs[i] = nv.Value
	}
	return vs
}
