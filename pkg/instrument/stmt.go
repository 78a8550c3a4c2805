package instrument

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"
)

// Stmt wraps a prepared statement and records each execution.
type Stmt struct {
	parent driver.Stmt
	conn   *Conn
	query  string
}

func (s *Stmt) Close() error {
	return s.parent.Close()
}

func (s *Stmt) NumInput() int {
	return s.parent.NumInput()
}

func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	res, err := s.parent.Exec(args) //nolint:staticcheck
	s.conn.driver.record(EventExec, s.conn.id, s.query, start, time.Now())
	return res, err
}

func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	rows, err := s.parent.Query(args) //nolint:staticcheck
	s.conn.driver.record(EventQuery, s.conn.id, s.query, start, time.Now())
	return rows, err
}

func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	e, ok := s.parent.(driver.StmtExecContext)
	if !ok {
		values, err := namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		return s.Exec(values)
	}
	start := time.Now()
	res, err := e.ExecContext(ctx, args)
	s.conn.driver.record(EventExec, s.conn.id, s.query, start, time.Now())
	return res, err
}

func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := s.parent.(driver.StmtQueryContext)
	if !ok {
		values, err := namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		return s.Query(values)
	}
	start := time.Now()
	rows, err := q.QueryContext(ctx, args)
	s.conn.driver.record(EventQuery, s.conn.id, s.query, start, time.Now())
	return rows, err
}

func (s *Stmt) CheckNamedValue(nv *driver.NamedValue) error {
	if n, ok := s.parent.(driver.NamedValueChecker); ok {
		return n.CheckNamedValue(nv)
	}
	return s.conn.CheckNamedValue(nv)
}

func namedValuesToValues(args []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, len(args))
	for i, a := range args {
		if a.Name != "" {
			return nil, errors.New("parent driver does not support named parameters")
		}
		values[i] = a.Value
	}
	return values, nil
}

var (
	_ driver.Stmt              = &Stmt{}
	_ driver.StmtExecContext   = &Stmt{}
	_ driver.StmtQueryContext  = &Stmt{}
	_ driver.NamedValueChecker = &Stmt{}
)
