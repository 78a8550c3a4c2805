package instrument

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"
)

// Conn wraps a parent connection. Statements executed directly on the
// connection and through prepared statements are both recorded. The id is
// reported as the event's transaction id.
type Conn struct {
	parent driver.Conn
	driver *Driver
	id     string
}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	s, err := c.parent.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &Stmt{parent: s, conn: c, query: query}, nil
}

func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	p, ok := c.parent.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	s, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Stmt{parent: s, conn: c, query: query}, nil
}

func (c *Conn) Close() error {
	return c.parent.Close()
}

func (c *Conn) Begin() (driver.Tx, error) {
	return c.parent.Begin() //nolint:staticcheck
}

func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.parent.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	if opts.ReadOnly || opts.Isolation != driver.IsolationLevel(0) {
		return nil, errors.New("parent driver does not support transaction options")
	}
	return c.parent.Begin() //nolint:staticcheck
}

// ExecContext returns driver.ErrSkip when the parent cannot execute without
// preparing, so database/sql falls back to Prepare and the statement is
// recorded there instead.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.parent.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	res, err := e.ExecContext(ctx, query, args)
	if errors.Is(err, driver.ErrSkip) {
		return nil, err
	}
	c.driver.record(EventExec, c.id, query, start, time.Now())
	return res, err
}

func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.parent.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args)
	if errors.Is(err, driver.ErrSkip) {
		return nil, err
	}
	c.driver.record(EventQuery, c.id, query, start, time.Now())
	return rows, err
}

func (c *Conn) Ping(ctx context.Context) error {
	if p, ok := c.parent.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Conn) ResetSession(ctx context.Context) error {
	if r, ok := c.parent.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *Conn) IsValid() bool {
	if v, ok := c.parent.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	if n, ok := c.parent.(driver.NamedValueChecker); ok {
		return n.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

var (
	_ driver.Conn               = &Conn{}
	_ driver.ConnBeginTx        = &Conn{}
	_ driver.ConnPrepareContext = &Conn{}
	_ driver.ExecerContext      = &Conn{}
	_ driver.QueryerContext     = &Conn{}
	_ driver.Pinger             = &Conn{}
	_ driver.SessionResetter    = &Conn{}
	_ driver.Validator          = &Conn{}
	_ driver.NamedValueChecker  = &Conn{}
)
