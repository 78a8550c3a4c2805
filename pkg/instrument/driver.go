// Package instrument wraps database/sql drivers so that every statement they
// execute is reported to a tracker.Handler.
//
//	h := tracker.NewHandler(cfg)
//	instrument.Register("postgres-tracked", &pq.Driver{}, h)
//	db, err := sql.Open("postgres-tracked", dsn)
package instrument

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sql-tracker/pkg/tracker"
)

// Event names reported to the handler.
const (
	EventExec  = "sql.exec"
	EventQuery = "sql.query"
)

// Driver is a driver.Driver that records statements run through its
// connections.
type Driver struct {
	parent  driver.Driver
	handler *tracker.Handler
	name    string
}

// Wrap returns a driver that delegates to parent and reports to h.
func Wrap(parent driver.Driver, h *tracker.Handler) *Driver {
	return &Driver{
		parent:  parent,
		handler: h,
		name:    fmt.Sprintf("%T", parent),
	}
}

// Register wraps parent and registers it with database/sql under name. Like
// sql.Register it panics when name is already taken.
func Register(name string, parent driver.Driver, h *tracker.Handler) {
	d := Wrap(parent, h)
	d.name = name
	sql.Register(name, d)
}

// Open opens a parent connection and wraps it.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	c, err := d.parent.Open(dsn)
	if err != nil {
		return nil, err
	}
	return &Conn{parent: c, driver: d, id: uuid.NewString()}, nil
}

func (d *Driver) record(name, connID, query string, start, end time.Time) {
	if d.handler == nil {
		return
	}
	d.handler.Call(name, start, end, connID, &tracker.Payload{
		SQL:        query,
		Source:     callers(),
		Connection: d.name,
	})
}

var _ driver.Driver = &Driver{}
