package instrument

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"slices"
	"sync"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"sql-tracker/pkg/tracker"
)

// Parent driver names accepted by Parent.
const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

// Parent returns a fresh instance of a supported parent driver.
func Parent(name string) (driver.Driver, error) {
	switch name {
	case Postgres:
		return &pq.Driver{}, nil
	case SQLite:
		return &sqlite3.SQLiteDriver{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q (want %s or %s)", name, Postgres, SQLite)
}

// TrackedName is the name a parent driver is first registered under by
// RegisterParent.
func TrackedName(parent string) string {
	return parent + "-tracked"
}

var registerMu sync.Mutex

// RegisterParent registers the named parent driver wrapped for h and returns
// the registered name. database/sql cannot unregister drivers, so later calls
// for the same parent get a numbered name.
func RegisterParent(parent string, h *tracker.Handler) (string, error) {
	d, err := Parent(parent)
	if err != nil {
		return "", err
	}

	registerMu.Lock()
	defer registerMu.Unlock()

	name := TrackedName(parent)
	for i := 2; slices.Contains(sql.Drivers(), name); i++ {
		name = fmt.Sprintf("%s-%d", TrackedName(parent), i)
	}
	Register(name, d, h)
	return name, nil
}
