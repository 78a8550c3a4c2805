package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/twmb/murmur3"
)

// Payload carries the data attached to an executed statement.
type Payload struct {
	SQL        string   `json:"sql"`
	Source     []string `json:"source,omitempty"`     // caller locations, innermost first
	Connection string   `json:"connection,omitempty"` // driver or container the statement came from
}

// Statement returns the SQL text, reporting false when the payload is nil or
// carries no statement.
func (p *Payload) Statement() (string, bool) {
	if p == nil {
		return "", false
	}
	if strings.TrimSpace(p.SQL) == "" {
		return "", false
	}
	return p.SQL, true
}

// Event is one observed statement execution.
type Event struct {
	Name          string
	StartedAt     time.Time
	FinishedAt    time.Time
	TransactionID string
	Payload       *Payload
}

// Duration is FinishedAt minus StartedAt. It is negative when the timestamps
// arrive out of order; no correction is applied.
func (e Event) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// FingerprintID is a short stable identifier for a fingerprint key, suitable
// for URLs and metric labels.
func FingerprintID(key string) string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(key)))
}
