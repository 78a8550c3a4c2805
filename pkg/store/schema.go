package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Snapshot is a saved copy of the tracking table.
type Snapshot struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	TakenAt         time.Time         `gorm:"not null" json:"takenAt"`
	Label           string            `json:"label"`
	Host            string            `json:"host,omitempty"`
	Fingerprints    int               `json:"fingerprints"`
	Queries         int64             `json:"queries"`
	TotalDurationMS float64           `json:"totalDurationMs"`
	Stats           []FingerprintStat `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE" json:"stats,omitempty"`
}

// FingerprintStat is one fingerprint's record inside a snapshot.
type FingerprintStat struct {
	ID              uint     `gorm:"primaryKey" json:"-"`
	SnapshotID      uint     `gorm:"index;not null" json:"snapshotId"`
	FingerprintID   string   `gorm:"index;not null" json:"fingerprintId"`
	Fingerprint     string   `gorm:"not null" json:"fingerprint"`
	SQL             string   `gorm:"column:sql;not null" json:"sql"`
	Count           int64    `json:"count"`
	TotalDurationMS float64  `json:"totalDurationMs"`
	LastDurationMS  float64  `json:"lastDurationMs"`
	Sources         []string `gorm:"serializer:json" json:"sources,omitempty"`
}

// HistoryPoint is a fingerprint's totals as of one snapshot.
type HistoryPoint struct {
	SnapshotID      uint      `json:"snapshotId"`
	TakenAt         time.Time `json:"takenAt"`
	Count           int64     `json:"count"`
	TotalDurationMS float64   `json:"totalDurationMs"`
}

// migrate applies the embedded goose migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("[store] applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}
