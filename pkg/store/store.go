package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"sql-tracker/pkg/tracker"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists tracking table snapshots in SQLite.
type Store struct {
	db *gorm.DB
}

type options struct {
	driverName string
}

// Option configures Open.
type Option func(*options)

// WithDriverName opens the database through a registered database/sql driver
// other than "sqlite3", such as an instrumented wrapper.
func WithDriverName(name string) Option {
	return func(o *options) {
		o.driverName = name
	}
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dialector := sqlite.New(sqlite.Config{
		DriverName: o.driverName,
		DSN:        path + "?_foreign_keys=on",
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:          logger.Default.LogMode(logger.Silent),
		CreateBatchSize: 200,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	slog.Info("[store] opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSnapshot stores data under a new snapshot and returns it with its stats.
func (s *Store) SaveSnapshot(ctx context.Context, label string, data map[string]tracker.Record) (*Snapshot, error) {
	host, _ := os.Hostname()
	snap := &Snapshot{
		TakenAt: time.Now().UTC(),
		Label:   label,
		Host:    host,
		Stats:   make([]FingerprintStat, 0, len(data)),
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := data[key]
		snap.Fingerprints++
		snap.Queries += rec.Count
		snap.TotalDurationMS += millis(rec.TotalDuration)
		snap.Stats = append(snap.Stats, FingerprintStat{
			FingerprintID:   tracker.FingerprintID(key),
			Fingerprint:     key,
			SQL:             rec.SQL,
			Count:           rec.Count,
			TotalDurationMS: millis(rec.TotalDuration),
			LastDurationMS:  millis(rec.LastDuration),
			Sources:         rec.Sources,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(snap).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	slog.Debug("[store] saved snapshot", "id", snap.ID, "fingerprints", snap.Fingerprints, "queries", snap.Queries)
	return snap, nil
}

// ListSnapshots returns snapshot headers, newest first, without their stats.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	q := s.db.WithContext(ctx).Order("taken_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var snaps []Snapshot
	if err := q.Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}

// GetSnapshot returns the snapshot with its stats ordered by count, or nil if
// it does not exist.
func (s *Store) GetSnapshot(ctx context.Context, id uint) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).
		Preload("Stats", func(db *gorm.DB) *gorm.DB {
			return db.Order("count DESC").Order("fingerprint")
		}).
		First(&snap, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snap, nil
}

// FingerprintHistory returns the totals recorded for one fingerprint across
// snapshots, oldest first.
func (s *Store) FingerprintHistory(ctx context.Context, fingerprintID string) ([]HistoryPoint, error) {
	var points []HistoryPoint
	err := s.db.WithContext(ctx).
		Table("fingerprint_stats").
		Select("snapshots.id AS snapshot_id, snapshots.taken_at, fingerprint_stats.count, fingerprint_stats.total_duration_ms").
		Joins("JOIN snapshots ON snapshots.id = fingerprint_stats.snapshot_id").
		Where("fingerprint_stats.fingerprint_id = ?", fingerprintID).
		Order("snapshots.taken_at ASC").
		Order("snapshots.id ASC").
		Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint history: %w", err)
	}
	return points, nil
}

// DeleteSnapshotsBefore removes snapshots taken before cutoff and returns how
// many were removed.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&Snapshot{}).Select("id").Where("taken_at < ?", cutoff.UTC())
		if err := tx.Where("snapshot_id IN (?)", old).Delete(&FingerprintStat{}).Error; err != nil {
			return err
		}
		res := tx.Where("taken_at < ?", cutoff.UTC()).Delete(&Snapshot{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return deleted, nil
}

// Records converts a snapshot's stats back into a tracking table.
func (snap *Snapshot) Records() map[string]tracker.Record {
	out := make(map[string]tracker.Record, len(snap.Stats))
	for _, st := range snap.Stats {
		out[st.Fingerprint] = tracker.Record{
			SQL:           st.SQL,
			Count:         st.Count,
			TotalDuration: duration(st.TotalDurationMS),
			LastDuration:  duration(st.LastDurationMS),
			Sources:       append([]string(nil), st.Sources...),
			FirstSeen:     snap.TakenAt,
			LastSeen:      snap.TakenAt,
		}
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func duration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
