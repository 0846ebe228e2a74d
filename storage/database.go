package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Relational state backend (SQLite or PostgreSQL)
// ═══════════════════════════════════════════════════════════════════════════════

// Database stores snapshots in two tables via gorm
type Database struct {
	db *gorm.DB
}

// Models

// AlertedIdentity is one row of the alerted set
type AlertedIdentity struct {
	Identity  string `gorm:"primaryKey"`
	AlertedAt time.Time
}

// TableName pins the table name
func (AlertedIdentity) TableName() string { return "alerted_identities" }

// TrackedEntry is one row of the tracking map
type TrackedEntry struct {
	Identity          string `gorm:"primaryKey"`
	MessageHandle     string
	EntryMarketCapUSD float64
	EntryLiquidityUSD float64
	SymbolLabel       string
	Address           string
	Chain             string
	Reported          bool
	TrackedAt         time.Time `gorm:"index"`
}

// TableName pins the table name
func (TrackedEntry) TableName() string { return "tracking_entries" }

// NewDatabase opens dsn. postgres:// URLs use PostgreSQL, anything else is a
// SQLite file path.
func NewDatabase(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		log.Info().Msg("💾 State database connected (PostgreSQL)")
	} else {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		log.Info().Str("path", dsn).Msg("💾 State database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&AlertedIdentity{}, &TrackedEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Database{db: db}, nil
}

// Load reads both tables into a snapshot
func (d *Database) Load(ctx context.Context) (*types.Snapshot, error) {
	var alerted []AlertedIdentity
	if err := d.db.WithContext(ctx).Find(&alerted).Error; err != nil {
		return nil, fmt.Errorf("failed to load alerted: %w", err)
	}
	var tracked []TrackedEntry
	if err := d.db.WithContext(ctx).Find(&tracked).Error; err != nil {
		return nil, fmt.Errorf("failed to load tracking: %w", err)
	}

	snap := types.NewSnapshot()
	for _, a := range alerted {
		snap.Alerted = append(snap.Alerted, a.Identity)
		if !a.AlertedAt.IsZero() {
			snap.AlertedAt[a.Identity] = a.AlertedAt.UTC()
		}
	}
	sort.Strings(snap.Alerted)

	for _, t := range tracked {
		snap.Tracking[t.Identity] = types.TrackingEntry{
			MessageHandle:     t.MessageHandle,
			EntryMarketCapUSD: t.EntryMarketCapUSD,
			EntryLiquidityUSD: t.EntryLiquidityUSD,
			SymbolLabel:       t.SymbolLabel,
			Address:           t.Address,
			Chain:             t.Chain,
			Reported:          t.Reported,
			CreatedAt:         t.TrackedAt.UTC(),
		}
	}
	return snap, nil
}

// Save replaces both tables in one transaction
func (d *Database) Save(ctx context.Context, snap *types.Snapshot) error {
	alerted := make([]AlertedIdentity, 0, len(snap.Alerted))
	for _, id := range snap.Alerted {
		alerted = append(alerted, AlertedIdentity{Identity: id, AlertedAt: snap.AlertedAt[id]})
	}
	tracked := make([]TrackedEntry, 0, len(snap.Tracking))
	for id, e := range snap.Tracking {
		tracked = append(tracked, TrackedEntry{
			Identity:          id,
			MessageHandle:     e.MessageHandle,
			EntryMarketCapUSD: e.EntryMarketCapUSD,
			EntryLiquidityUSD: e.EntryLiquidityUSD,
			SymbolLabel:       e.SymbolLabel,
			Address:           e.Address,
			Chain:             e.Chain,
			Reported:          e.Reported,
			TrackedAt:         e.CreatedAt,
		})
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&AlertedIdentity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&TrackedEntry{}).Error; err != nil {
			return err
		}
		if len(alerted) > 0 {
			if err := tx.CreateInBatches(alerted, 200).Error; err != nil {
				return err
			}
		}
		if len(tracked) > 0 {
			if err := tx.CreateInBatches(tracked, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
