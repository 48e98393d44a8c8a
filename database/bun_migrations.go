package database

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// appliedMigration tracks which migrations have run
type appliedMigration struct {
	bun.BaseModel `bun:"table:bun_schema_migrations"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Version   string    `bun:"version,notnull,unique"`
	AppliedAt time.Time `bun:"applied_at,nullzero,notnull,default:current_timestamp"`
}

// runMigrations runs all Bun migrations
func (b *BunDB) runMigrations(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*appliedMigration)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Check which migrations have been applied
	var applied []appliedMigration
	err = b.db.NewSelect().
		Model(&applied).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	// Run migrations in order
	migrations := []struct {
		version string
		name    string
		up      func(context.Context, *bun.DB) error
	}{
		{"001", "create_render_records", init001CreateRenderRecords},
		{"002", "index_render_cache_key", init002IndexRenderCacheKey},
	}

	for _, m := range migrations {
		if appliedMap[m.version] {
			continue
		}

		Logger.Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, b.db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		// Mark as applied
		_, err = b.db.NewInsert().
			Model(&appliedMigration{Version: m.version}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	Logger.Info("All migrations completed successfully")
	return nil
}

// Migration 001: Create the render_records table
func init001CreateRenderRecords(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*BunRenderRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Migration 002: Index the columns a cache lookup filters on
func init002IndexRenderCacheKey(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateIndex().
		Model((*BunRenderRecord)(nil)).
		Index("render_records_cache_key_idx").
		IfNotExists().
		Column("document", "page_index", "scale", "rotation", "state").
		Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().
		Model((*BunRenderRecord)(nil)).
		Index("render_records_created_at_idx").
		IfNotExists().
		Column("created_at").
		Exec(ctx)
	return err
}
