package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

//go:embed sql/pre_automigrate.sql
var schemaPrelude string

//go:embed sql/post_automigrate.sql
var schemaIndexes string

// migrationLockKey serialises concurrent migrations from serve and
// run-pipeline starting against the same database.
const migrationLockKey = "atlas.schema.migrate"

type migrationStep struct {
	name  string
	apply func(tx *gorm.DB) error
}

func migrationPlan() []migrationStep {
	return []migrationStep{
		{name: "extensions-and-enums", apply: execScript(schemaPrelude)},
		{name: "atlas-tables", apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(autoMigrateModels()...)
		}},
		{name: "indexes-and-constraints", apply: execScript(schemaIndexes)},
	}
}

func execScript(script string) func(tx *gorm.DB) error {
	body := strings.TrimSpace(script)
	return func(tx *gorm.DB) error {
		if body == "" {
			return nil
		}
		return tx.Exec(body).Error
	}
}

// migrate applies the atlas schema in one transaction under an advisory lock.
func (p *Pool) migrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	started := time.Now()
	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", migrationLockKey).Error; err != nil {
			return fmt.Errorf("take migration lock: %w", err)
		}
		for _, step := range migrationPlan() {
			stepStart := time.Now()
			if err := step.apply(tx); err != nil {
				return fmt.Errorf("migration step %s: %w", step.name, err)
			}
			p.log.Debug().
				Str("step", step.name).
				Dur("elapsed", time.Since(stepStart)).
				Msg("migration step applied")
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Info().Dur("elapsed", time.Since(started)).Msg("atlas schema up to date")
	return nil
}
