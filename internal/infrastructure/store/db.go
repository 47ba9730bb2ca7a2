package store

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quotedesk/backend/internal/domain"
)

// Open connects to the database behind the DSN and runs migrations.
// A postgres:// DSN selects the postgres driver; anything else is treated
// as a sqlite path (":memory:" works for tests and local development).
func Open(dsn string, debug bool) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if debug {
		logLevel = gormlogger.Info
	}
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)}

	var (
		db  *gorm.DB
		err error
	)
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema. The unique indexes declared on the
// models are what backs the dedup guard, so migration failure is fatal.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Organization{},
		&domain.CatalogProduct{},
		&domain.CompetitorRef{},
		&domain.Customer{},
		&domain.Quote{},
		&domain.QuoteItem{},
		&domain.ProcessedEmail{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
