package sqlite

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

// zoneRow is a hosted zone.
// Table name: zones
type zoneRow struct {
	Name      string    `gorm:"primaryKey;type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (zoneRow) TableName() string { return "zones" }

// recordRow is one flat record.
// Table name: records
type recordRow struct {
	ID        string    `gorm:"primaryKey;type:text;not null"`
	Zone      string    `gorm:"type:text;not null;index:idx_records_listing,priority:1"`
	Namespace string    `gorm:"type:text;not null;index:idx_records_listing,priority:2"`
	Name      string    `gorm:"type:text;not null;index:idx_records_listing,priority:3"`
	Type      string    `gorm:"type:text;not null;index:idx_records_listing,priority:4"`
	Qualifier string    `gorm:"type:text;not null;default:''"`
	TTL       int       `gorm:"not null"`
	Priority  *int      `gorm:"default:null"`
	Data      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (recordRow) TableName() string { return "records" }

// profileRow holds the routing profile of one qualified record set.
// Table name: profiles
type profileRow struct {
	Zone      string    `gorm:"primaryKey;type:text;not null"`
	Namespace string    `gorm:"primaryKey;type:text;not null"`
	Name      string    `gorm:"primaryKey;type:text;not null"`
	Type      string    `gorm:"primaryKey;type:text;not null"`
	Qualifier string    `gorm:"primaryKey;type:text;not null"`
	Profile   string    `gorm:"type:text;not null"` // JSON encoded rrset.Profile
	UpdatedAt time.Time `gorm:"not null"`
}

func (profileRow) TableName() string { return "profiles" }

// conds selects the row by primary key.
func (r profileRow) conds() map[string]any {
	return map[string]any{
		"zone":      r.Zone,
		"namespace": r.Namespace,
		"name":      r.Name,
		"type":      r.Type,
		"qualifier": r.Qualifier,
	}
}

// Open opens the database at dsn and applies migrations. A dsn of
// ":memory:" gives a private in-memory database.
//
// The pool is limited to one connection: sqlite serializes writers anyway
// and every in-memory connection would otherwise see its own database.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite3:"), "sqlite:")
	if dsn == "" {
		return nil, fmt.Errorf("empty database path")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating %s: %w", dsn, err)
	}
	return db, nil
}

// AutoMigrate applies schema migrations for all tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&zoneRow{}, &recordRow{}, &profileRow{})
}

func rowToRecord(r *recordRow) provider.Record {
	return provider.Record{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		Qualifier: r.Qualifier,
		TTL:       r.TTL,
		Priority:  r.Priority,
		Data:      r.Data,
	}
}
