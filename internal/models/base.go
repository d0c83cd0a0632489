package models

import (
	"ledgersync/internal/uuid"

	"gorm.io/gorm"
)

// Base contains the id column for rows that are local bookkeeping only and
// never synchronized (sync journal entries).
type Base struct {
	ID string `gorm:"primaryKey" json:"id"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}
