package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RunMigrations creates the row store tables
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Sheet{}, &SheetRow{}); err != nil {
		return err
	}
	return nil
}

// ProvisionSheets registers each sheet with its header row. Existing sheets
// are left untouched, so it is safe to run on every start.
func ProvisionSheets(db *DB, sheets map[string][]string) ([]string, error) {
	var created []string
	for name, headers := range sheets {
		var existing Sheet
		err := db.Where("name = ?", name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, fmt.Errorf("failed to look up sheet %s: %w", name, err)
		}

		raw, err := json.Marshal(headers)
		if err != nil {
			return created, err
		}
		sheet := Sheet{Name: name, Headers: string(raw), CreatedAt: time.Now().UTC()}
		if err := db.Create(&sheet).Error; err != nil {
			return created, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		created = append(created, name)
	}
	return created, nil
}
