package db

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Sheet is a provisioned table and its header row.
type Sheet struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)"`
	Headers   string    `gorm:"type:text;not null"` // JSON array
	CreatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for Sheet model
func (Sheet) TableName() string {
	return "sheets"
}

// HeaderList decodes the stored header row.
func (s *Sheet) HeaderList() ([]string, error) {
	var headers []string
	if err := json.Unmarshal([]byte(s.Headers), &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// SheetRow is one data row of a sheet. RowNum is the 0-based position
// within the sheet and never changes once written.
type SheetRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Sheet     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_sheet_rows_position,priority:1"`
	RowNum    int       `gorm:"not null;uniqueIndex:idx_sheet_rows_position,priority:2"`
	Cells     string    `gorm:"type:text;not null"` // JSON array of strings
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for SheetRow model
func (SheetRow) TableName() string {
	return "sheet_rows"
}

// BeforeSave stamps the row modification time
func (r *SheetRow) BeforeSave(tx *gorm.DB) error {
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// EncodeCells serializes a row for the Cells column.
func EncodeCells(cells []string) (string, error) {
	if cells == nil {
		cells = []string{}
	}
	b, err := json.Marshal(cells)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeCells parses the Cells column.
func DecodeCells(raw string) ([]string, error) {
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, err
	}
	return cells, nil
}
