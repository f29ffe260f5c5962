package rowstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/omutucat/reading-counter-dc/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SQL stores sheets in the sheet_rows table through GORM (PostgreSQL or SQLite).
type SQL struct {
	db  *db.DB
	log *zap.Logger
}

// NewSQL creates a row store over a migrated database
func NewSQL(database *db.DB, log *zap.Logger) *SQL {
	return &SQL{db: database, log: log}
}

func (s *SQL) Table(name string) (Table, error) {
	var sheet db.Sheet
	err := s.db.Where("name = ?", name).First(&sheet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up sheet %s: %w", name, err)
	}
	return &sqlTable{db: s.db, log: s.log, name: name}, nil
}

// Ping checks the database connection
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type sqlTable struct {
	db   *db.DB
	log  *zap.Logger
	name string
}

func (t *sqlTable) Name() string { return t.name }

func (t *sqlTable) Len(ctx context.Context) (int, error) {
	var n int64
	if err := t.db.WithContext(ctx).Model(&db.SheetRow{}).Where("sheet = ?", t.name).Count(&n).Error; err != nil {
		t.log.Error("Failed to count rows", zap.String("sheet", t.name), zap.Error(err))
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return int(n), nil
}

func (t *sqlTable) ReadRange(ctx context.Context, start, count int) ([]Row, error) {
	if start < 0 {
		start = 0
	}
	query := t.db.WithContext(ctx).Where("sheet = ? AND row_num >= ?", t.name, start)
	if count >= 0 {
		query = query.Where("row_num < ?", start+count)
	}

	var records []db.SheetRow
	if err := query.Order("row_num ASC").Find(&records).Error; err != nil {
		t.log.Error("Failed to read rows", zap.String("sheet", t.name), zap.Error(err))
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		cells, err := db.DecodeCells(rec.Cells)
		if err != nil {
			return nil, fmt.Errorf("corrupt row %s[%d]: %w", t.name, rec.RowNum, err)
		}
		rows = append(rows, Row(cells))
	}
	return rows, nil
}

func (t *sqlTable) ReadAll(ctx context.Context) ([]Row, error) {
	return t.ReadRange(ctx, 0, -1)
}

func (t *sqlTable) Append(ctx context.Context, row Row) (int, error) {
	cells, err := db.EncodeCells(row)
	if err != nil {
		return 0, err
	}

	var index int
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&db.SheetRow{}).
			Where("sheet = ?", t.name).
			Select("COALESCE(MAX(row_num), -1)").
			Scan(&last).Error; err != nil {
			return err
		}

		rec := db.SheetRow{Sheet: t.name, RowNum: last + 1, Cells: cells}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		index = rec.RowNum
		return nil
	})
	if err != nil {
		t.log.Error("Failed to append row", zap.String("sheet", t.name), zap.Error(err))
		return 0, fmt.Errorf("failed to append row: %w", err)
	}
	return index, nil
}

func (t *sqlTable) SetCell(ctx context.Context, row, col int, value string) error {
	if col < 0 {
		return fmt.Errorf("negative column %d", col)
	}

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec db.SheetRow
		err := tx.Where("sheet = ? AND row_num = ?", t.name, row).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s[%d]", ErrRowOutOfRange, t.name, row)
		}
		if err != nil {
			return err
		}

		cells, err := db.DecodeCells(rec.Cells)
		if err != nil {
			return fmt.Errorf("corrupt row %s[%d]: %w", t.name, row, err)
		}
		for len(cells) <= col {
			cells = append(cells, "")
		}
		cells[col] = value

		encoded, err := db.EncodeCells(cells)
		if err != nil {
			return err
		}
		return tx.Model(&rec).Update("cells", encoded).Error
	})
	if err != nil {
		if errors.Is(err, ErrRowOutOfRange) {
			return err
		}
		t.log.Error("Failed to set cell",
			zap.String("sheet", t.name),
			zap.Int("row", row),
			zap.Int("col", col),
			zap.Error(err),
		)
		return fmt.Errorf("failed to set cell: %w", err)
	}
	return nil
}
