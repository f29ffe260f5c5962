package repo

import (
	"context"
	"fmt"

	"github.com/omutucat/reading-counter-dc/internal/model"
	"github.com/omutucat/reading-counter-dc/internal/rowstore"
	"github.com/omutucat/reading-counter-dc/internal/validation"
	"go.uber.org/zap"
)

// ProgressRepository owns ReadingLogs and ReadingStatus
type ProgressRepository struct {
	store     rowstore.Store
	gate      WriteGate
	validator *validation.Validator
	opts      Options
	log       *zap.Logger
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(store rowstore.Store, writes WriteGate, opts Options, logger *zap.Logger) *ProgressRepository {
	return &ProgressRepository{
		store:     store,
		gate:      writes,
		validator: validation.New(),
		opts:      opts.withDefaults(),
		log:       logger,
	}
}

// RecordProgress appends a reading log and then upserts the (user, book)
// status, both under the write gate. The log append always happens first;
// if the status write fails the log row stays.
func (r *ProgressRepository) RecordProgress(ctx context.Context, u model.ProgressUpdate) error {
	if err := r.validator.Struct(u); err != nil {
		return err
	}

	logs, err := r.store.Table(SheetReadingLogs)
	if err != nil {
		return err
	}
	statuses, err := r.store.Table(SheetReadingStatus)
	if err != nil {
		return err
	}

	var created bool
	err = r.gate.WithWriteLock(ctx, r.opts.LockTimeout, func(ctx context.Context) error {
		now := model.FormatTimestamp(r.opts.Now())

		entry := model.ReadingLog{
			LogID:     r.opts.NewID(),
			BookID:    u.BookID,
			UserID:    u.UserID,
			PageCount: *u.PagesRead,
			LoggedAt:  now,
		}
		if _, err := logs.Append(ctx, encodeLog(entry)); err != nil {
			return fmt.Errorf("failed to append reading log: %w", err)
		}

		rows, err := statuses.ReadAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to read reading status: %w", err)
		}

		for i, row := range rows {
			if row.Cell(StatusColUserID) != u.UserID || row.Cell(StatusColBookID) != u.BookID {
				continue
			}
			updates := []struct {
				col   int
				value string
			}{
				{StatusColCurrentPage, fmt.Sprint(*u.NewCurrentPage)},
				{StatusColStatus, u.NewStatus},
				{StatusColLastUpdatedAt, now},
			}
			for _, upd := range updates {
				if err := statuses.SetCell(ctx, i, upd.col, upd.value); err != nil {
					return fmt.Errorf("failed to update reading status: %w", err)
				}
			}
			return nil
		}

		created = true
		status := model.ReadingStatus{
			StatusID:      model.StatusID(u.UserID, u.BookID),
			UserID:        u.UserID,
			BookID:        u.BookID,
			CurrentPage:   *u.NewCurrentPage,
			Status:        u.NewStatus,
			LastUpdatedAt: now,
		}
		if _, err := statuses.Append(ctx, encodeStatus(status)); err != nil {
			return fmt.Errorf("failed to append reading status: %w", err)
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to record progress",
			zap.String("user_id", u.UserID),
			zap.String("book_id", u.BookID),
			zap.Error(err),
		)
		return err
	}

	r.log.Info("Progress recorded",
		zap.String("user_id", u.UserID),
		zap.String("book_id", u.BookID),
		zap.Int("pages_read", *u.PagesRead),
		zap.Int("current_page", *u.NewCurrentPage),
		zap.String("status", u.NewStatus),
		zap.Bool("new_status_row", created),
	)
	return nil
}

// ListStatuses returns every status row in table order. Rows with an
// unreadable page number are returned with CurrentPage 0.
func (r *ProgressRepository) ListStatuses(ctx context.Context) ([]model.ReadingStatus, error) {
	statuses, err := r.store.Table(SheetReadingStatus)
	if err != nil {
		return nil, err
	}
	rows, err := statuses.ReadAll(ctx)
	if err != nil {
		r.log.Error("Failed to scan reading status", zap.Error(err))
		return nil, fmt.Errorf("failed to scan reading status: %w", err)
	}

	out := make([]model.ReadingStatus, 0, len(rows))
	for _, row := range rows {
		s, err := decodeStatus(row)
		if err != nil {
			r.log.Warn("Reading status has unreadable page", zap.Error(err))
		}
		out = append(out, s)
	}
	return out, nil
}

// ListLogs returns every reading log in table order. Rows whose page count
// cannot be read are skipped.
func (r *ProgressRepository) ListLogs(ctx context.Context) ([]model.ReadingLog, error) {
	logs, err := r.store.Table(SheetReadingLogs)
	if err != nil {
		return nil, err
	}
	rows, err := logs.ReadAll(ctx)
	if err != nil {
		r.log.Error("Failed to scan reading logs", zap.Error(err))
		return nil, fmt.Errorf("failed to scan reading logs: %w", err)
	}

	out := make([]model.ReadingLog, 0, len(rows))
	for _, row := range rows {
		l, err := decodeLog(row)
		if err != nil {
			r.log.Warn("Skipping unreadable reading log", zap.Error(err))
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
