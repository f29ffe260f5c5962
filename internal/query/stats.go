package query

import (
	"context"
	"strings"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/errs"
	"github.com/omutucat/reading-counter-dc/internal/model"
	"go.uber.org/zap"
)

// Period selects the log window for statistics.
type Period string

const (
	// PeriodMonthly counts logs from the first day of the current month.
	PeriodMonthly Period = "monthly"
	// PeriodAll counts every log.
	PeriodAll Period = "all"
)

// ParsePeriod validates a period name.
func ParsePeriod(raw *string) (Period, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return "", errs.InvalidArgument("period is required for getReadingStats")
	}
	switch p := Period(strings.ToLower(strings.TrimSpace(*raw))); p {
	case PeriodMonthly, PeriodAll:
		return p, nil
	default:
		return "", errs.InvalidArgument("unsupported period %q (use %q or %q)", *raw, PeriodMonthly, PeriodAll)
	}
}

// since returns the inclusive lower bound of the window, or the zero time
// for an unbounded one.
func (p Period) since(now time.Time) time.Time {
	if p == PeriodMonthly {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return time.Time{}
}

// GetReadingStats sums pages read per user over the period, optionally for
// one user. Users without logs in the window are absent. Each entry also
// counts the user's books whose status is the finished marker.
func (e *Engine) GetReadingStats(ctx context.Context, userID string, period *string) ([]model.UserStats, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	logs, err := e.progress.ListLogs(ctx)
	if err != nil {
		return nil, err
	}

	since := p.since(e.now())
	byUser := make(map[string]*model.UserStats)
	var order []string
	for _, l := range logs {
		if userID != "" && l.UserID != userID {
			continue
		}
		if !since.IsZero() {
			at, err := model.ParseTimestamp(l.LoggedAt)
			if err != nil {
				e.log.Debug("Log timestamp unreadable, excluded from window",
					zap.String("log_id", l.LogID),
					zap.String("logged_at", l.LoggedAt),
				)
				continue
			}
			if at.Before(since) {
				continue
			}
		}

		s, ok := byUser[l.UserID]
		if !ok {
			s = &model.UserStats{UserID: l.UserID}
			byUser[l.UserID] = s
			order = append(order, l.UserID)
		}
		s.TotalPagesRead += l.PageCount
	}

	if len(order) == 0 {
		return []model.UserStats{}, nil
	}

	if err := e.countFinished(ctx, byUser); err != nil {
		return nil, err
	}

	out := make([]model.UserStats, 0, len(order))
	for _, id := range order {
		out = append(out, *byUser[id])
	}
	return out, nil
}

func (e *Engine) countFinished(ctx context.Context, byUser map[string]*model.UserStats) error {
	statuses, err := e.progress.ListStatuses(ctx)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		if s.Status != e.finishedStatus {
			continue
		}
		if stats, ok := byUser[s.UserID]; ok {
			stats.BooksFinished++
		}
	}
	return nil
}
