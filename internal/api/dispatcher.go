package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/errs"
	"github.com/omutucat/reading-counter-dc/internal/metrics"
	"github.com/omutucat/reading-counter-dc/internal/model"
	"go.uber.org/zap"
)

const (
	ActionRegisterBook     = "registerBook"
	ActionRecordProgress   = "recordProgress"
	ActionSearchBooks      = "searchBooks"
	ActionGetReadingStatus = "getReadingStatus"
	ActionGetReadingStats  = "getReadingStats"

	statusSuccess = "success"
	statusError   = "error"
)

// Result is the envelope for mutating actions and for every error.
// Read actions return their list directly.
type Result struct {
	Status  string `json:"status"`
	BookID  string `json:"bookId,omitempty"`
	Message string `json:"message,omitempty"`
}

type registerBookPayload struct {
	BookData     *model.BookData `json:"bookData"`
	RegisteredBy string          `json:"registeredBy"`
}

type searchBooksPayload struct {
	Query *string `json:"query"`
}

type readingStatusPayload struct {
	UserID string `json:"userId"`
}

type readingStatsPayload struct {
	UserID string  `json:"userId"`
	Period *string `json:"period"`
}

// Dispatcher routes an action name and its JSON payload to the service.
type Dispatcher struct {
	svc     *Service
	metrics *metrics.Collector
	log     *zap.Logger
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(svc *Service, m *metrics.Collector, log *zap.Logger) *Dispatcher {
	return &Dispatcher{svc: svc, metrics: m, log: log}
}

// Dispatch runs action and returns the value to serialize. It never fails;
// errors come back as a Result with status "error".
func (d *Dispatcher) Dispatch(ctx context.Context, action string, payload json.RawMessage) any {
	start := time.Now()

	resp, err := d.dispatch(ctx, action, payload)

	label := action
	if !knownAction(action) {
		label = "unknown"
	}
	if err != nil {
		d.logFailure(label, err)
		d.observe(label, statusError, start)
		return Result{Status: statusError, Message: err.Error()}
	}
	d.observe(label, statusSuccess, start)
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, action string, payload json.RawMessage) (any, error) {
	switch action {
	case "":
		return nil, errs.InvalidArgument("Request must include an 'action'.")

	case ActionRegisterBook:
		var p registerBookPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		bookID, err := d.svc.RegisterBook(ctx, p.BookData, p.RegisteredBy)
		if err != nil {
			return nil, err
		}
		return Result{Status: statusSuccess, BookID: bookID}, nil

	case ActionRecordProgress:
		var p model.ProgressUpdate
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		if err := d.svc.RecordProgress(ctx, p); err != nil {
			return nil, err
		}
		return Result{Status: statusSuccess}, nil

	case ActionSearchBooks:
		var p searchBooksPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		return d.svc.SearchBooks(ctx, p.Query)

	case ActionGetReadingStatus:
		var p readingStatusPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		return d.svc.GetReadingStatus(ctx, p.UserID)

	case ActionGetReadingStats:
		var p readingStatsPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		return d.svc.GetReadingStats(ctx, p.UserID, p.Period)

	default:
		return nil, errs.InvalidArgument("Invalid action: %s", action)
	}
}

// decodePayload treats an absent payload as an empty object.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errs.InvalidArgument("invalid payload: %v", err)
	}
	return nil
}

func knownAction(action string) bool {
	switch action {
	case ActionRegisterBook, ActionRecordProgress, ActionSearchBooks, ActionGetReadingStatus, ActionGetReadingStats:
		return true
	}
	return false
}

func (d *Dispatcher) logFailure(action string, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("code", string(errs.CodeOf(err))),
		zap.Error(err),
	}
	if errs.IsDomain(err) {
		d.log.Info("Action rejected", fields...)
		return
	}
	d.log.Error("Action failed", fields...)
}

func (d *Dispatcher) observe(action, status string, start time.Time) {
	if d.metrics != nil {
		d.metrics.ObserveAction(action, status, time.Since(start))
	}
}
