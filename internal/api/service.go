package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/omutucat/reading-counter-dc/internal/events"
	"github.com/omutucat/reading-counter-dc/internal/model"
	"github.com/omutucat/reading-counter-dc/internal/query"
	"github.com/omutucat/reading-counter-dc/internal/repo"
	"go.uber.org/zap"
)

const eventTimeout = 10 * time.Second

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	PublishBookRegistered(ctx context.Context, e events.BookRegistered) error
	PublishProgressRecorded(ctx context.Context, e events.ProgressRecorded) error
	IsHealthy() bool
}

// Service exposes the five reading operations.
type Service struct {
	books     *repo.BookRepository
	progress  *repo.ProgressRepository
	engine    *query.Engine
	publisher EventPublisher
	pending   sync.WaitGroup
	log       *zap.Logger
}

// NewService creates a new service
func NewService(books *repo.BookRepository, progress *repo.ProgressRepository, engine *query.Engine, publisher EventPublisher, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		books:     books,
		progress:  progress,
		engine:    engine,
		publisher: publisher,
		log:       log,
	}
}

// RegisterBook stores a new book and returns its id.
func (s *Service) RegisterBook(ctx context.Context, data *model.BookData, registeredBy string) (string, error) {
	bookID, err := s.books.Register(ctx, data, registeredBy)
	if err != nil {
		return "", err
	}

	s.publishAsync(ctx, "book registered", func(ctx context.Context) error {
		return s.publisher.PublishBookRegistered(ctx, events.BookRegistered{
			BookID:       bookID,
			ISBN:         data.ISBN,
			Title:        data.Title,
			RegisteredBy: registeredBy,
		})
	})
	return bookID, nil
}

// RecordProgress logs pages read and upserts the reading status.
func (s *Service) RecordProgress(ctx context.Context, u model.ProgressUpdate) error {
	if err := s.progress.RecordProgress(ctx, u); err != nil {
		return err
	}

	s.publishAsync(ctx, "progress recorded", func(ctx context.Context) error {
		return s.publisher.PublishProgressRecorded(ctx, events.ProgressRecorded{
			UserID:      u.UserID,
			BookID:      u.BookID,
			PagesRead:   *u.PagesRead,
			CurrentPage: *u.NewCurrentPage,
			Status:      u.NewStatus,
		})
	})
	return nil
}

// SearchBooks returns autocomplete choices for query.
func (s *Service) SearchBooks(ctx context.Context, q *string) ([]model.SearchResult, error) {
	return s.engine.SearchBooks(ctx, q)
}

// GetReadingStatus returns the statuses of userID, or all when empty.
func (s *Service) GetReadingStatus(ctx context.Context, userID string) ([]model.StatusView, error) {
	return s.engine.GetReadingStatus(ctx, userID)
}

// GetReadingStats aggregates pages read per user over period.
func (s *Service) GetReadingStats(ctx context.Context, userID string, period *string) ([]model.UserStats, error) {
	return s.engine.GetReadingStats(ctx, userID, period)
}

// Wait blocks until in-flight event publishes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

// publishAsync runs publish detached from the request; failures are logged only.
func (s *Service) publishAsync(ctx context.Context, what string, publish func(context.Context) error) {
	correlationID := middleware.GetReqID(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		eventCtx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if correlationID != "" {
			eventCtx = events.WithCorrelationID(eventCtx, correlationID)
		}

		if err := publish(eventCtx); err != nil {
			s.log.Error("Failed to publish "+what+" event", zap.Error(err))
		}
	}()
}
