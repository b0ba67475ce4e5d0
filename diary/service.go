package diary

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger matches the logging surface used across the app: a message plus
// alternating key/value attributes, the slog convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service owns the journal use cases. Every operation takes the acting
// account id and refuses to surface entries owned by anyone else.
type Service struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

func NewService(repo RepositoryManager) *Service {
	return &Service{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

func (s *Service) WithLogger(logger Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock pins the time source, mostly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// EntryInput carries a create or update request.
type EntryInput struct {
	Title     string
	Content   string
	EntryDate time.Time
}

func (in EntryInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidEntry
	}
	if strings.TrimSpace(in.Content) == "" {
		return ErrInvalidEntry
	}
	return nil
}

// List returns the owner's entries, newest entry date first.
func (s *Service) List(ctx context.Context, owner uuid.UUID) ([]*Entry, error) {
	records, err := s.repo.Entries().ListByOwner(ctx, owner)
	if err != nil {
		return nil, s.storeFailure("entry list", err)
	}
	return records, nil
}

// Get returns one of the owner's entries.
func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (*Entry, error) {
	record, err := s.repo.Entries().GetOwned(ctx, owner, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrEntryNotFound
		}
		return nil, s.storeFailure("entry lookup", err)
	}
	return record, nil
}

// Create writes a new entry for the owner. A zero EntryDate defaults to
// today.
func (s *Service) Create(ctx context.Context, owner uuid.UUID, in EntryInput) (*Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	entryDate := in.EntryDate
	if entryDate.IsZero() {
		entryDate = s.now()
	}

	entry := &Entry{
		UserID:    owner,
		Title:     in.Title,
		Content:   in.Content,
		EntryDate: entryDate,
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		saved, err := s.repo.Entries().SaveOwnedTx(ctx, tx, entry)
		if err != nil {
			return s.storeFailure("entry create", err)
		}
		entry = saved
		return nil
	})

	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Update rewrites one of the owner's entries. The ownership check and the
// write share a transaction so the entry cannot change hands in between.
func (s *Service) Update(ctx context.Context, owner, id uuid.UUID, in EntryInput) (*Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var entry *Entry

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.repo.Entries().GetOwnedTx(ctx, tx, owner, id)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrEntryNotFound
			}
			return s.storeFailure("entry update", err)
		}

		record.Title = in.Title
		record.Content = in.Content
		if !in.EntryDate.IsZero() {
			record.EntryDate = in.EntryDate
		}

		saved, err := s.repo.Entries().SaveOwnedTx(ctx, tx, record)
		if err != nil {
			return s.storeFailure("entry update", err)
		}

		entry = saved
		return nil
	})

	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Delete removes one of the owner's entries.
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		deleted, err := s.repo.Entries().DeleteOwnedTx(ctx, tx, owner, id)
		if err != nil {
			return s.storeFailure("entry delete", err)
		}
		if !deleted {
			return ErrEntryNotFound
		}
		return nil
	})
}

func (s *Service) storeFailure(op string, cause error) error {
	rich := goerrors.Wrap(cause, goerrors.CategoryInternal, op+" storage failure")
	s.logger.Error("storage failure", "op", op, "error", rich)
	return &PersistenceError{Op: op}
}
