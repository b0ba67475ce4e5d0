package diary

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entries is the persistence boundary for diary records. The owner id rides
// along on every lookup so the store itself enforces the ownership scope.
type Entries interface {
	repository.Repository[*Entry]

	GetOwned(ctx context.Context, owner, id uuid.UUID) (*Entry, error)
	GetOwnedTx(ctx context.Context, tx bun.IDB, owner, id uuid.UUID) (*Entry, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Entry, error)
	ListByOwnerTx(ctx context.Context, tx bun.IDB, owner uuid.UUID) ([]*Entry, error)
	SaveOwnedTx(ctx context.Context, tx bun.IDB, entry *Entry) (*Entry, error)
	DeleteOwnedTx(ctx context.Context, tx bun.IDB, owner, id uuid.UUID) (bool, error)
}

type entries struct {
	repository.Repository[*Entry]
	db *bun.DB
}

var (
	_ Entries                       = (*entries)(nil)
	_ repository.Repository[*Entry] = (*entries)(nil)
)

func NewEntriesRepository(db *bun.DB) Entries {
	repo := repository.NewRepository[*Entry](db, repository.ModelHandlers[*Entry]{
		NewRecord: func() *Entry { return &Entry{} },
		GetID: func(e *Entry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *Entry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &entries{
		Repository: repo,
		db:         db,
	}
}

func (a *entries) GetOwned(ctx context.Context, owner, id uuid.UUID) (*Entry, error) {
	return a.GetOwnedTx(ctx, a.db, owner, id)
}

func (a *entries) GetOwnedTx(ctx context.Context, tx bun.IDB, owner, id uuid.UUID) (*Entry, error) {
	record := &Entry{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.user_id = ?", owner.String()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *entries) ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Entry, error) {
	return a.ListByOwnerTx(ctx, a.db, owner)
}

func (a *entries) ListByOwnerTx(ctx context.Context, tx bun.IDB, owner uuid.UUID) ([]*Entry, error) {
	var records []*Entry
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", owner.String()).
		Order("entry_date DESC").
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *entries) SaveOwnedTx(ctx context.Context, tx bun.IDB, entry *Entry) (*Entry, error) {
	prepareEntryDefaults(entry)

	_, err := tx.NewInsert().
		Model(entry).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("content = EXCLUDED.content").
		Set("entry_date = EXCLUDED.entry_date").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (a *entries) DeleteOwnedTx(ctx context.Context, tx bun.IDB, owner, id uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*Entry)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.user_id = ?", owner.String()).
		Exec(ctx)

	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func prepareEntryDefaults(entry *Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	now := time.Now()
	if entry.CreatedAt == nil {
		entry.CreatedAt = &now
	}
	entry.UpdatedAt = &now
}
