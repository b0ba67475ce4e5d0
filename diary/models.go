package diary

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entry is a single journal record. EntryDate is the day the entry is about,
// which the author picks; CreatedAt is when the row was written.
type Entry struct {
	bun.BaseModel `bun:"table:diary_entries,alias:ent"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Title     string     `bun:"title,notnull" json:"title"`
	Content   string     `bun:"content,notnull" json:"content"`
	EntryDate time.Time  `bun:"entry_date,notnull" json:"entry_date"`
	CreatedAt *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}
