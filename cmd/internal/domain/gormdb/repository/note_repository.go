package repository

import (
	"context"

	"medibook/cmd/internal/domain/entity"

	"gorm.io/gorm"
)

type DefaultNoteRepository struct {
	db *gorm.DB
}

func NewNoteRepository(db *gorm.DB) *DefaultNoteRepository {
	return &DefaultNoteRepository{db: db}
}

// Append adds a note at the end of its appointment's ledger. Notes are never
// updated or deleted once written.
func (n *DefaultNoteRepository) Append(ctx context.Context, note *entity.Note) error {
	return n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&entity.Note{}).
			Where("appointment_id = ?", note.AppointmentID).
			Count(&count).Error
		if err != nil {
			return err
		}

		note.Position = int(count)
		return tx.Create(note).Error
	})
}
