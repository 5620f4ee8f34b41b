package repository

import (
	"context"
	"errors"

	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/domain/mongodb"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type NoteRepository struct {
	appointments *mongo.Collection
	notes        *mongo.Collection
}

func NewNoteRepository(db *mongo.Database) *NoteRepository {
	return &NoteRepository{
		appointments: db.Collection(mongodb.AppointmentsCollection),
		notes:        db.Collection(mongodb.NotesCollection),
	}
}

// Append stores the note and pushes its reference onto the appointment's
// ledger. The unique (appointmentId, position) index rejects a concurrent
// append that computed the same position. If the push fails the note is
// removed again.
func (n *NoteRepository) Append(ctx context.Context, note *entity.Note) error {
	count, err := n.notes.CountDocuments(ctx, bson.M{"appointmentId": note.AppointmentID})
	if err != nil {
		return err
	}
	note.Position = int(count)
	stamp(&note.CreatedAt)

	if _, err := n.notes.InsertOne(ctx, toNoteDocument(note)); err != nil {
		return err
	}

	res, err := n.appointments.UpdateOne(ctx,
		bson.M{"_id": note.AppointmentID},
		bson.M{"$push": bson.M{"noteHistory": note.ID}},
	)
	if err == nil && res.MatchedCount == 0 {
		err = mongo.ErrNoDocuments
	}
	if err != nil {
		// an unreferenced note would still count towards the next position
		if _, derr := n.notes.DeleteOne(ctx, bson.M{"_id": note.ID}); derr != nil {
			return errors.Join(err, derr)
		}
		return err
	}
	return nil
}
